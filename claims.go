package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the payload of the signed session cookie
type SessionClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	UserRole string `json:"role"`
	PID      string `json:"pid"`
}

var _ RoleValidator = (*SessionClaims)(nil)

// PrincipalID returns the pid claim, falling back to the subject
func (c *SessionClaims) PrincipalID() string {
	if c.PID != "" {
		return c.PID
	}
	return c.Subject
}

// Role returns the role claim
func (c *SessionClaims) Role() string {
	return c.UserRole
}

// Kind maps the role claim to the principal kind it was issued for
func (c *SessionClaims) Kind() (PrincipalKind, bool) {
	return KindForRole(UserRole(c.UserRole))
}

func (c *SessionClaims) HasRole(role string) bool {
	return c.UserRole != "" && c.UserRole == role
}

func (c *SessionClaims) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued at time
func (c *SessionClaims) Issued() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// SessionIdentity is the identity resolved from a session. It is a plain
// value; handlers pass it down instead of reading request state again.
type SessionIdentity struct {
	PrincipalID string
	Mail        string
	UserRole    string
}

var _ Identity = SessionIdentity{}

func (s SessionIdentity) ID() string       { return s.PrincipalID }
func (s SessionIdentity) Username() string { return s.Mail }
func (s SessionIdentity) Email() string    { return s.Mail }
func (s SessionIdentity) Role() string     { return s.UserRole }

// Kind is the principal kind implied by the role
func (s SessionIdentity) Kind() (PrincipalKind, bool) {
	return KindForRole(UserRole(s.UserRole))
}

// UUID parses the principal id
func (s SessionIdentity) UUID() (uuid.UUID, error) {
	return uuid.Parse(s.PrincipalID)
}

// IdentityFromClaims resolves the identity carried by verified claims
func IdentityFromClaims(c *SessionClaims) (SessionIdentity, error) {
	if c == nil || c.PrincipalID() == "" || c.Email == "" {
		return SessionIdentity{}, ErrUnableToDecodeSession
	}
	if _, ok := ParseRole(c.UserRole); !ok {
		return SessionIdentity{}, ErrUnableToDecodeSession
	}
	return SessionIdentity{
		PrincipalID: c.PrincipalID(),
		Mail:        c.Email,
		UserRole:    c.UserRole,
	}, nil
}
