package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const defaultSessionHours = 24

// SessionIssuer signs and verifies session tokens. There is no server side
// session table: a token is valid until it expires, and logout only removes
// the cookie that holds it.
type SessionIssuer struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// NewSessionIssuer builds an issuer from the signing key, issuer, audience
// and expiration hours in cfg.
func NewSessionIssuer(cfg Config) *SessionIssuer {
	hours := cfg.GetTokenExpiration()
	if hours <= 0 {
		hours = defaultSessionHours
	}

	var aud jwt.ClaimStrings
	if a := cfg.GetAudience(); len(a) > 0 {
		aud = make(jwt.ClaimStrings, len(a))
		copy(aud, a)
	}

	return &SessionIssuer{
		signingKey: []byte(cfg.GetSigningKey()),
		expiration: time.Duration(hours) * time.Hour,
		issuer:     cfg.GetIssuer(),
		audience:   aud,
		now:        time.Now,
		logger:     defLogger{},
	}
}

func (s *SessionIssuer) WithLogger(logger Logger) *SessionIssuer {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects the clock used for iat and exp
func (s *SessionIssuer) WithClock(now func() time.Time) *SessionIssuer {
	if now != nil {
		s.now = now
	}
	return s
}

// Expiration is the lifetime of issued sessions
func (s *SessionIssuer) Expiration() time.Duration {
	return s.expiration
}

// IssueSession signs the email, role and id of id
func (s *SessionIssuer) IssueSession(id Identity) (string, error) {
	if id == nil || id.ID() == "" {
		return "", goerrors.New("session identity must not be empty", goerrors.CategoryInternal)
	}

	now := s.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   id.ID(),
			Audience:  s.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
		Email:    id.Email(),
		UserRole: id.Role(),
		PID:      id.ID(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session")
	}
	return signed, nil
}

// ParseSession verifies the signature, method, issuer, audience and expiry
// of raw and returns its claims.
func (s *SessionIssuer) ParseSession(raw string) (*SessionClaims, error) {
	if raw == "" {
		return nil, ErrUnableToFindSession
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Error("session has unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, goerrors.Wrap(err, ErrSessionMalformed.Category, ErrSessionMalformed.Message).
			WithTextCode(ErrSessionMalformed.TextCode).
			WithCode(ErrSessionMalformed.Code)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrUnableToDecodeSession
	}
	return claims, nil
}

// ResolveIdentity parses raw and returns the identity it carries
func (s *SessionIssuer) ResolveIdentity(raw string) (SessionIdentity, error) {
	claims, err := s.ParseSession(raw)
	if err != nil {
		return SessionIdentity{}, err
	}
	return IdentityFromClaims(claims)
}
