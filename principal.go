package auth

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalKind selects the record collection a principal lives in
type PrincipalKind string

const (
	KindAdmin   PrincipalKind = "admin"
	KindTeacher PrincipalKind = "teacher"
	KindStudent PrincipalKind = "student"
)

// LoginPrecedence is the order in which kinds are searched during login.
// Admin and student records are always reached before teacher records.
var LoginPrecedence = []PrincipalKind{KindAdmin, KindStudent, KindTeacher}

// Role returns the role granted to principals of this kind
func (k PrincipalKind) Role() UserRole {
	switch k {
	case KindAdmin:
		return RoleAdmin
	case KindTeacher:
		return RoleTeacher
	case KindStudent:
		return RoleStudent
	default:
		return ""
	}
}

// IsValid reports whether k is a known kind
func (k PrincipalKind) IsValid() bool {
	return k.Role() != ""
}

// Label is the capitalised kind name used in messages and routes
func (k PrincipalKind) Label() string {
	switch k {
	case KindAdmin:
		return "Admin"
	case KindTeacher:
		return "Teacher"
	case KindStudent:
		return "Student"
	default:
		return string(k)
	}
}

// ParsePrincipalKind maps a string to a kind
func ParsePrincipalKind(s string) (PrincipalKind, bool) {
	k := PrincipalKind(s)
	return k, k.IsValid()
}

// KindForRole is the inverse of PrincipalKind.Role
func KindForRole(role UserRole) (PrincipalKind, bool) {
	switch role {
	case RoleAdmin:
		return KindAdmin, true
	case RoleTeacher:
		return KindTeacher, true
	case RoleStudent:
		return KindStudent, true
	default:
		return "", false
	}
}

// Credential is the kind independent view of a stored credential
type Credential struct {
	PasswordHash     string
	IsActive         bool
	ResetToken       string
	ResetTokenExpiry *time.Time
	LoginAttempts    int
	LoginAttemptAt   *time.Time
}

// HasResetToken reports whether a setup or reset token is pending
func (c Credential) HasResetToken() bool {
	return c.ResetToken != ""
}

// Principal is one of AdminAccount, TeacherAccount or StudentAccount.
type Principal interface {
	Identity
	Kind() PrincipalKind
	UUID() uuid.UUID
	FullName() string
	FirstName() string
	LastName() string
	Credential() Credential
	CreatedAt() *time.Time

	isPrincipal()
}

// AdminAccount is an admin row of the users table
type AdminAccount struct{ User *User }

// StudentAccount is a student row of the users table
type StudentAccount struct{ User *User }

// TeacherAccount is a row of the teachers table
type TeacherAccount struct{ Teacher *Teacher }

var (
	_ Principal = AdminAccount{}
	_ Principal = StudentAccount{}
	_ Principal = TeacherAccount{}
)

func (AdminAccount) isPrincipal()   {}
func (StudentAccount) isPrincipal() {}
func (TeacherAccount) isPrincipal() {}

func (AdminAccount) Kind() PrincipalKind   { return KindAdmin }
func (StudentAccount) Kind() PrincipalKind { return KindStudent }
func (TeacherAccount) Kind() PrincipalKind { return KindTeacher }

func (a AdminAccount) ID() string            { return a.User.ID.String() }
func (a AdminAccount) UUID() uuid.UUID       { return a.User.ID }
func (a AdminAccount) Username() string      { return a.User.Email }
func (a AdminAccount) Email() string         { return a.User.Email }
func (a AdminAccount) Role() string          { return string(RoleAdmin) }
func (a AdminAccount) FullName() string      { return a.User.FullName() }
func (a AdminAccount) FirstName() string     { return a.User.FirstName }
func (a AdminAccount) LastName() string      { return a.User.LastName }
func (a AdminAccount) CreatedAt() *time.Time { return a.User.CreatedAt }
func (a AdminAccount) Credential() Credential {
	return userCredential(a.User)
}

func (s StudentAccount) ID() string            { return s.User.ID.String() }
func (s StudentAccount) UUID() uuid.UUID       { return s.User.ID }
func (s StudentAccount) Username() string      { return s.User.Email }
func (s StudentAccount) Email() string         { return s.User.Email }
func (s StudentAccount) Role() string          { return string(RoleStudent) }
func (s StudentAccount) FullName() string      { return s.User.FullName() }
func (s StudentAccount) FirstName() string     { return s.User.FirstName }
func (s StudentAccount) LastName() string      { return s.User.LastName }
func (s StudentAccount) CreatedAt() *time.Time { return s.User.CreatedAt }
func (s StudentAccount) Credential() Credential {
	return userCredential(s.User)
}

func (t TeacherAccount) ID() string            { return t.Teacher.ID.String() }
func (t TeacherAccount) UUID() uuid.UUID       { return t.Teacher.ID }
func (t TeacherAccount) Username() string      { return t.Teacher.Email }
func (t TeacherAccount) Email() string         { return t.Teacher.Email }
func (t TeacherAccount) Role() string          { return string(RoleTeacher) }
func (t TeacherAccount) FullName() string      { return t.Teacher.FullName() }
func (t TeacherAccount) FirstName() string     { return t.Teacher.FirstName }
func (t TeacherAccount) LastName() string      { return t.Teacher.LastName }
func (t TeacherAccount) CreatedAt() *time.Time { return t.Teacher.CreatedAt }
func (t TeacherAccount) Credential() Credential {
	return Credential{
		PasswordHash:     t.Teacher.PasswordHash,
		IsActive:         t.Teacher.IsActive,
		ResetToken:       deref(t.Teacher.PasswordResetToken),
		ResetTokenExpiry: t.Teacher.PasswordResetTokenExpiry,
		LoginAttempts:    t.Teacher.LoginAttempts,
		LoginAttemptAt:   t.Teacher.LoginAttemptAt,
	}
}

func userCredential(u *User) Credential {
	return Credential{
		PasswordHash:     u.PasswordHash,
		IsActive:         u.IsActive,
		ResetToken:       deref(u.PasswordResetToken),
		ResetTokenExpiry: u.PasswordResetTokenExpiry,
		LoginAttempts:    u.LoginAttempts,
		LoginAttemptAt:   u.LoginAttemptAt,
	}
}

// NewPrincipal builds an unsaved principal of the given kind
func NewPrincipal(kind PrincipalKind, email, firstName, lastName string) (Principal, error) {
	switch kind {
	case KindAdmin, KindStudent:
		u := &User{
			ID:        uuid.New(),
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
			Role:      kind.Role(),
		}
		if kind == KindAdmin {
			return AdminAccount{User: u}, nil
		}
		return StudentAccount{User: u}, nil
	case KindTeacher:
		return TeacherAccount{Teacher: &Teacher{
			ID:        uuid.New(),
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		}}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// PrincipalSetter mutates the stored fields shared by every kind. Callers
// persist the change with Principals.UpdateProfileTx.
type PrincipalSetter struct {
	p Principal
}

// Mutate returns a setter for p
func Mutate(p Principal) PrincipalSetter {
	return PrincipalSetter{p: p}
}

func (s PrincipalSetter) Profile(email, firstName, lastName string) PrincipalSetter {
	switch v := s.p.(type) {
	case AdminAccount:
		v.User.Email, v.User.FirstName, v.User.LastName = email, firstName, lastName
	case StudentAccount:
		v.User.Email, v.User.FirstName, v.User.LastName = email, firstName, lastName
	case TeacherAccount:
		v.Teacher.Email, v.Teacher.FirstName, v.Teacher.LastName = email, firstName, lastName
	}
	return s
}

func (s PrincipalSetter) Active(active bool) PrincipalSetter {
	switch v := s.p.(type) {
	case AdminAccount:
		v.User.IsActive = active
	case StudentAccount:
		v.User.IsActive = active
	case TeacherAccount:
		v.Teacher.IsActive = active
	}
	return s
}

func (s PrincipalSetter) PasswordHash(hash string) PrincipalSetter {
	switch v := s.p.(type) {
	case AdminAccount:
		v.User.PasswordHash = hash
	case StudentAccount:
		v.User.PasswordHash = hash
	case TeacherAccount:
		v.Teacher.PasswordHash = hash
	}
	return s
}

// ResetToken sets or, with an empty token, clears the pending token and expiry together.
func (s PrincipalSetter) ResetToken(token string, expiry time.Time) PrincipalSetter {
	var tok *string
	var exp *time.Time
	if token != "" {
		tok, exp = &token, &expiry
	}
	switch v := s.p.(type) {
	case AdminAccount:
		v.User.PasswordResetToken, v.User.PasswordResetTokenExpiry = tok, exp
	case StudentAccount:
		v.User.PasswordResetToken, v.User.PasswordResetTokenExpiry = tok, exp
	case TeacherAccount:
		v.Teacher.PasswordResetToken, v.Teacher.PasswordResetTokenExpiry = tok, exp
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
