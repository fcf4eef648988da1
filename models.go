package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the principal's role
type UserRole string

const (
	// RoleAdmin manages teachers and students
	RoleAdmin UserRole = "admin"
	// RoleTeacher manages units, quizzes and materials
	RoleTeacher UserRole = "teacher"
	// RoleStudent takes quizzes
	RoleStudent UserRole = "student"
)

// User holds admin and student accounts, discriminated by Role
type User struct {
	bun.BaseModel            `bun:"table:users,alias:usr"`
	ID                       uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email                    string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash             string     `bun:"password_hash,notnull" json:"-"`
	FirstName                string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName                 string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Role                     UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	IsActive                 bool       `bun:"is_active,notnull" json:"is_active"`
	PasswordResetToken       *string    `bun:"password_reset_token" json:"-"`
	PasswordResetTokenExpiry *time.Time `bun:"password_reset_token_expiry" json:"-"`
	LoginAttempts            int        `bun:"login_attempts,notnull" json:"login_attempts,omitempty"`
	LoginAttemptAt           *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt               *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt                *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt                *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Teacher accounts live in their own table and own subject assignments
type Teacher struct {
	bun.BaseModel            `bun:"table:teachers,alias:tch"`
	ID                       uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email                    string            `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash             string            `bun:"password_hash,notnull" json:"-"`
	FirstName                string            `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName                 string            `bun:"last_name,notnull" json:"last_name,omitempty"`
	IsActive                 bool              `bun:"is_active,notnull" json:"is_active"`
	PasswordResetToken       *string           `bun:"password_reset_token" json:"-"`
	PasswordResetTokenExpiry *time.Time        `bun:"password_reset_token_expiry" json:"-"`
	LoginAttempts            int               `bun:"login_attempts,notnull" json:"login_attempts,omitempty"`
	LoginAttemptAt           *time.Time        `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt               *time.Time        `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt                *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt                *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	Subjects                 []*TeacherSubject `bun:"rel:has-many,join:id=teacher_id" json:"subjects,omitempty"`
}

// TeacherSubject assigns a subject to a teacher. Rows are removed with the teacher.
type TeacherSubject struct {
	bun.BaseModel `bun:"table:teacher_subjects,alias:tsub"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TeacherID     uuid.UUID  `bun:"teacher_id,notnull,type:uuid" json:"teacher_id,omitempty"`
	SubjectID     uuid.UUID  `bun:"subject_id,notnull,type:uuid" json:"subject_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// FullName joins first and last name
func (u *User) FullName() string {
	return joinName(u.FirstName, u.LastName)
}

// FullName joins first and last name
func (t *Teacher) FullName() string {
	return joinName(t.FirstName, t.LastName)
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
