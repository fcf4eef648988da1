package auth

import "strings"

// RoleValidator checks the role carried by a session
type RoleValidator interface {
	// HasRole checks if the session carries a specific role
	HasRole(role string) bool

	// HasAnyRole checks if the session carries one of roles
	HasAnyRole(roles ...string) bool
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// LandingPath is the area a principal is sent to after login
func (r UserRole) LandingPath() string {
	switch r {
	case RoleAdmin:
		return "/Admin"
	case RoleTeacher:
		return "/Teacher"
	case RoleStudent:
		return "/Student"
	default:
		return "/login"
	}
}

// CanManageAccounts reports whether the role may provision teachers and students
func (r UserRole) CanManageAccounts() bool {
	return r == RoleAdmin
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleAdmin,
		RoleTeacher,
		RoleStudent,
	}
}

// ParseRole safely parses a string into a UserRole type. Matching ignores case
// so the capitalised names used in routes also parse.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}
