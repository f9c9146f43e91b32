package models

import "strings"

// Role is the coarse authorization level carried in access tokens.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole normalises a role string, reporting false for unknown values.
func ParseRole(value string) (Role, bool) {
	switch role := Role(strings.ToLower(strings.TrimSpace(value))); role {
	case RoleUser, RoleModerator, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

func (r Role) String() string {
	return string(r)
}
