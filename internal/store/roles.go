// ABOUTME: Role type shared between persistence and the auth pipeline
// ABOUTME: Roles are stored on membership rows and mapped to capabilities

package store

import "fmt"

// Role is the access level of a user within an organization, ordered from
// least to most privileged.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
	RoleOwner   Role = "owner"
)

// ValidRoles lists every role the gateway accepts, least privileged first.
var ValidRoles = []Role{RoleGuest, RoleMember, RoleManager, RoleAdmin, RoleOwner}

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	for _, r := range ValidRoles {
		if string(r) == raw {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}
