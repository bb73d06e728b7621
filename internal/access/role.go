package access

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a member's standing within a scope. The zero value RoleNone means
// the actor holds no membership in that scope.
type Role string

const (
	RoleNone    Role = ""
	RoleOwner   Role = "OWNER"
	RoleCoOwner Role = "CO_OWNER"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
	RolePlayer  Role = "PLAYER"
)

// ErrUnknownRole is returned by ParseRole for strings outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// Roles lists every assignable role, most privileged first.
var Roles = []Role{RoleOwner, RoleCoOwner, RoleManager, RoleStaff, RolePlayer}

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return RoleNone, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// IsValid reports whether r is one of the assignable roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleCoOwner, RoleManager, RoleStaff, RolePlayer:
		return true
	}
	return false
}

// Rank orders roles; higher is more privileged. RoleNone ranks 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 5
	case RoleCoOwner:
		return 4
	case RoleManager:
		return 3
	case RoleStaff:
		return 2
	case RolePlayer:
		return 1
	}
	return 0
}

// Outranks reports whether r is strictly more privileged than other.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

func (r Role) String() string {
	if r == RoleNone {
		return "NONE"
	}
	return string(r)
}
