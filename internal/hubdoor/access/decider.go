package access

import (
	"fmt"
	"time"
)

const (
	ReasonNoRoles = "no roles assigned"
	ReasonNotNow  = "roles not valid at this time"
)

// Decision is the outcome of a role-membership check.
type Decision struct {
	Granted bool
	// Role is the first open role, in declaration order, that the principal
	// holds. Set only when Granted.
	Role *Role
	// Held lists every role the principal holds, in declaration order.
	Held   []Role
	Reason string
}

// OpenRoles returns the roles whose schedule admits now.
func OpenRoles(roster *Roster, now time.Time) []Role {
	var open []Role
	for _, role := range roster.roles {
		if role.Schedule.IsOpen(now) {
			open = append(open, role)
		}
	}
	return open
}

// Decide grants access when the principal is a member of at least one
// role that is open at now. All held roles are considered, so an
// unrestricted role grants access even when another held role is closed.
// Decide has no side effects.
func Decide(principalID string, roster *Roster, now time.Time) Decision {
	held := roster.RolesOf(principalID)
	if len(held) == 0 {
		return Decision{Reason: ReasonNoRoles}
	}

	d := Decision{Held: make([]Role, 0, len(held))}
	for _, id := range held {
		if role, ok := roster.Role(id); ok {
			d.Held = append(d.Held, role)
		}
	}

	for _, role := range OpenRoles(roster, now) {
		if roster.HasMember(role.ID, principalID) {
			matched := role
			d.Granted = true
			d.Role = &matched
			d.Reason = fmt.Sprintf("has role: %s", role.Name)
			return d
		}
	}

	d.Reason = ReasonNotNow
	return d
}
