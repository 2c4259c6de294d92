package access

// Role is a named permission class bound to a chat-platform group.
type Role struct {
	ID          string
	Name        string
	Description string
	Schedule    Schedule
}

// Roster is a snapshot of role memberships taken at one refresh. It is
// never mutated after construction; a refresh builds a new Roster and
// swaps it in, so readers never observe a half-built index.
type Roster struct {
	roles   []Role
	members map[string]map[string]struct{} // role id -> principal ids
	index   map[string][]string            // principal id -> role ids, declaration order
}

// NewRoster builds a snapshot. members maps role id to the principals in
// that group; roles missing from members have no members.
func NewRoster(roles []Role, members map[string][]string) *Roster {
	r := &Roster{
		roles:   append([]Role(nil), roles...),
		members: make(map[string]map[string]struct{}, len(roles)),
		index:   make(map[string][]string),
	}
	for _, role := range r.roles {
		set := make(map[string]struct{}, len(members[role.ID]))
		for _, id := range members[role.ID] {
			if _, dup := set[id]; dup {
				continue
			}
			set[id] = struct{}{}
			r.index[id] = append(r.index[id], role.ID)
		}
		r.members[role.ID] = set
	}
	return r
}

// Roles returns the roles in declaration order.
func (r *Roster) Roles() []Role { return append([]Role(nil), r.roles...) }

// Role looks a role up by id.
func (r *Roster) Role(id string) (Role, bool) {
	for _, role := range r.roles {
		if role.ID == id {
			return role, true
		}
	}
	return Role{}, false
}

// Members returns the principal ids in a role. Order is unspecified.
func (r *Roster) Members(roleID string) []string {
	set := r.members[roleID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// MemberCount returns how many principals hold a role.
func (r *Roster) MemberCount(roleID string) int { return len(r.members[roleID]) }

// HasMember reports whether principalID holds roleID.
func (r *Roster) HasMember(roleID, principalID string) bool {
	_, ok := r.members[roleID][principalID]
	return ok
}

// RolesOf returns the role ids a principal holds, in declaration order.
func (r *Roster) RolesOf(principalID string) []string {
	return append([]string(nil), r.index[principalID]...)
}
