// Package roles maps identity-provider group memberships to application
// roles and defines the role hierarchy used to pick a primary role.
package roles

import "strings"

// Role is an application role.
type Role string

// Application roles, ordered from least to most privileged.
const (
	RoleUser         Role = "user"
	RoleViewer       Role = "viewer"
	RoleProcessOwner Role = "process_owner"
	RoleDataOwner    Role = "data_owner"
	RoleAdmin        Role = "admin"
)

// hierarchy is the total order over roles. A higher index means more
// privileges. Used by Highest to pick a single primary role from a set.
var hierarchy = []Role{
	RoleUser,
	RoleViewer,
	RoleProcessOwner,
	RoleDataOwner,
	RoleAdmin,
}

// rank returns the position of the role in the hierarchy, or -1 for an
// unknown role.
func (r Role) rank() int {
	for i, known := range hierarchy {
		if r == known {
			return i
		}
	}
	return -1
}

// Valid reports whether r is a known application role.
func (r Role) Valid() bool {
	return r.rank() >= 0
}

// Parse returns the Role for the given string and whether it is known.
func Parse(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Set is an ordered set of roles. It always contains RoleUser as a floor
// when produced by a Mapper.
type Set []Role

// Contains reports whether the set contains the given role.
func (s Set) Contains(r Role) bool {
	for _, have := range s {
		if have == r {
			return true
		}
	}
	return false
}

// Highest returns the maximal element of the set under the hierarchy
// order. An empty set yields RoleUser.
func (s Set) Highest() Role {
	highest := RoleUser
	best := -1
	for _, r := range s {
		if rank := r.rank(); rank > best {
			best = rank
			highest = r
		}
	}
	return highest
}

// Strings returns the set as plain strings, preserving order.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// SetFromStrings rebuilds a Set from its string form, dropping unknown
// entries and guaranteeing the RoleUser floor.
func SetFromStrings(values []string) Set {
	set := make(Set, 0, len(values)+1)
	for _, v := range values {
		r, ok := Parse(v)
		if !ok || set.Contains(r) {
			continue
		}
		set = append(set, r)
	}
	if !set.Contains(RoleUser) {
		set = append(set, RoleUser)
	}
	return set
}

// Mapper maps raw identity-provider group identifiers to application
// roles. A configured exact-match table is consulted first; group names
// that miss the table fall back to case-insensitive keyword matching.
type Mapper struct {
	exact map[string]Role
}

// NewMapper creates a Mapper with the given group-identifier table.
// The table maps raw group IDs (as issued by the IdP) to roles.
func NewMapper(exact map[string]Role) *Mapper {
	if exact == nil {
		exact = map[string]Role{}
	}
	return &Mapper{exact: exact}
}

// MapGroups maps a list of raw group identifiers to a role set.
// Unmatched groups contribute no role. The result always includes
// RoleUser, so an empty or nil input yields {user}.
func (m *Mapper) MapGroups(groups []string) Set {
	set := make(Set, 0, len(groups)+1)
	for _, group := range groups {
		role, ok := m.mapGroup(group)
		if !ok || set.Contains(role) {
			continue
		}
		set = append(set, role)
	}
	if !set.Contains(RoleUser) {
		set = append(set, RoleUser)
	}
	return set
}

// mapGroup resolves a single group identifier to a role.
func (m *Mapper) mapGroup(group string) (Role, bool) {
	if group == "" {
		return "", false
	}
	if role, ok := m.exact[group]; ok {
		return role, true
	}

	// Keyword fallback for IdPs that send human-readable group names
	// instead of opaque IDs.
	lower := strings.ToLower(group)
	switch {
	case strings.Contains(lower, "admin"):
		return RoleAdmin, true
	case strings.Contains(lower, "data_owner"), strings.Contains(lower, "dataowner"):
		return RoleDataOwner, true
	case strings.Contains(lower, "process_owner"), strings.Contains(lower, "processowner"):
		return RoleProcessOwner, true
	case strings.Contains(lower, "viewer"), strings.Contains(lower, "readonly"):
		return RoleViewer, true
	}
	return "", false
}
