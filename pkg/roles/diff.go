package roles

import (
	"sort"
)

// RoleID identifies a role on the remote platform
type RoleID string

// Set is a set of role ids
type Set map[RoleID]struct{}

// NewSet creates a set holding ids
func NewSet(ids ...RoleID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set
func (s Set) Has(id RoleID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order
func (s Set) Sorted() []RoleID {
	out := make([]RoleID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a copy of the set
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Diff is a pair of disjoint role sets to assign and to remove.
// The last call to Assign or Remove for a role decides its side.
type Diff struct {
	toAssign Set
	toRemove Set
}

// NewDiff creates an empty diff
func NewDiff() Diff {
	return Diff{toAssign: Set{}, toRemove: Set{}}
}

// Assign marks id for assignment
func (d *Diff) Assign(id RoleID) {
	d.init()
	delete(d.toRemove, id)
	d.toAssign[id] = struct{}{}
}

// Remove marks id for removal
func (d *Diff) Remove(id RoleID) {
	d.init()
	delete(d.toAssign, id)
	d.toRemove[id] = struct{}{}
}

func (d *Diff) init() {
	if d.toAssign == nil {
		d.toAssign = Set{}
	}
	if d.toRemove == nil {
		d.toRemove = Set{}
	}
}

// ToAssign returns the roles to assign, sorted
func (d Diff) ToAssign() []RoleID {
	return d.toAssign.Sorted()
}

// ToRemove returns the roles to remove, sorted
func (d Diff) ToRemove() []RoleID {
	return d.toRemove.Sorted()
}

// IsEmpty reports whether the diff changes nothing
func (d Diff) IsEmpty() bool {
	return len(d.toAssign) == 0 && len(d.toRemove) == 0
}

// Len is the number of role changes in the diff
func (d Diff) Len() int {
	return len(d.toAssign) + len(d.toRemove)
}

// Changes drops every entry that would not change assigned
func (d Diff) Changes(assigned Set) Diff {
	out := NewDiff()
	for id := range d.toAssign {
		if !assigned.Has(id) {
			out.toAssign[id] = struct{}{}
		}
	}
	for id := range d.toRemove {
		if assigned.Has(id) {
			out.toRemove[id] = struct{}{}
		}
	}
	return out
}

// Apply returns assigned with the diff applied
func (d Diff) Apply(assigned Set) Set {
	out := assigned.Clone()
	for id := range d.toRemove {
		delete(out, id)
	}
	for id := range d.toAssign {
		out[id] = struct{}{}
	}
	return out
}
