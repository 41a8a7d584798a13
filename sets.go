package rolesbot

import "sort"

// RoleSet is a set of role ids.
type RoleSet map[string]struct{}

func NewRoleSet(ids ...string) RoleSet {
	s := make(RoleSet, len(ids))
	s.Add(ids...)
	return s
}

func (s RoleSet) Add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s RoleSet) Remove(ids ...string) {
	for _, id := range ids {
		delete(s, id)
	}
}

func (s RoleSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s RoleSet) Clone() RoleSet {
	c := make(RoleSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Equal returns true if both sets hold the same ids.
func (s RoleSet) Equal(o RoleSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// Slice returns the ids in sorted order.
func (s RoleSet) Slice() []string {
	ret := make([]string, 0, len(s))
	for id := range s {
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

// Without returns the ids in s that aren't in o, sorted.
func (s RoleSet) Without(o RoleSet) []string {
	var ret []string
	for id := range s {
		if !o.Has(id) {
			ret = append(ret, id)
		}
	}
	sort.Strings(ret)
	return ret
}
