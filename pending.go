package rolesbot

// pendingEdits maps members to their desired roles in the order the
// members were first touched.
type pendingEdits struct {
	order []string
	roles map[string]RoleSet
}

func newPendingEdits() *pendingEdits {
	return &pendingEdits{roles: make(map[string]RoleSet)}
}

func (p *pendingEdits) get(memberID string) (RoleSet, bool) {
	r, ok := p.roles[memberID]
	return r, ok
}

func (p *pendingEdits) put(memberID string, roles RoleSet) {
	if _, ok := p.roles[memberID]; !ok {
		p.order = append(p.order, memberID)
	}
	p.roles[memberID] = roles
}

// dropBefore removes every member touched before memberID.
func (p *pendingEdits) dropBefore(memberID string) {
	for i, m := range p.order {
		if m != memberID {
			continue
		}
		for _, gone := range p.order[:i] {
			delete(p.roles, gone)
		}
		p.order = append([]string(nil), p.order[i:]...)
		return
	}
}

func (p *pendingEdits) len() int {
	return len(p.order)
}
