package rolesbot

import (
	"regexp"
	"strings"
)

// ExclusiveMarker prefixes the content of exclusive role messages.
const ExclusiveMarker = "[](EXCLUSIVE)"

var roleBindingRE = regexp.MustCompile(`(?i):([a-z0-9_-]+):\[\]\(([0-9A-HJKMNP-TV-Z]{26})\)`)

// RoleBinding returns the text binding an emoji to a role.
func RoleBinding(emoji, roleID string) string {
	return ":" + emoji + ":[](" + roleID + ")"
}

// RoleMessage is a finalized role message.
type RoleMessage struct {
	// Exclusive messages allow members at most one of the bound roles.
	Exclusive bool

	// Roles maps emoji shortcodes (or custom emoji ids) to role ids.
	Roles map[string]string
}

// ParseRoleMessage extracts the emoji bindings from a message. It returns
// false if there are none.
func ParseRoleMessage(content string) (RoleMessage, bool) {
	roles := make(map[string]string)
	for _, m := range roleBindingRE.FindAllStringSubmatch(content, -1) {
		roles[m[1]] = m[2]
	}
	if len(roles) == 0 {
		return RoleMessage{}, false
	}
	return RoleMessage{
		Exclusive: strings.HasPrefix(content, ExclusiveMarker),
		Roles:     roles,
	}, true
}

// RoleIDs returns the distinct bound role ids in sorted order.
func (m RoleMessage) RoleIDs() []string {
	s := make(RoleSet, len(m.Roles))
	for _, id := range m.Roles {
		s.Add(id)
	}
	return s.Slice()
}

// Action is a role change requested for a member. Give is applied before
// Remove, so Remove wins for ids in both.
type Action struct {
	Give   []string
	Remove []string
}

// ActionFor returns the action for a member reacting (react) or
// unreacting with emoji. It returns false if emoji isn't bound.
func (m RoleMessage) ActionFor(emoji string, react bool) (Action, bool) {
	roleID, ok := m.Roles[emoji]
	if !ok {
		return Action{}, false
	}
	if !react {
		return Action{Remove: []string{roleID}}, true
	}
	a := Action{Give: []string{roleID}}
	if m.Exclusive {
		others := NewRoleSet(m.RoleIDs()...)
		others.Remove(roleID)
		a.Remove = others.Slice()
	}
	return a, true
}
