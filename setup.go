package rolesbot

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxContentLen is the longest message the platform accepts, in bytes.
const MaxContentLen = 2000

// Checkmark is the reaction which completes a setup message.
const Checkmark = "✅"

var placeholderRE = regexp.MustCompile(`(?i)\{ROLE:([^{}]{1,32})\}`)

// RoleSlot is a {ROLE:<ref>} placeholder spanning Content[Start:End].
type RoleSlot struct {
	Start, End int
	Ref        string
}

// SetupMessage is a role message template that is still being authored.
type SetupMessage struct {
	AuthorID  string
	Content   string
	Slots     []RoleSlot
	Exclusive bool
	Formatted bool
}

// ParseSetupMessage parses a template, without the bot mention. Leading
// "exclusive" and "formatted" keywords set the matching flags. It returns
// false if the template has no placeholders.
func ParseSetupMessage(authorID, text string) (SetupMessage, bool) {
	m := SetupMessage{AuthorID: authorID}

	content := strings.TrimSpace(text)
	for {
		word, rest := splitWord(content)
		if !m.Exclusive && strings.EqualFold(word, "exclusive") {
			m.Exclusive = true
		} else if !m.Formatted && strings.EqualFold(word, "formatted") {
			m.Formatted = true
		} else {
			break
		}
		content = rest
	}
	if m.Exclusive {
		content = ExclusiveMarker + content
	}
	m.Content = content

	for _, loc := range placeholderRE.FindAllStringSubmatchIndex(content, -1) {
		m.Slots = append(m.Slots, RoleSlot{
			Start: loc[0],
			End:   loc[1],
			Ref:   content[loc[2]:loc[3]],
		})
	}
	if len(m.Slots) == 0 {
		return SetupMessage{}, false
	}
	return m, true
}

// splitWord returns the first whitespace delimited word of s and the
// remainder with leading whitespace removed.
func splitWord(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// Refs returns the role reference of each slot.
func (m SetupMessage) Refs() []string {
	refs := make([]string, 0, len(m.Slots))
	for _, s := range m.Slots {
		refs = append(refs, s.Ref)
	}
	return refs
}

// RoleLookup resolves role references.
type RoleLookup interface {
	RoleByIDOrName(ref string) (Role, bool)
}

// WithEmojis renders the template with emojis bound to the slots in order.
// Slots without an emoji are left as placeholders and emojis without a slot
// are ignored. It returns false if a bound slot's role doesn't resolve.
func (m SetupMessage) WithEmojis(emojis []string, roles RoleLookup, shortcode func(string) string) (string, bool) {
	if len(emojis) == 0 {
		return m.Content, true
	}
	var b strings.Builder
	b.Grow(len(m.Content))

	last := 0
	for i, slot := range m.Slots {
		if i >= len(emojis) {
			break
		}
		role, ok := roles.RoleByIDOrName(slot.Ref)
		if !ok {
			return "", false
		}
		b.WriteString(m.Content[last:slot.Start])
		b.WriteString(RoleBinding(shortcode(emojis[i]), role.ID))
		if !m.Formatted {
			b.WriteString(" __" + role.Name + "__")
		}
		last = slot.End
	}
	b.WriteString(m.Content[last:])
	return b.String(), true
}

// TruncateContent cuts s to at most limit bytes without splitting a
// multi-byte character.
func TruncateContent(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
