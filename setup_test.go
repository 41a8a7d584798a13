package rolesbot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetupMessage(t *testing.T) {
	testCases := []struct {
		name  string
		text  string
		exp   SetupMessage
		expOK bool
	}{
		{
			name: "plain",
			text: "Pick {ROLE:Red} or {role:Blue}",
			exp: SetupMessage{
				AuthorID: modID,
				Content:  "Pick {ROLE:Red} or {role:Blue}",
				Slots: []RoleSlot{
					{Start: 5, End: 15, Ref: "Red"},
					{Start: 19, End: 30, Ref: "Blue"},
				},
			},
			expOK: true,
		},
		{
			name: "keywords",
			text: "  exclusive  formatted Pick {ROLE:Red}",
			exp: SetupMessage{
				AuthorID:  modID,
				Content:   "[](EXCLUSIVE)Pick {ROLE:Red}",
				Slots:     []RoleSlot{{Start: 18, End: 28, Ref: "Red"}},
				Exclusive: true,
				Formatted: true,
			},
			expOK: true,
		},
		{
			name: "keywords only count once",
			text: "FORMATTED Exclusive exclusive {ROLE:Red}",
			exp: SetupMessage{
				AuthorID:  modID,
				Content:   "[](EXCLUSIVE)exclusive {ROLE:Red}",
				Slots:     []RoleSlot{{Start: 23, End: 33, Ref: "Red"}},
				Exclusive: true,
				Formatted: true,
			},
			expOK: true,
		},
		{
			name: "role id",
			text: "{ROLE:" + roleGreen + "}",
			exp: SetupMessage{
				AuthorID: modID,
				Content:  "{ROLE:" + roleGreen + "}",
				Slots:    []RoleSlot{{Start: 0, End: 33, Ref: roleGreen}},
			},
			expOK: true,
		},
		{
			name: "no placeholders",
			text: "exclusive Pick a colour",
		},
		{
			name: "empty reference",
			text: "Pick {ROLE:}",
		},
		{
			name: "reference too long",
			text: "Pick {ROLE:" + strings.Repeat("x", 33) + "}",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, ok := ParseSetupMessage(modID, tc.text)
			assert.Equal(t, tc.expOK, ok)
			assert.Equal(t, tc.exp, m)
		})
	}
}

func TestParseSetupMessageIdempotent(t *testing.T) {
	texts := []string{
		"Pick {ROLE:Red} or {role:Blue}",
		"exclusive {ROLE:Red}{ROLE:Green}\n{ROLE:Blue}",
		"formatted {ROLE:a b c} {ROLE:{ROLE:Red}}",
	}
	for _, text := range texts {
		first, ok := ParseSetupMessage(modID, text)
		require.True(t, ok)

		second, ok := ParseSetupMessage(modID, first.Content)
		require.True(t, ok)
		assert.Equal(t, first.Refs(), second.Refs())
		assert.Equal(t, first.Content, second.Content)
	}
}

func identity(s string) string {
	return s
}

func TestWithEmojis(t *testing.T) {
	server := Server{Roles: testRoles()}

	testCases := []struct {
		name   string
		text   string
		emojis []string
	}{
		{
			name: "none",
			text: "Pick {ROLE:Red} or {role:Blue}",
		},
		{
			name:   "partial",
			text:   "Pick {ROLE:Red} or {role:Blue}",
			emojis: []string{"red_circle"},
		},
		{
			name:   "complete",
			text:   "Pick {ROLE:Red} or {role:Blue}",
			emojis: []string{"red_circle", "blue_circle"},
		},
		{
			name:   "extra emojis",
			text:   "Pick {ROLE:Red}",
			emojis: []string{"red_circle", "blue_circle"},
		},
		{
			name:   "formatted",
			text:   "formatted {ROLE:Red} Red team\n{ROLE:" + roleBlue + "} Blue team",
			emojis: []string{"red_circle", "blue_circle"},
		},
		{
			name:   "exclusive",
			text:   "exclusive Pick one: {ROLE:red} {ROLE:green}",
			emojis: []string{"red_circle", "green_circle"},
		},
	}

	g := goldie.New(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, ok := ParseSetupMessage(modID, tc.text)
			require.True(t, ok)

			content, ok := m.WithEmojis(tc.emojis, server, identity)
			require.True(t, ok)
			g.Assert(t, t.Name(), []byte(content))
		})
	}
}

func TestWithEmojisMissingRole(t *testing.T) {
	server := Server{Roles: testRoles()}
	m, ok := ParseSetupMessage(modID, "{ROLE:Red} {ROLE:Purple}")
	require.True(t, ok)

	_, ok = m.WithEmojis([]string{"a"}, server, identity)
	assert.True(t, ok, "unbound slots aren't resolved")

	_, ok = m.WithEmojis([]string{"a", "b"}, server, identity)
	assert.False(t, ok)
}

func TestWithEmojisParsesAsRoleMessage(t *testing.T) {
	server := Server{Roles: testRoles()}
	m, ok := ParseSetupMessage(modID, "exclusive {ROLE:Red} {ROLE:Blue} {ROLE:Green}")
	require.True(t, ok)

	content, ok := m.WithEmojis([]string{"a", "b", "c"}, server, identity)
	require.True(t, ok)

	rm, ok := ParseRoleMessage(content)
	require.True(t, ok)
	assert.True(t, rm.Exclusive)
	assert.Equal(t, map[string]string{
		"a": roleRed,
		"b": roleBlue,
		"c": roleGreen,
	}, rm.Roles)
}

func TestTruncateContent(t *testing.T) {
	testCases := []struct {
		name  string
		s     string
		limit int
		exp   string
	}{
		{name: "short", s: "hello", limit: 10, exp: "hello"},
		{name: "exact", s: "hello", limit: 5, exp: "hello"},
		{name: "ascii", s: "hello", limit: 3, exp: "hel"},
		{name: "inside rune", s: "héllo", limit: 2, exp: "h"},
		{name: "after rune", s: "héllo", limit: 3, exp: "hé"},
		{name: "inside emoji", s: "a🔧", limit: 4, exp: "a"},
		{name: "zero", s: "hello", limit: 0, exp: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, TruncateContent(tc.s, tc.limit))
		})
	}
}

func TestTruncateContentValid(t *testing.T) {
	s := strings.Repeat("ab🔧é✅", 200)
	for limit := 0; limit <= len(s)+1; limit++ {
		out := TruncateContent(s, limit)
		require.LessOrEqual(t, len(out), limit)
		require.True(t, utf8.ValidString(out))
		require.True(t, strings.HasPrefix(s, out))
		require.Greater(t, len(out), limit-utf8.UTFMax)
	}
}
