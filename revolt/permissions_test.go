package revolt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/luno/rolesbot"
)

func TestServerPermissions(t *testing.T) {
	s := server{
		Owner:              "owner",
		DefaultPermissions: uint64(rolesbot.Of(rolesbot.ViewChannel, rolesbot.SendMessage, rolesbot.React)),
		Roles: map[string]role{
			"mod": {Rank: 1, Permissions: override{
				Allow: uint64(rolesbot.Of(rolesbot.AssignRoles, rolesbot.React)),
			}},
			"muted": {Rank: 5, Permissions: override{
				Deny: uint64(rolesbot.Of(rolesbot.SendMessage, rolesbot.React)),
			}},
		},
	}

	testCases := []struct {
		name  string
		user  string
		roles []string
		exp   rolesbot.Permissions
	}{
		{name: "owner has everything",
			user: "owner",
			exp:  rolesbot.AllPermissions,
		},
		{name: "no roles has defaults",
			user: "u",
			exp:  rolesbot.Of(rolesbot.ViewChannel, rolesbot.SendMessage, rolesbot.React),
		},
		{name: "deny applies",
			user:  "u",
			roles: []string{"muted"},
			exp:   rolesbot.Of(rolesbot.ViewChannel),
		},
		{name: "higher ranked role applies last",
			user:  "u",
			roles: []string{"mod", "muted"},
			exp:   rolesbot.Of(rolesbot.ViewChannel, rolesbot.AssignRoles, rolesbot.React),
		},
		{name: "unknown roles ignored",
			user:  "u",
			roles: []string{"gone"},
			exp:   rolesbot.Of(rolesbot.ViewChannel, rolesbot.SendMessage, rolesbot.React),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := member{ID: memberID{User: tc.user}, Roles: tc.roles}
			assert.Equal(t, tc.exp, serverPermissions(s, m))
		})
	}
}

func TestChannelPermissions(t *testing.T) {
	s := server{
		Owner:              "owner",
		DefaultPermissions: uint64(rolesbot.Of(rolesbot.ViewChannel, rolesbot.SendMessage)),
		Roles: map[string]role{
			"mod": {Rank: 1},
		},
	}
	readOnly := &override{Deny: uint64(rolesbot.Of(rolesbot.SendMessage))}
	hidden := &override{Deny: uint64(rolesbot.Of(rolesbot.ViewChannel))}
	modsWrite := map[string]override{"mod": {Allow: uint64(rolesbot.Of(rolesbot.SendMessage))}}

	testCases := []struct {
		name  string
		ch    channel
		user  string
		roles []string
		exp   rolesbot.Permissions
	}{
		{name: "text channel inherits server",
			ch:   channel{ChannelType: channelText},
			user: "u",
			exp:  rolesbot.Of(rolesbot.ViewChannel, rolesbot.SendMessage),
		},
		{name: "default override",
			ch:   channel{ChannelType: channelText, DefaultPermissions: readOnly},
			user: "u",
			exp:  rolesbot.Of(rolesbot.ViewChannel),
		},
		{name: "role override after default",
			ch:    channel{ChannelType: channelText, DefaultPermissions: readOnly, RolePermissions: modsWrite},
			user:  "u",
			roles: []string{"mod"},
			exp:   rolesbot.Of(rolesbot.ViewChannel, rolesbot.SendMessage),
		},
		{name: "hidden channel has nothing",
			ch:   channel{ChannelType: channelText, DefaultPermissions: hidden},
			user: "u",
		},
		{name: "owner sees hidden channel",
			ch:   channel{ChannelType: channelText, DefaultPermissions: hidden},
			user: "owner",
			exp:  rolesbot.AllPermissions,
		},
		{name: "direct message recipient",
			ch:   channel{ChannelType: channelDirect, Recipients: []string{"u", "v"}},
			user: "u",
			exp:  directPermissions,
		},
		{name: "direct message stranger",
			ch:   channel{ChannelType: channelDirect, Recipients: []string{"v", "w"}},
			user: "u",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := member{ID: memberID{User: tc.user}, Roles: tc.roles}
			assert.Equal(t, tc.exp, channelPermissions(tc.ch, s, m, tc.user))
		})
	}
}
