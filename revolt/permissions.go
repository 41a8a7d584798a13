package revolt

import (
	"sort"

	"github.com/luno/rolesbot"
)

// directPermissions are held by both users of a direct message channel.
var directPermissions = rolesbot.Of(
	rolesbot.ViewChannel,
	rolesbot.ReadMessageHistory,
	rolesbot.SendMessage,
	rolesbot.SendEmbeds,
	rolesbot.UploadFiles,
	rolesbot.React,
)

// memberRoles returns the ids of the member's roles that exist on the
// server, ordered from the lowest ranked to the highest ranked.
func memberRoles(s server, m member) []string {
	var ids []string
	for _, id := range m.Roles {
		if _, ok := s.Roles[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := s.Roles[ids[i]].Rank, s.Roles[ids[j]].Rank
		if ri != rj {
			return ri > rj
		}
		return ids[i] > ids[j]
	})
	return ids
}

// serverPermissions applies the member's role overrides to the server's
// default permissions, higher ranked roles last.
func serverPermissions(s server, m member) rolesbot.Permissions {
	if m.ID.User == s.Owner {
		return rolesbot.AllPermissions
	}
	ps := rolesbot.Permissions(s.DefaultPermissions)
	for _, id := range memberRoles(s, m) {
		ps = s.Roles[id].Permissions.apply(ps)
	}
	return ps
}

// channelPermissions returns the user's permissions in a channel. Server
// channels start from the server permissions and apply the channel's
// default override followed by its role overrides.
func channelPermissions(c channel, s server, m member, userID string) rolesbot.Permissions {
	switch c.ChannelType {
	case channelSaved:
		if c.Owner == userID {
			return rolesbot.AllPermissions
		}
		return 0
	case channelDirect:
		for _, r := range c.Recipients {
			if r == userID {
				return directPermissions
			}
		}
		return 0
	case channelGroup:
		if c.Owner == userID {
			return rolesbot.AllPermissions
		}
		if c.Permissions != nil {
			return rolesbot.Permissions(*c.Permissions) | rolesbot.Of(rolesbot.ViewChannel)
		}
		return directPermissions
	}

	if userID == s.Owner {
		return rolesbot.AllPermissions
	}
	ps := serverPermissions(s, m)
	if c.DefaultPermissions != nil {
		ps = c.DefaultPermissions.apply(ps)
	}
	for _, id := range memberRoles(s, m) {
		if o, ok := c.RolePermissions[id]; ok {
			ps = o.apply(ps)
		}
	}
	if !ps.Has(rolesbot.ViewChannel) {
		return 0
	}
	return ps
}
