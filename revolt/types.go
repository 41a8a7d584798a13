package revolt

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/luno/rolesbot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// override is a permission override as sent by the API.
type override struct {
	Allow uint64 `json:"a"`
	Deny  uint64 `json:"d"`
}

func (o override) apply(ps rolesbot.Permissions) rolesbot.Permissions {
	return (ps | rolesbot.Permissions(o.Allow)) &^ rolesbot.Permissions(o.Deny)
}

type userStatus struct {
	Text string `json:"text,omitempty"`
}

type botInfo struct {
	Owner string `json:"owner"`
}

type user struct {
	ID       string      `json:"_id"`
	Username string      `json:"username"`
	Bot      *botInfo    `json:"bot,omitempty"`
	Status   *userStatus `json:"status,omitempty"`
}

func (u user) toUser() rolesbot.User {
	return rolesbot.User{ID: u.ID, Username: u.Username, Bot: u.Bot != nil}
}

type role struct {
	Name        string   `json:"name"`
	Rank        int64    `json:"rank"`
	Colour      string   `json:"colour,omitempty"`
	Permissions override `json:"permissions"`
}

type server struct {
	ID                 string          `json:"_id"`
	Owner              string          `json:"owner"`
	Name               string          `json:"name"`
	Roles              map[string]role `json:"roles"`
	DefaultPermissions uint64          `json:"default_permissions"`
}

func (s server) toServer() rolesbot.Server {
	roles := make(map[string]rolesbot.Role, len(s.Roles))
	for id, r := range s.Roles {
		roles[id] = rolesbot.Role{ID: id, Name: r.Name, Rank: r.Rank, Colour: r.Colour}
	}
	return rolesbot.Server{ID: s.ID, Name: s.Name, OwnerID: s.Owner, Roles: roles}
}

const (
	channelText   = "TextChannel"
	channelVoice  = "VoiceChannel"
	channelDirect = "DirectMessage"
	channelGroup  = "Group"
	channelSaved  = "SavedMessages"
)

type channel struct {
	ID                 string              `json:"_id"`
	ChannelType        string              `json:"channel_type"`
	Server             string              `json:"server,omitempty"`
	DefaultPermissions *override           `json:"default_permissions,omitempty"`
	RolePermissions    map[string]override `json:"role_permissions,omitempty"`
	Recipients         []string            `json:"recipients,omitempty"`
	Owner              string              `json:"owner,omitempty"`
	Permissions        *uint64             `json:"permissions,omitempty"`
}

func (c channel) toChannel() rolesbot.Channel {
	return rolesbot.Channel{ID: c.ID, ServerID: c.Server}
}

type memberID struct {
	Server string `json:"server"`
	User   string `json:"user"`
}

type member struct {
	ID    memberID `json:"_id"`
	Roles []string `json:"roles,omitempty"`
}

func (m member) toMember() rolesbot.Member {
	return rolesbot.Member{
		ServerID: m.ID.Server,
		UserID:   m.ID.User,
		Roles:    rolesbot.NewRoleSet(m.Roles...),
	}
}

type interactions struct {
	Reactions         []string `json:"reactions,omitempty"`
	RestrictReactions bool     `json:"restrict_reactions,omitempty"`
}

// reactions keeps the order in which the API lists emojis, which is the
// order they were first used in.
type reactions []rolesbot.Reaction

func (rs *reactions) UnmarshalJSON(b []byte) error {
	it := json.BorrowIterator(b)
	defer json.ReturnIterator(it)

	var out reactions
	it.ReadMapCB(func(it *jsoniter.Iterator, emoji string) bool {
		var users []string
		it.ReadVal(&users)
		out = append(out, rolesbot.Reaction{Emoji: emoji, Users: users})
		return true
	})
	if it.Error != nil {
		return it.Error
	}
	*rs = out
	return nil
}

func (rs reactions) MarshalJSON() ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, r := range rs {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(r.Emoji)
		stream.WriteVal(r.Users)
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

type message struct {
	ID           string        `json:"_id"`
	Channel      string        `json:"channel"`
	Author       string        `json:"author"`
	Content      string        `json:"content,omitempty"`
	Replies      []string      `json:"replies,omitempty"`
	Reactions    reactions     `json:"reactions,omitempty"`
	Interactions *interactions `json:"interactions,omitempty"`
}

func (m message) toMessage() rolesbot.Message {
	msg := rolesbot.Message{
		ID:        m.ID,
		ChannelID: m.Channel,
		AuthorID:  m.Author,
		Content:   m.Content,
		Replies:   m.Replies,
		Reactions: m.Reactions,
	}
	if m.Interactions != nil {
		msg.HasInteractions = true
		msg.RestrictReactions = m.Interactions.RestrictReactions
	}
	return msg
}

type replyIntent struct {
	ID      string `json:"id"`
	Mention bool   `json:"mention"`
}

type sendMessage struct {
	Content      string        `json:"content"`
	Replies      []replyIntent `json:"replies,omitempty"`
	Interactions *interactions `json:"interactions,omitempty"`
}

type editMessage struct {
	Content string `json:"content"`
}

type editMember struct {
	Roles []string `json:"roles"`
}

type editRole struct {
	Colour string   `json:"colour,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

type editUser struct {
	Status *userStatus `json:"status,omitempty"`
}

// apiError is the body of a failed request.
type apiError struct {
	Type       string `json:"type"`
	Permission string `json:"permission,omitempty"`

	// RetryAfter is set on rate limited requests, in milliseconds.
	RetryAfter int64 `json:"retry_after,omitempty"`
}
