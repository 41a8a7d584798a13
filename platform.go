package rolesbot

import (
	"context"
	"math"

	"golang.org/x/text/cases"
)

// Role is a server role. A lower Rank denotes higher authority.
type Role struct {
	ID     string
	Name   string
	Rank   int64
	Colour string
}

type Server struct {
	ID      string
	Name    string
	OwnerID string
	Roles   map[string]Role
}

// RoleByIDOrName resolves a role by id, then by exact name and finally by
// case-insensitive name. Ties between names go to the highest ranked role.
func (s Server) RoleByIDOrName(ref string) (Role, bool) {
	if r, ok := s.Roles[ref]; ok {
		return r, true
	}
	if r, ok := s.findRole(func(name string) bool { return name == ref }); ok {
		return r, true
	}
	fold := cases.Fold()
	folded := fold.String(ref)
	return s.findRole(func(name string) bool {
		return fold.String(name) == folded
	})
}

func (s Server) findRole(match func(name string) bool) (Role, bool) {
	var (
		found Role
		ok    bool
	)
	for _, r := range s.Roles {
		if !match(r.Name) {
			continue
		}
		if !ok || r.Rank < found.Rank || (r.Rank == found.Rank && r.ID < found.ID) {
			found, ok = r, true
		}
	}
	return found, ok
}

// Member is a user's membership of a server.
type Member struct {
	ServerID string
	UserID   string
	Roles    RoleSet
}

// EffectiveRank returns the lowest rank of the member's roles. Members
// without roles rank below every role and the server owner ranks above all.
func (m Member) EffectiveRank(s Server) int64 {
	if s.OwnerID != "" && m.UserID == s.OwnerID {
		return math.MinInt64
	}
	rank := int64(math.MaxInt64)
	for id := range m.Roles {
		r, ok := s.Roles[id]
		if ok && r.Rank < rank {
			rank = r.Rank
		}
	}
	return rank
}

type User struct {
	ID       string
	Username string
	Bot      bool
}

// Channel is a text channel. ServerID is empty for direct messages.
type Channel struct {
	ID       string
	ServerID string
}

// Reaction lists the users that reacted with an emoji.
type Reaction struct {
	Emoji string
	Users []string
}

func (r Reaction) Has(userID string) bool {
	for _, u := range r.Users {
		if u == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string

	// Replies holds the ids of the messages this message replies to.
	Replies []string

	// Reactions are ordered by first use.
	Reactions []Reaction

	// HasInteractions is true if the message was sent with reaction
	// affordances, RestrictReactions if only those may be used.
	HasInteractions   bool
	RestrictReactions bool
}

// OutgoingMessage is a message to be sent.
type OutgoingMessage struct {
	Content string

	// ReplyTo is the id of the message being replied to, if any.
	ReplyTo string

	// Reactions are offered as affordances. If RestrictReactions is set,
	// members may only react with these.
	Reactions         []string
	RestrictReactions bool
}

// MemberAPI is the part of the remote API used by the Queue.
type MemberAPI interface {
	// FetchMember returns the member's current state, bypassing any cache.
	FetchMember(ctx context.Context, serverID, userID string) (Member, error)

	// ReplaceMemberRoles sets the member's roles to exactly roles. It
	// returns a *RetryAfterError when rate limited.
	ReplaceMemberRoles(ctx context.Context, serverID, userID string, roles RoleSet) error
}

// Authority is the data consulted by the Guard.
type Authority interface {
	BotID() string
	FetchServer(ctx context.Context, serverID string) (Server, error)
	FetchMember(ctx context.Context, serverID, userID string) (Member, error)
	ServerPermissions(ctx context.Context, serverID, userID string) (Permissions, error)
}

// Platform is the chat platform the Bot runs on: a cache of users,
// servers, channels and messages with fetch-or-error semantics, plus the
// remote mutation API.
type Platform interface {
	MemberAPI
	Authority

	FetchUser(ctx context.Context, userID string) (User, error)
	FetchChannel(ctx context.Context, channelID string) (Channel, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
	ChannelPermissions(ctx context.Context, channelID, userID string) (Permissions, error)

	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// EditRoleColour sets the role's colour, or clears it if colour is empty.
	EditRoleColour(ctx context.Context, serverID, roleID, colour string) error

	// OpenDM returns the direct message channel with the user.
	OpenDM(ctx context.Context, userID string) (Channel, error)
}

// Mention returns the text used to mention a user.
func Mention(userID string) string {
	return "<@" + userID + ">"
}
