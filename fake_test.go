package rolesbot

import (
	"context"
	"strconv"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

const (
	testServer  = "srv"
	testChannel = "general"

	botID   = "bot"
	ownerID = "owner"
	adminID = "admin"
	modID   = "mod"
	aliceID = "alice"
	otherID = "otherbot"

	roleAdmin = "01HZZADM000000000000000000"
	roleBot   = "01HZZB0T000000000000000000"
	roleMod   = "01HZZM0D000000000000000000"
	roleRed   = "01HZZRED000000000000000000"
	roleBlue  = "01HZZB1VE00000000000000000"
	roleGreen = "01HZZGRN000000000000000000"
)

var errNotFound = errors.New("not found", j.C("ERR_3f0c9a21d7b64e58"))

func testRoles() map[string]Role {
	return map[string]Role{
		roleAdmin: {ID: roleAdmin, Name: "Admin", Rank: 0},
		roleBot:   {ID: roleBot, Name: "Bot", Rank: 1},
		roleMod:   {ID: roleMod, Name: "Mod", Rank: 2},
		roleRed:   {ID: roleRed, Name: "Red", Rank: 3},
		roleBlue:  {ID: roleBlue, Name: "Blue", Rank: 4},
		roleGreen: {ID: roleGreen, Name: "Green", Rank: 5},
	}
}

type sentMessage struct {
	ID        string
	ChannelID string
	OutgoingMessage
}

type replaceCall struct {
	MemberID string
	Roles    []string
}

// fakePlatform is a single server chat platform held in memory.
type fakePlatform struct {
	mu sync.Mutex

	server       Server
	users        map[string]User
	members      map[string]RoleSet
	perms        map[string]Permissions
	channelPerms map[string]Permissions
	messages     map[string]Message
	nextID       int

	sent     []sentMessage
	edited   map[string]string
	deleted  []string
	colours  map[string]string
	replaced []replaceCall

	// replaceErr is called before each role replacement. A non-nil error
	// fails the replacement.
	replaceErr func(memberID string) error

	// deleteErr fails message deletes when set.
	deleteErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		server: Server{
			ID:      testServer,
			Name:    "Test Server",
			OwnerID: ownerID,
			Roles:   testRoles(),
		},
		users: map[string]User{
			botID:   {ID: botID, Username: "rolesbot", Bot: true},
			ownerID: {ID: ownerID, Username: "owner"},
			adminID: {ID: adminID, Username: "admin"},
			modID:   {ID: modID, Username: "mod"},
			aliceID: {ID: aliceID, Username: "alice"},
			otherID: {ID: otherID, Username: "otherbot", Bot: true},
		},
		members: map[string]RoleSet{
			botID:   NewRoleSet(roleBot),
			ownerID: NewRoleSet(),
			adminID: NewRoleSet(roleAdmin),
			modID:   NewRoleSet(roleMod),
			aliceID: NewRoleSet(),
			otherID: NewRoleSet(),
		},
		perms: map[string]Permissions{
			botID:   Of(AssignRoles, ManageRole, SendMessage),
			ownerID: AllPermissions,
			adminID: AllPermissions,
			modID:   Of(AssignRoles, ManageRole, ManageServer, SendMessage),
			aliceID: Of(SendMessage),
		},
		channelPerms: make(map[string]Permissions),
		messages:     make(map[string]Message),
		edited:       make(map[string]string),
		colours:      make(map[string]string),
	}
}

func (f *fakePlatform) BotID() string {
	return botID
}

func (f *fakePlatform) FetchServer(_ context.Context, serverID string) (Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if serverID != f.server.ID {
		return Server{}, errors.Wrap(errNotFound, "server", j.KV("server", serverID))
	}
	s := f.server
	s.Roles = make(map[string]Role, len(f.server.Roles))
	for id, r := range f.server.Roles {
		s.Roles[id] = r
	}
	return s, nil
}

func (f *fakePlatform) FetchMember(_ context.Context, serverID, userID string) (Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles, ok := f.members[userID]
	if serverID != f.server.ID || !ok {
		return Member{}, errors.Wrap(errNotFound, "member", j.KV("user", userID))
	}
	return Member{ServerID: serverID, UserID: userID, Roles: roles.Clone()}, nil
}

func (f *fakePlatform) ReplaceMemberRoles(_ context.Context, serverID, userID string, roles RoleSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		if err := f.replaceErr(userID); err != nil {
			return err
		}
	}
	f.members[userID] = roles.Clone()
	f.replaced = append(f.replaced, replaceCall{MemberID: userID, Roles: roles.Slice()})
	return nil
}

func (f *fakePlatform) ServerPermissions(_ context.Context, serverID, userID string) (Permissions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[userID], nil
}

func (f *fakePlatform) ChannelPermissions(_ context.Context, channelID, userID string) (Permissions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.channelPerms[userID]; ok {
		return p, nil
	}
	return f.perms[userID], nil
}

func (f *fakePlatform) FetchUser(_ context.Context, userID string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return User{}, errors.Wrap(errNotFound, "user", j.KV("user", userID))
	}
	return u, nil
}

// FetchChannel returns a server channel for any id except dm channels.
func (f *fakePlatform) FetchChannel(_ context.Context, channelID string) (Channel, error) {
	if len(channelID) > 3 && channelID[:3] == "dm-" {
		return Channel{ID: channelID}, nil
	}
	return Channel{ID: channelID, ServerID: f.server.ID}, nil
}

func (f *fakePlatform) FetchMessage(_ context.Context, channelID, messageID string) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return Message{}, errors.Wrap(errNotFound, "message", j.KV("message", messageID))
	}
	m.Reactions = append([]Reaction(nil), m.Reactions...)
	return m, nil
}

func (f *fakePlatform) SendMessage(_ context.Context, channelID string, msg OutgoingMessage) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := Message{
		ID:                "sent-" + strconv.Itoa(f.nextID),
		ChannelID:         channelID,
		AuthorID:          botID,
		Content:           msg.Content,
		HasInteractions:   len(msg.Reactions) > 0,
		RestrictReactions: msg.RestrictReactions,
	}
	if msg.ReplyTo != "" {
		m.Replies = []string{msg.ReplyTo}
	}
	for _, e := range msg.Reactions {
		m.Reactions = append(m.Reactions, Reaction{Emoji: e, Users: []string{botID}})
	}
	f.messages[m.ID] = m
	f.sent = append(f.sent, sentMessage{ID: m.ID, ChannelID: channelID, OutgoingMessage: msg})
	return m, nil
}

func (f *fakePlatform) EditMessage(_ context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return errors.Wrap(errNotFound, "message", j.KV("message", messageID))
	}
	m.Content = content
	f.messages[messageID] = m
	f.edited[messageID] = content
	return nil
}

func (f *fakePlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.messages, messageID)
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakePlatform) EditRoleColour(_ context.Context, serverID, roleID, colour string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.colours[roleID] = colour
	return nil
}

func (f *fakePlatform) OpenDM(_ context.Context, userID string) (Channel, error) {
	return Channel{ID: "dm-" + userID}, nil
}

// post adds a message written by a user.
func (f *fakePlatform) post(authorID, content string) Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := Message{
		ID:        "posted-" + strconv.Itoa(f.nextID),
		ChannelID: testChannel,
		AuthorID:  authorID,
		Content:   content,
	}
	f.messages[m.ID] = m
	return m
}

// react records a user's reaction on a message.
func (f *fakePlatform) react(messageID, userID, emoji string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.messages[messageID]
	for i, r := range m.Reactions {
		if r.Emoji == emoji {
			if !r.Has(userID) {
				m.Reactions[i].Users = append(r.Users, userID)
			}
			f.messages[messageID] = m
			return
		}
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, Users: []string{userID}})
	f.messages[messageID] = m
}

func (f *fakePlatform) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakePlatform) lastSent() sentMessage {
	sent := f.sentMessages()
	if len(sent) == 0 {
		return sentMessage{}
	}
	return sent[len(sent)-1]
}

func (f *fakePlatform) memberRoles(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[userID].Slice()
}

func (f *fakePlatform) replaceCalls() []replaceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]replaceCall(nil), f.replaced...)
}
