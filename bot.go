package rolesbot

import (
	"context"
	"strings"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/rolesbot/settings"
)

// Bot handles chat events. It turns setup messages into role messages,
// reactions on role messages into role actions and member joins into
// autorole actions. Every action is checked by the Guard and applied
// through the Queue.
//
// Each event handler may be called concurrently.
type Bot struct {
	platform Platform
	store    settings.Store
	guard    Guard
	queue    *Queue
	options  options

	// setupMessages holds drafts keyed by the id of the bot's reply.
	setupMu       sync.RWMutex
	setupMessages map[string]SetupMessage

	// roleMessages holds finalized role messages keyed by message id.
	roleMu       sync.RWMutex
	roleMessages map[string]RoleMessage
}

// New returns a Bot and starts its role edit Queue.
// Call Close to stop the Queue.
func New(p Platform, store settings.Store, opts ...Option) *Bot {
	o := buildOptions(opts)
	return &Bot{
		platform:      p,
		store:         store,
		guard:         NewGuard(p),
		queue:         NewQueue(p, o.QueueOptions),
		options:       o,
		setupMessages: make(map[string]SetupMessage),
		roleMessages:  make(map[string]RoleMessage),
	}
}

// Close stops the Queue, dropping any pending edits.
func (b *Bot) Close() {
	b.queue.Close()
}

// OnMessageDelete forgets the setup or role message with the given id.
func (b *Bot) OnMessageDelete(ctx context.Context, channelID, messageID string) {
	b.setupMu.Lock()
	delete(b.setupMessages, messageID)
	b.setupMu.Unlock()

	b.roleMu.Lock()
	delete(b.roleMessages, messageID)
	b.roleMu.Unlock()
}

// serverOf returns the server a channel belongs to, or false for
// direct message channels.
func (b *Bot) serverOf(ctx context.Context, channelID string) (Server, bool, error) {
	ch, err := b.platform.FetchChannel(ctx, channelID)
	if err != nil {
		return Server{}, false, errors.Wrap(err, "fetch channel", j.KV("channel", channelID))
	}
	if ch.ServerID == "" {
		return Server{}, false, nil
	}
	s, err := b.platform.FetchServer(ctx, ch.ServerID)
	if err != nil {
		return Server{}, false, errors.Wrap(err, "fetch server", j.KV("server", ch.ServerID))
	}
	return s, true, nil
}

// roleMessage returns the role message msg is, parsing its content on a
// cache miss.
func (b *Bot) roleMessage(msg Message) (RoleMessage, bool) {
	b.roleMu.RLock()
	rm, ok := b.roleMessages[msg.ID]
	b.roleMu.RUnlock()
	if ok {
		return rm, true
	}

	rm, ok = ParseRoleMessage(msg.Content)
	if !ok {
		return RoleMessage{}, false
	}
	b.rememberRoleMessage(msg.ID, rm)
	return rm, true
}

func (b *Bot) rememberRoleMessage(id string, rm RoleMessage) {
	b.roleMu.Lock()
	b.roleMessages[id] = rm
	b.roleMu.Unlock()
}

// setupMessage returns the draft behind the bot's reply with the given id,
// re-parsing the replied-to template on a cache miss.
func (b *Bot) setupMessage(ctx context.Context, reply Message) (SetupMessage, bool, error) {
	b.setupMu.RLock()
	sm, ok := b.setupMessages[reply.ID]
	b.setupMu.RUnlock()
	if ok {
		return sm, true, nil
	}
	if len(reply.Replies) == 0 {
		return SetupMessage{}, false, nil
	}

	tmpl, err := b.platform.FetchMessage(ctx, reply.ChannelID, reply.Replies[0])
	if err != nil {
		return SetupMessage{}, false, errors.Wrap(err, "fetch setup template")
	}
	text, ok := b.stripMention(tmpl.Content)
	if !ok {
		return SetupMessage{}, false, nil
	}
	sm, ok = ParseSetupMessage(tmpl.AuthorID, text)
	if !ok {
		return SetupMessage{}, false, nil
	}
	b.rememberSetupMessage(reply.ID, sm)
	return sm, true, nil
}

func (b *Bot) rememberSetupMessage(id string, sm SetupMessage) {
	b.setupMu.Lock()
	b.setupMessages[id] = sm
	b.setupMu.Unlock()
}

func (b *Bot) forgetSetupMessage(id string) {
	b.setupMu.Lock()
	delete(b.setupMessages, id)
	b.setupMu.Unlock()
}

func (b *Bot) stripMention(content string) (string, bool) {
	return strings.CutPrefix(content, Mention(b.platform.BotID()))
}
