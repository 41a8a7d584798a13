package rolesbot

import (
	"context"
	"regexp"
	"strings"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"

	"github.com/luno/rolesbot/settings"
)

var (
	roleMentionRE = regexp.MustCompile(`^<%([0-9A-HJKMNP-TV-Z]{26})>$`)
	colourTokenRE = regexp.MustCompile(`(?i)^#?[a-z0-9]+$`)
)

const maxColourLen = 128

// OnMessage handles a new message. Messages mentioning the bot are either
// commands or setup message templates.
func (b *Bot) OnMessage(ctx context.Context, msg Message) {
	ctx = log.ContextWith(ctx, j.MKV{"channel": msg.ChannelID, "message": msg.ID})
	if err := b.onMessage(ctx, msg); err != nil {
		b.onMessageError(ctx, msg, err)
	}
}

func (b *Bot) onMessage(ctx context.Context, msg Message) error {
	if msg.AuthorID == b.platform.BotID() {
		return nil
	}
	text, ok := b.stripMention(msg.Content)
	if !ok {
		return nil
	}
	server, ok, err := b.serverOf(ctx, msg.ChannelID)
	if err != nil {
		return err
	} else if !ok {
		return nil
	}

	user, err := b.platform.FetchUser(ctx, msg.AuthorID)
	if err != nil {
		return errors.Wrap(err, "fetch author")
	}
	if user.Bot {
		return nil
	}

	perms, err := b.platform.ChannelPermissions(ctx, msg.ChannelID, b.platform.BotID())
	if err != nil {
		return errors.Wrap(err, "channel permissions")
	}
	if !perms.Has(SendMessage) {
		return &Error{Kind: KindMissing, Permission: SendMessage}
	}

	text = strings.TrimSpace(text)
	command, args := splitWord(text)
	switch strings.ToLower(command) {
	case "", "help":
		return b.send(ctx, msg.ChannelID, helpText(b.platform.BotID()))
	case "auto", "autorole":
		return b.autoroleCommand(ctx, msg, server, args)
	case "color", "colour":
		return b.colourCommand(ctx, msg, server, args)
	}

	setup, ok := ParseSetupMessage(msg.AuthorID, text)
	if !ok {
		return nil
	}
	if err := b.guard.RequirePermissions(ctx, server.ID, msg.AuthorID, AssignRoles); err != nil {
		return err
	}
	if err := b.guard.RequireAbove(ctx, server.ID, msg.AuthorID, setup.Refs()...); err != nil {
		return err
	}

	reply, err := b.platform.SendMessage(ctx, msg.ChannelID, OutgoingMessage{
		Content:   setup.Content,
		ReplyTo:   msg.ID,
		Reactions: []string{Checkmark},
	})
	if err != nil {
		return errors.Wrap(err, "send setup reply")
	}
	b.rememberSetupMessage(reply.ID, setup)
	b.options.Log.Debug(ctx, "created setup message", j.MKV{
		"reply": reply.ID,
		"slots": len(setup.Slots),
	})
	return nil
}

func (b *Bot) send(ctx context.Context, channelID, content string) error {
	_, err := b.platform.SendMessage(ctx, channelID, OutgoingMessage{Content: content})
	if err != nil {
		return errors.Wrap(err, "send message", j.KV("channel", channelID))
	}
	return nil
}

// autoroleCommand lists, sets or clears the server's autoroles.
func (b *Bot) autoroleCommand(ctx context.Context, msg Message, server Server, args string) error {
	if args == "" {
		text := autoroleHelpText(b.platform.BotID())
		ss, ok, err := b.store.Get(ctx, server.ID)
		if err != nil {
			return errors.Wrap(err, "get settings")
		}
		if ok && len(ss.AutoRoles) > 0 {
			text += "\nCurrent AutoRoles:"
			for _, id := range ss.AutoRoles {
				name := id
				if r, ok := server.Roles[id]; ok {
					name = r.Name
				}
				text += "\n`" + name + "`"
			}
		}
		return b.send(ctx, msg.ChannelID, text)
	}

	err := b.guard.CheckServerPermissions(ctx, server.ID, b.platform.BotID(), AssignRoles)
	if err != nil {
		return err
	}
	err = b.guard.CheckServerPermissions(ctx, server.ID, msg.AuthorID, AssignRoles, ManageServer)
	if err != nil {
		return err
	}

	ss := settings.ServerSettings{ServerID: server.ID}
	clearing := args == "clear"
	if !clearing {
		seen := NewRoleSet()
		for _, ref := range strings.Fields(args) {
			ref = roleMentionID(ref)
			role, ok := server.RoleByIDOrName(ref)
			if !ok {
				return &Error{Kind: KindInvalidRole, Role: ref}
			}
			if err := b.guard.RequireAbove(ctx, server.ID, msg.AuthorID, role.ID); err != nil {
				return err
			}
			if seen.Has(role.ID) {
				continue
			}
			seen.Add(role.ID)
			ss.AutoRoles = append(ss.AutoRoles, role.ID)
			if len(ss.AutoRoles) > settings.MaxAutoRoles {
				return b.send(ctx, msg.ChannelID, "No more than 25 autoroles!")
			}
		}
	}
	if err := b.store.Save(ctx, ss); err != nil {
		return errors.Wrap(err, "save settings")
	}
	b.options.Log.Info(ctx, "autoroles updated", j.MKV{
		"server": server.ID,
		"roles":  ss.AutoRoles,
	})

	if clearing {
		return b.send(ctx, msg.ChannelID, "AutoRole cleared!")
	}
	return b.send(ctx, msg.ChannelID, "AutoRole set!")
}

// colourCommand sets or clears a role's colour.
func (b *Bot) colourCommand(ctx context.Context, msg Message, server Server, args string) error {
	if args == "" {
		return b.send(ctx, msg.ChannelID, colourHelpText(b.platform.BotID()))
	}
	ref, rest := splitWord(args)
	ref = roleMentionID(ref)
	role, ok := server.RoleByIDOrName(ref)
	if !ok {
		return &Error{Kind: KindInvalidRole, Role: ref}
	}
	if err := b.guard.RequirePermissions(ctx, server.ID, msg.AuthorID, ManageRole); err != nil {
		return err
	}
	if err := b.guard.RequireAbove(ctx, server.ID, msg.AuthorID, role.ID); err != nil {
		return err
	}

	colour := ParseColours(rest)
	if len(colour) > maxColourLen {
		return Custom("Colour must be 128 characters or less!\n%s", colour)
	}
	if err := b.platform.EditRoleColour(ctx, server.ID, role.ID, colour); err != nil {
		return errors.Wrap(err, "edit role colour", j.KV("role", role.ID))
	}
	return b.send(ctx, msg.ChannelID, "Role colour set!")
}

// ParseColours turns two or more plain colours into a gradient. Anything
// else is returned trimmed but otherwise unchanged.
func ParseColours(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return s
	}
	for _, f := range fields {
		if !colourTokenRE.MatchString(f) {
			return s
		}
	}
	return "linear-gradient(to right," + strings.Join(fields, ",") + ")"
}

// roleMentionID returns the role id of a role mention, or ref unchanged.
func roleMentionID(ref string) string {
	if m := roleMentionRE.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ref
}

func (b *Bot) onMessageError(ctx context.Context, msg Message, err error) {
	var e *Error
	if !errors.As(err, &e) {
		eventErrorsCounter.WithLabelValues("message", KindUnknown.String()).Inc()
		// NoReturnErr: Unclassified remote errors are only logged.
		b.options.Log.Error(ctx, errors.Wrap(err, "handle message"))
		return
	}
	eventErrorsCounter.WithLabelValues("message", e.Kind.String()).Inc()

	text, ok := errorText(e)
	if !ok {
		return
	}
	if e.Kind == KindMissing && e.Permission == SendMessage {
		b.sendDM(ctx, msg.AuthorID, msg.ChannelID, text)
		return
	}
	if err := b.send(ctx, msg.ChannelID, text); err != nil {
		// NoReturnErr: Best effort.
		b.options.Log.Error(ctx, err)
	}
}
