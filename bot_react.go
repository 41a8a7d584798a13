package rolesbot

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
)

// OnReact handles a reaction being added (react) or removed on a message.
// Reactions on role messages request role actions, reactions by the author
// on setup replies drive the setup flow.
func (b *Bot) OnReact(ctx context.Context, channelID, messageID, userID, emoji string, react bool) {
	ctx = log.ContextWith(ctx, j.MKV{
		"channel": channelID,
		"message": messageID,
		"user":    userID,
	})
	if err := b.onReact(ctx, channelID, messageID, userID, emoji, react); err != nil {
		b.onReactError(ctx, channelID, userID, err)
	}
}

func (b *Bot) onReact(ctx context.Context, channelID, messageID, userID, emoji string, react bool) error {
	if userID == b.platform.BotID() {
		return nil
	}
	msg, err := b.platform.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		return errors.Wrap(err, "fetch message")
	}
	if msg.AuthorID != b.platform.BotID() || !msg.HasInteractions {
		return nil
	}
	if msg.RestrictReactions {
		return b.onRoleReact(ctx, msg, userID, emoji, react)
	}
	if len(msg.Replies) > 0 {
		return b.onSetupReact(ctx, msg, userID)
	}
	return nil
}

// onRoleReact queues the role action for a reaction on a role message.
func (b *Bot) onRoleReact(ctx context.Context, msg Message, userID, emoji string, react bool) error {
	rm, ok := b.roleMessage(msg)
	if !ok {
		return nil
	}
	key := b.options.Shortcode(emoji)
	action, ok := rm.ActionFor(key, react)
	if !ok {
		return nil
	}

	server, ok, err := b.serverOf(ctx, msg.ChannelID)
	if err != nil {
		return err
	} else if !ok {
		return nil
	}
	role, ok := server.Roles[rm.Roles[key]]
	if !ok {
		return &Error{Kind: KindInvalidRole, Role: rm.Roles[key]}
	}
	err = b.guard.CheckServerPermissions(ctx, server.ID, b.platform.BotID(), AssignRoles)
	if err != nil {
		return err
	}

	botMember, err := b.platform.FetchMember(ctx, server.ID, b.platform.BotID())
	if err != nil {
		return errors.Wrap(err, "fetch bot member")
	}
	member, err := b.platform.FetchMember(ctx, server.ID, userID)
	if err != nil {
		return errors.Wrap(err, "fetch member")
	}
	botRank := botMember.EffectiveRank(server)
	if botRank >= member.EffectiveRank(server) {
		return &Error{Kind: KindMemberRankTooHigh}
	}
	if botRank >= role.Rank {
		return &Error{Kind: KindRoleRankTooHigh, Role: role.Name}
	}

	b.options.Log.Debug(ctx, "queueing role action", j.MKV{
		"role":  role.ID,
		"react": react,
	})
	b.queue.Enqueue(ctx, server.ID, userID, action)
	return nil
}

// onSetupReact re-renders a setup reply from the author's reactions and
// replaces it with a role message once every slot is bound and the
// checkmark is set.
func (b *Bot) onSetupReact(ctx context.Context, msg Message, userID string) error {
	setup, ok, err := b.setupMessage(ctx, msg)
	if err != nil {
		return err
	} else if !ok {
		return nil
	}
	if setup.AuthorID != userID {
		return &Error{Kind: KindInvalidUser}
	}

	var (
		checked bool
		emojis  []string
	)
	for _, r := range msg.Reactions {
		if !r.Has(userID) {
			continue
		}
		if r.Emoji == Checkmark {
			checked = true
			continue
		}
		if len(emojis) < len(setup.Slots) {
			emojis = append(emojis, r.Emoji)
		}
	}

	server, ok, err := b.serverOf(ctx, msg.ChannelID)
	if err != nil {
		return err
	} else if !ok {
		return nil
	}
	content, ok := setup.WithEmojis(emojis, server, b.options.Shortcode)
	if !ok {
		b.options.Log.Debug(ctx, "setup message references a missing role")
		return nil
	}
	content = TruncateContent(content, MaxContentLen)

	if !checked || len(emojis) < len(setup.Slots) {
		if content == msg.Content {
			return nil
		}
		err := b.platform.EditMessage(ctx, msg.ChannelID, msg.ID, content)
		if err != nil {
			return errors.Wrap(err, "edit setup reply")
		}
		return nil
	}
	return b.finalizeSetup(ctx, msg, server, setup, emojis, content)
}

func (b *Bot) finalizeSetup(ctx context.Context, msg Message, server Server,
	setup SetupMessage, emojis []string, content string,
) error {
	rm, ok := ParseRoleMessage(content)
	if !ok {
		b.forgetSetupMessage(msg.ID)
		return nil
	}
	err := b.guard.RequireAbove(ctx, server.ID, setup.AuthorID, rm.RoleIDs()...)
	if err != nil {
		return err
	}

	// Only the confirmation that deletes the draft goes on to finalise it.
	// On failure the draft is kept so the author can confirm again.
	if err := b.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		return errors.Wrap(err, "delete setup reply")
	}
	b.forgetSetupMessage(msg.ID)

	sent, err := b.platform.SendMessage(ctx, msg.ChannelID, OutgoingMessage{
		Content:           content,
		Reactions:         emojis,
		RestrictReactions: true,
	})
	if err != nil {
		return errors.Wrap(err, "send role message")
	}
	b.rememberRoleMessage(sent.ID, rm)
	b.options.Log.Info(ctx, "created role message", j.MKV{
		"role_message": sent.ID,
		"roles":        rm.RoleIDs(),
		"exclusive":    rm.Exclusive,
	})
	return nil
}

func (b *Bot) onReactError(ctx context.Context, channelID, userID string, err error) {
	var e *Error
	if !errors.As(err, &e) {
		eventErrorsCounter.WithLabelValues("react", KindUnknown.String()).Inc()
		// NoReturnErr: Unclassified remote errors are only logged.
		b.options.Log.Error(ctx, errors.Wrap(err, "handle reaction"))
		return
	}
	eventErrorsCounter.WithLabelValues("react", e.Kind.String()).Inc()

	text, ok := errorText(e)
	if !ok {
		return
	}
	b.sendDM(ctx, userID, channelID, text)
}
