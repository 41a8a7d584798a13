package rolesbot

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"

	"github.com/luno/rolesbot/settings"
)

// OnMemberJoin gives a new member the server's autoroles. Autoroles which
// no longer exist are removed from the server's settings.
func (b *Bot) OnMemberJoin(ctx context.Context, serverID, userID string) {
	ctx = log.ContextWith(ctx, j.MKV{"server": serverID, "user": userID})
	if err := b.onMemberJoin(ctx, serverID, userID); err != nil {
		kind := KindUnknown
		var e *Error
		if errors.As(err, &e) {
			kind = e.Kind
		}
		eventErrorsCounter.WithLabelValues("member_join", kind.String()).Inc()
		// NoReturnErr: There's nobody to report autorole errors to.
		b.options.Log.Error(ctx, errors.Wrap(err, "give autoroles"))
	}
}

func (b *Bot) onMemberJoin(ctx context.Context, serverID, userID string) error {
	ss, ok, err := b.store.Get(ctx, serverID)
	if err != nil {
		return errors.Wrap(err, "get settings")
	}
	if !ok || len(ss.AutoRoles) == 0 {
		return nil
	}

	server, err := b.platform.FetchServer(ctx, serverID)
	if err != nil {
		return errors.Wrap(err, "fetch server")
	}
	ss = b.pruneAutoRoles(ctx, server, ss)
	if len(ss.AutoRoles) == 0 {
		return nil
	}

	user, err := b.platform.FetchUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "fetch user")
	}
	if user.Bot {
		return nil
	}

	botID := b.platform.BotID()
	if err := b.guard.CheckServerPermissions(ctx, serverID, botID, AssignRoles); err != nil {
		return err
	}
	if err := b.guard.CheckAboveRoles(ctx, serverID, botID, ss.AutoRoles...); err != nil {
		return err
	}

	b.options.Log.Info(ctx, "giving autoroles", j.KV("roles", ss.AutoRoles))
	b.queue.Enqueue(ctx, serverID, userID, Action{Give: ss.AutoRoles})
	return nil
}

// pruneAutoRoles drops autoroles which were deleted from the server and
// saves the result if anything changed.
func (b *Bot) pruneAutoRoles(ctx context.Context, server Server, ss settings.ServerSettings) settings.ServerSettings {
	var kept []string
	for _, id := range ss.AutoRoles {
		if _, ok := server.Roles[id]; ok {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(ss.AutoRoles) {
		return ss
	}

	pruned := settings.ServerSettings{ServerID: ss.ServerID, AutoRoles: kept}
	if err := b.store.Save(ctx, pruned); err != nil {
		// NoReturnErr: The remaining autoroles are still given.
		b.options.Log.Error(ctx, errors.Wrap(err, "save pruned autoroles"))
	}
	return pruned
}
