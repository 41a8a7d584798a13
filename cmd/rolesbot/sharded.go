package main

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/rolesbot"
	"github.com/luno/rolesbot/revolt"
)

type channelFetcher interface {
	FetchChannel(ctx context.Context, channelID string) (rolesbot.Channel, error)
}

type acquirer interface {
	Acquire(ctx context.Context, serverID string) (context.Context, context.CancelFunc, bool)
}

// sharded passes on the events of servers this replica owns and drops the
// rest. Direct message events belong to no server and are dropped too.
type sharded struct {
	next     revolt.Handler
	channels channelFetcher
	shards   acquirer
	log      rolesbot.Logger
}

var _ revolt.Handler = sharded{}

func (s sharded) OnMessage(ctx context.Context, msg rolesbot.Message) {
	ctx, done, ok := s.acquireChannel(ctx, msg.ChannelID)
	if !ok {
		return
	}
	defer done()
	s.next.OnMessage(ctx, msg)
}

// OnMessageDelete only forgets cached drafts, which every replica does.
func (s sharded) OnMessageDelete(ctx context.Context, channelID, messageID string) {
	s.next.OnMessageDelete(ctx, channelID, messageID)
}

func (s sharded) OnReact(ctx context.Context, channelID, messageID, userID, emoji string, react bool) {
	ctx, done, ok := s.acquireChannel(ctx, channelID)
	if !ok {
		return
	}
	defer done()
	s.next.OnReact(ctx, channelID, messageID, userID, emoji, react)
}

func (s sharded) OnMemberJoin(ctx context.Context, serverID, userID string) {
	ctx, done, ok := s.shards.Acquire(ctx, serverID)
	if !ok {
		return
	}
	defer done()
	s.next.OnMemberJoin(ctx, serverID, userID)
}

func (s sharded) acquireChannel(ctx context.Context, channelID string) (context.Context, context.CancelFunc, bool) {
	ch, err := s.channels.FetchChannel(ctx, channelID)
	if err != nil {
		// NoReturnErr: Drop the event, its owner can't be known.
		s.log.Error(ctx, errors.Wrap(err, "fetch channel", j.KV("channel", channelID)))
		return nil, nil, false
	}
	if ch.ServerID == "" {
		return nil, nil, false
	}
	return s.shards.Acquire(ctx, ch.ServerID)
}
