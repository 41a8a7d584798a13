package main

import (
	"context"
	"sync"
	"testing"

	"github.com/luno/jettison"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luno/rolesbot"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...jettison.Option) {}
func (nopLogger) Info(context.Context, string, ...jettison.Option)  {}
func (nopLogger) Error(context.Context, error, ...jettison.Option)  {}

type fakeChannels map[string]string

func (f fakeChannels) FetchChannel(_ context.Context, id string) (rolesbot.Channel, error) {
	serverID, ok := f[id]
	if !ok {
		return rolesbot.Channel{}, errors.New("unknown channel", j.KV("channel", id))
	}
	return rolesbot.Channel{ID: id, ServerID: serverID}, nil
}

type fakeShards struct {
	owned map[string]bool

	mu   sync.Mutex
	done []string
}

func (f *fakeShards) Acquire(ctx context.Context, serverID string) (context.Context, context.CancelFunc, bool) {
	if !f.owned[serverID] {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	return ctx, func() {
		f.mu.Lock()
		f.done = append(f.done, serverID)
		f.mu.Unlock()
		cancel()
	}, true
}

type recorder struct {
	events []string
	ctxs   []context.Context
}

func (r *recorder) record(ctx context.Context, event string) {
	r.events = append(r.events, event)
	r.ctxs = append(r.ctxs, ctx)
}

func (r *recorder) OnMessage(ctx context.Context, msg rolesbot.Message) {
	r.record(ctx, "message "+msg.ID)
}

func (r *recorder) OnMessageDelete(ctx context.Context, channelID, messageID string) {
	r.record(ctx, "delete "+messageID)
}

func (r *recorder) OnReact(ctx context.Context, channelID, messageID, userID, emoji string, react bool) {
	r.record(ctx, "react "+messageID)
}

func (r *recorder) OnMemberJoin(ctx context.Context, serverID, userID string) {
	r.record(ctx, "join "+userID)
}

func TestSharded(t *testing.T) {
	rec := new(recorder)
	shards := &fakeShards{owned: map[string]bool{"ours": true}}
	h := sharded{
		next: rec,
		channels: fakeChannels{
			"general": "ours",
			"lobby":   "theirs",
			"dm":      "",
		},
		shards: shards,
		log:    nopLogger{},
	}
	ctx := context.Background()

	h.OnMessage(ctx, rolesbot.Message{ID: "m1", ChannelID: "general"})
	h.OnMessage(ctx, rolesbot.Message{ID: "m2", ChannelID: "lobby"})
	h.OnMessage(ctx, rolesbot.Message{ID: "m3", ChannelID: "dm"})
	h.OnMessage(ctx, rolesbot.Message{ID: "m4", ChannelID: "missing"})
	h.OnReact(ctx, "general", "m1", "u1", "🔧", true)
	h.OnReact(ctx, "lobby", "m2", "u1", "🔧", true)
	h.OnMemberJoin(ctx, "ours", "u2")
	h.OnMemberJoin(ctx, "theirs", "u3")
	h.OnMessageDelete(ctx, "lobby", "m2")

	assert.Equal(t, []string{
		"message m1",
		"react m1",
		"join u2",
		"delete m2",
	}, rec.events)
	assert.Equal(t, []string{"ours", "ours", "ours"}, shards.done)

	// Handled events get a context which is released once they return.
	require.Len(t, rec.ctxs, 4)
	for _, c := range rec.ctxs[:3] {
		assert.Error(t, c.Err())
	}
	assert.NoError(t, rec.ctxs[3].Err())
}
