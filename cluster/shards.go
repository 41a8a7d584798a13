package cluster

import (
	"context"
	"path"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/luno/rolesbot"
)

type ShardsOptions struct {
	Log rolesbot.Logger

	// Assign maps a server onto a rank in [0, size), or -1 if no member
	// should own it. It must always return the same rank for the same
	// arguments. Defaults to ShardOf.
	Assign func(serverID string, size int32) int32

	// ClaimTimeout bounds how long Acquire waits for an answer, which
	// it won't get while the cluster is reconnecting. Defaults to 5 seconds.
	ClaimTimeout time.Duration

	// Notify is called when a server is locked or unlocked.
	Notify func(serverID string, owned bool)
}

// locker takes the lock on a server, returning a func to release it.
type locker interface {
	Lock(ctx context.Context, serverID string) (func(context.Context) error, error)
}

type etcdLocker struct {
	session *concurrency.Session
	prefix  string
}

func (l etcdLocker) Lock(ctx context.Context, serverID string) (func(context.Context) error, error) {
	mu := concurrency.NewMutex(l.session, path.Join(l.prefix, "servers", serverID))
	if err := mu.TryLock(ctx); err != nil {
		return nil, err
	}
	return mu.Unlock, nil
}

type claim struct {
	ServerID string
	Reply    chan claimResult
}

type claimResult struct {
	// Owned is the context of the lock if we own the server.
	Owned context.Context
	Err   error
}

// held is a locked server. ctx is cancelled when the lock is released.
type held struct {
	ctx    context.Context
	cancel context.CancelFunc
	unlock func(context.Context) error
}

// Shards tracks which servers this member owns. Acquire is called for
// each event, and the ranks and locks are managed by a single goroutine
// fed by the Cluster.
type Shards struct {
	options ShardsOptions

	claims     chan claim
	rankChange chan Rank
}

func NewShards(opts ShardsOptions) *Shards {
	if opts.Log == nil {
		opts.Log = nopLogger{}
	}
	if opts.Assign == nil {
		opts.Assign = ShardOf
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 5 * time.Second
	}
	if opts.Notify == nil {
		opts.Notify = func(string, bool) {}
	}
	return &Shards{
		options:    opts,
		claims:     make(chan claim),
		rankChange: make(chan Rank),
	}
}

func (s *Shards) owns(rank Rank, serverID string) bool {
	if !rank.Ranked {
		return false
	}
	idx := s.options.Assign(serverID, rank.Size)
	return idx >= 0 && idx == rank.Index
}

func (s *Shards) updateRank(ctx context.Context, rank Rank) {
	select {
	case s.rankChange <- rank:
	case <-ctx.Done():
	}
}

// run answers claims until ctx is cancelled. A server is locked the first
// time it's claimed while we own it, and unlocked when a rank change
// moves it to another member.
func (s *Shards) run(ctx context.Context, l locker) error {
	s.options.Log.Debug(ctx, "started shard ownership")
	defer s.options.Log.Debug(ctx, "stopped shard ownership")

	locks := make(map[string]held)
	defer func() {
		for id, h := range locks {
			s.release(ctx, id, h)
		}
	}()

	var rank Rank
	select {
	case rank = <-s.rankChange:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case c := <-s.claims:
			var res claimResult
			if s.owns(rank, c.ServerID) {
				h, ok := locks[c.ServerID]
				if !ok {
					var err error
					h, err = s.lock(ctx, l, c.ServerID)
					if err != nil {
						// NoReturnErr: The claimant is told it doesn't own the server.
						res.Err = err
					} else {
						locks[c.ServerID] = h
					}
				}
				if res.Err == nil {
					res.Owned = h.ctx
				}
			}
			c.Reply <- res

		case rank = <-s.rankChange:
			for id, h := range locks {
				if s.owns(rank, id) {
					continue
				}
				s.release(ctx, id, h)
				delete(locks, id)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Shards) lock(ctx context.Context, l locker, serverID string) (held, error) {
	unlock, err := l.Lock(ctx, serverID)
	if err != nil {
		return held{}, errors.Wrap(err, "lock server", j.KV("server", serverID))
	}
	hctx, cancel := context.WithCancel(ctx)
	s.options.Notify(serverID, true)
	ownedGauge.Inc()
	s.options.Log.Debug(ctx, "locked server", j.KV("server", serverID))
	return held{ctx: hctx, cancel: cancel, unlock: unlock}, nil
}

func (s *Shards) release(ctx context.Context, serverID string, h held) {
	h.cancel()
	s.options.Notify(serverID, false)
	ownedGauge.Dec()

	// Unlock even if ctx is done, the session may outlive it.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.unlock(uctx); err != nil {
		// NoReturnErr: The lock goes with the session lease.
		s.options.Log.Error(ctx, errors.Wrap(err, "unlock server", j.KV("server", serverID)))
	}
	s.options.Log.Debug(ctx, "unlocked server", j.KV("server", serverID))
}

// Acquire returns a context for handling an event of a server if this
// member owns it. The context is cancelled when ctx is or when ownership
// moves elsewhere. Call the returned func once the event is handled.
func (s *Shards) Acquire(ctx context.Context, serverID string) (context.Context, context.CancelFunc, bool) {
	wait, cancelWait := context.WithTimeout(ctx, s.options.ClaimTimeout)
	defer cancelWait()

	c := claim{ServerID: serverID, Reply: make(chan claimResult, 1)}
	select {
	case s.claims <- c:
	case <-wait.Done():
		s.options.Log.Debug(ctx, "no answer to server claim", j.KV("server", serverID))
		return nil, nil, false
	}

	var res claimResult
	select {
	case res = <-c.Reply:
	case <-wait.Done():
		return nil, nil, false
	}
	if res.Err != nil {
		// NoReturnErr: Another member still holds the lock.
		s.options.Log.Error(ctx, res.Err)
		return nil, nil, false
	}
	if res.Owned == nil {
		return nil, nil, false
	}

	ectx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(res.Owned, cancel)
	return ectx, func() {
		stop()
		cancel()
	}, true
}
