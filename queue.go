package rolesbot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
)

type QueueOptions struct {
	// Log is used for logging role edits and errors.
	Log Logger

	// MailboxSize is the number of actions buffered per server before
	// Enqueue blocks. Defaults to 100.
	MailboxSize int

	// IdleTimeout is how long a server actor waits for new actions
	// before it stops. Defaults to 5 minutes.
	IdleTimeout time.Duration

	// NotifyFlush is called by a server actor each time it has applied
	// all of its pending edits.
	NotifyFlush func(serverID string)
}

type edit struct {
	MemberID string
	Action   Action
}

// serverActor owns the mailbox of a single server.
type serverActor struct {
	serverID string
	mailbox  chan edit

	// sending counts Enqueue calls that hold this actor but haven't
	// finished sending yet. The actor only retires when it's zero.
	sending atomic.Int64
}

// Queue serialises role edits per server. Actions for a server are handled
// by a single actor goroutine which merges all actions it has received per
// member and then replaces each changed member's roles once.
//
// Actions for the same member are applied in the order they were enqueued,
// actions for different servers are applied independently.
type Queue struct {
	api     MemberAPI
	options QueueOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	actors map[string]*serverActor
}

func NewQueue(api MemberAPI, opts QueueOptions) *Queue {
	if opts.Log == nil {
		opts.Log = noopLogger{}
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 100
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.NotifyFlush == nil {
		opts.NotifyFlush = func(string) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		api:     api,
		options: opts,
		ctx:     ctx,
		cancel:  cancel,
		actors:  make(map[string]*serverActor),
	}
}

// Close stops all server actors and waits for them to exit. Pending edits
// are dropped.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}

// Enqueue requests the action for a member of a server. It only blocks
// while the server's mailbox is full.
func (q *Queue) Enqueue(ctx context.Context, serverID, memberID string, action Action) {
	a := q.acquire(serverID)
	if a == nil {
		q.options.Log.Info(ctx, "queue closed, dropping role action",
			j.MKV{"server": serverID, "member": memberID})
		return
	}
	defer a.sending.Add(-1)

	select {
	case a.mailbox <- edit{MemberID: memberID, Action: action}:
		actionsCounter.Inc()
	case <-ctx.Done():
		// NoReturnErr: Fire and forget, nobody to return to.
		q.options.Log.Error(ctx, errors.Wrap(ctx.Err(), "enqueue role action",
			j.MKV{"server": serverID, "member": memberID}))
	case <-q.ctx.Done():
	}
}

// acquire returns the server's actor, starting one if needed, with its
// sending count incremented. It returns nil if the queue is closed.
func (q *Queue) acquire(serverID string) *serverActor {
	q.mu.RLock()
	a, ok := q.actors[serverID]
	if ok {
		a.sending.Add(1)
	}
	q.mu.RUnlock()
	if ok {
		return a
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return nil
	}
	a, ok = q.actors[serverID]
	if !ok {
		a = &serverActor{
			serverID: serverID,
			mailbox:  make(chan edit, q.options.MailboxSize),
		}
		q.actors[serverID] = a
		actorsGauge.Inc()
		q.wg.Add(1)
		go q.run(a)
	}
	a.sending.Add(1)
	return a
}

// retire removes an idle actor from the registry. It returns false if an
// action is on its way, in which case the actor must keep running.
func (q *Queue) retire(a *serverActor) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if a.sending.Load() > 0 || len(a.mailbox) > 0 {
		return false
	}
	q.removeUnsafe(a)
	return true
}

func (q *Queue) removeUnsafe(a *serverActor) {
	if q.actors[a.serverID] != a {
		return
	}
	delete(q.actors, a.serverID)
	actorsGauge.Dec()
}

func (q *Queue) run(a *serverActor) {
	defer q.wg.Done()

	ctx := log.ContextWith(q.ctx, j.KV("server", a.serverID))
	q.options.Log.Debug(ctx, "started role edit actor")
	defer q.options.Log.Debug(ctx, "stopped role edit actor")

	idle := time.NewTimer(q.options.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case e := <-a.mailbox:
			edits := newPendingEdits()
			q.merge(ctx, a.serverID, edits, e)
			q.drain(ctx, a, edits)
			q.flush(ctx, a, edits)
			if ctx.Err() == nil {
				q.options.NotifyFlush(a.serverID)
			}
		case <-idle.C:
			if q.retire(a) {
				return
			}
		case <-ctx.Done():
			q.mu.Lock()
			q.removeUnsafe(a)
			q.mu.Unlock()
			return
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(q.options.IdleTimeout)
	}
}

// drain merges all actions waiting in the mailbox without blocking.
func (q *Queue) drain(ctx context.Context, a *serverActor, edits *pendingEdits) {
	for {
		select {
		case e := <-a.mailbox:
			q.merge(ctx, a.serverID, edits, e)
		default:
			return
		}
	}
}

// merge applies an action to the member's desired roles, which start from
// the member's current roles the first time the member is touched.
func (q *Queue) merge(ctx context.Context, serverID string, edits *pendingEdits, e edit) {
	roles, ok := edits.get(e.MemberID)
	if !ok {
		member, err := q.fetchMember(ctx, serverID, e.MemberID)
		if err != nil {
			// NoReturnErr: Drop the action, the member can't be reconciled.
			editsCounter.WithLabelValues(editFailed).Inc()
			q.options.Log.Error(ctx, errors.Wrap(err, "fetch member for role action",
				j.KV("member", e.MemberID)))
			return
		}
		roles = member.Roles.Clone()
		if roles == nil {
			roles = NewRoleSet()
		}
		edits.put(e.MemberID, roles)
	}
	roles.Add(e.Action.Give...)
	roles.Remove(e.Action.Remove...)
}

// fetchMember fetches the member, waiting out any rate limits until ctx
// is cancelled.
func (q *Queue) fetchMember(ctx context.Context, serverID, memberID string) (Member, error) {
	for {
		member, err := q.api.FetchMember(ctx, serverID, memberID)
		var retry *RetryAfterError
		if !errors.As(err, &retry) {
			return member, err
		}
		retryAfterCounter.Inc()
		q.options.Log.Info(ctx, "rate limited fetching member", j.MKV{
			"member":      memberID,
			"retry_after": retry.After.String(),
		})
		if !sleep(ctx, retry.After) {
			return Member{}, ctx.Err()
		}
	}
}

// flush replaces the roles of each member whose current roles differ from
// the desired roles. When rate limited it waits, forgets the members that
// were already handled, merges new arrivals and starts over.
func (q *Queue) flush(ctx context.Context, a *serverActor, edits *pendingEdits) {
pass:
	for ctx.Err() == nil {
		for _, memberID := range edits.order {
			err := q.apply(ctx, a.serverID, memberID, edits.roles[memberID])

			var retry *RetryAfterError
			if errors.As(err, &retry) {
				retryAfterCounter.Inc()
				q.options.Log.Info(ctx, "rate limited editing member roles", j.MKV{
					"member":      memberID,
					"retry_after": retry.After.String(),
					"pending":     edits.len(),
				})
				if !sleep(ctx, retry.After) {
					return
				}
				edits.dropBefore(memberID)
				q.drain(ctx, a, edits)
				continue pass
			} else if err != nil {
				// NoReturnErr: Skip the member, the rest of the batch still applies.
				q.options.Log.Error(ctx, errors.Wrap(err, "edit member roles",
					j.KV("member", memberID)))
			}
		}
		return
	}
}

// apply replaces the member's roles with desired unless they already match.
func (q *Queue) apply(ctx context.Context, serverID, memberID string, desired RoleSet) error {
	member, err := q.api.FetchMember(ctx, serverID, memberID)
	if err != nil {
		editsCounter.WithLabelValues(editFailed).Inc()
		return errors.Wrap(err, "fetch member")
	}
	if member.Roles.Equal(desired) {
		editsCounter.WithLabelValues(editUnchanged).Inc()
		return nil
	}

	giving := desired.Without(member.Roles)
	taking := member.Roles.Without(desired)
	q.options.Log.Info(ctx, "editing member roles", j.MKV{
		"member": memberID,
		"giving": giving,
		"taking": taking,
	})

	err = q.api.ReplaceMemberRoles(ctx, serverID, memberID, desired.Clone())
	var retry *RetryAfterError
	if errors.As(err, &retry) {
		editsCounter.WithLabelValues(editLimited).Inc()
		return err
	} else if err != nil {
		editsCounter.WithLabelValues(editFailed).Inc()
		return err
	}
	editsCounter.WithLabelValues(editApplied).Inc()
	return nil
}

// sleep waits for d and returns false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
