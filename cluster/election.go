package cluster

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"golang.org/x/sync/errgroup"

	"github.com/luno/rolesbot"
)

var ErrMemberExists = errors.New("member name already in use", j.C("ERR_5f1c7a0e92b4d836"))

var ranksEncoding = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type MembershipOptions struct {
	// MemberName must be unique within the cluster. Defaults to a random
	// name for the lifetime of the process.
	MemberName string

	// NewMemberWait is how long a new member waits before it's given a new
	// rank. Members replacing one that left are ranked immediately.
	// Defaults to a minute.
	NewMemberWait time.Duration

	// NotifyLeader is called when this member starts or stops leading.
	NotifyLeader func(member string, leader bool)

	// NotifyRank is called when this member's rank changes.
	NotifyRank func(member string, rank Rank)

	Log rolesbot.Logger
}

// keys are the etcd keys of a cluster.
type keys struct {
	election      string
	member        string
	membersPrefix string
}

func newKeys(name, member string) keys {
	return keys{
		election:      path.Join(name, "election"),
		member:        path.Join(name, "members", member),
		membersPrefix: path.Join(name, "members") + "/",
	}
}

func (o *MembershipOptions) defaults() {
	if o.MemberName == "" {
		var b [8]byte
		_, _ = rand.Read(b[:])
		o.MemberName = hex.EncodeToString(b[:])
	}
	if o.NewMemberWait == 0 {
		o.NewMemberWait = time.Minute
	}
	if o.NotifyLeader == nil {
		o.NotifyLeader = func(string, bool) {}
	}
	if o.NotifyRank == nil {
		o.NotifyRank = func(string, Rank) {}
	}
	if o.Log == nil {
		o.Log = nopLogger{}
	}
}

// runMembership joins the cluster with the session's lease and reports
// this member's rank to onRank until ctx is cancelled or the session
// ends. It also campaigns to become leader, and while leading publishes
// the ranks whenever the members change.
func runMembership(ctx context.Context, sess *concurrency.Session, name string,
	onRank func(context.Context, Rank), o MembershipOptions,
) error {
	if name == "" {
		return errors.New("cluster name required")
	}
	o.defaults()
	k := newKeys(name, o.MemberName)
	if err := joinCluster(ctx, sess, k.member); err != nil {
		return err
	}
	o.Log.Debug(ctx, "joined cluster", j.KV("member", o.MemberName))

	m := &membership{
		options:  o,
		keys:     k,
		onRank:   onRank,
		session:  sess,
		election: concurrency.NewElection(sess, k.election),
	}
	return m.run(ctx)
}

// joinCluster creates our member key, holding the join time, unless
// another lease already holds it.
func joinCluster(ctx context.Context, sess *concurrency.Session, key string) error {
	joined := strconv.FormatInt(time.Now().UnixMilli(), 10)
	resp, err := sess.Client().Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, joined, clientv3.WithLease(sess.Lease()))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return errors.Wrap(err, "put member key")
	}
	if resp.Succeeded {
		return nil
	}
	var owner int64
	if kvs := resp.Responses[0].GetResponseRange().Kvs; len(kvs) > 0 {
		owner = kvs[0].Lease
	}
	return errors.Wrap(ErrMemberExists, "", j.MKV{
		"member_key":  key,
		"owner_lease": owner,
		"my_lease":    int64(sess.Lease()),
	})
}

type membership struct {
	options  MembershipOptions
	keys     keys
	onRank   func(context.Context, Rank)
	session  *concurrency.Session
	election *concurrency.Election

	mu       sync.Mutex
	ranks    ranks
	revision int64
}

func (m *membership) current() ranks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ranks
}

// update stores the ranks published in resp if they're newer than the
// ones we have.
func (m *membership) update(resp *clientv3.GetResponse) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp.Header.Revision <= m.revision || len(resp.Kvs) == 0 {
		return false, nil
	}
	val := resp.Kvs[0].Value
	if len(val) == 0 {
		return false, nil
	}
	var r ranks
	if err := cbor.Unmarshal(val, &r); err != nil {
		return false, errors.Wrap(err, "decode ranks")
	}
	m.ranks = r
	m.revision = resp.Header.Revision
	return true, nil
}

func (m *membership) run(ctx context.Context) error {
	resp, err := m.election.Leader(ctx)
	if errors.Is(err, concurrency.ErrElectionNoLeader) {
		// NoReturnErr: Nothing published yet.
	} else if err != nil {
		return errors.Wrap(err, "election leader")
	} else if _, err := m.update(resp); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return m.campaign(ctx)
	})
	eg.Go(func() error {
		return m.observe(ctx)
	})
	return eg.Wait()
}

func (m *membership) setRank(ctx context.Context, r Rank) {
	m.onRank(ctx, r)
	m.options.NotifyRank(m.options.MemberName, r)
	if r.Ranked {
		rankGauge.Set(float64(r.Index))
	} else {
		rankGauge.Set(-1)
	}
	sizeGauge.Set(float64(r.Size))
}

// observe follows the published ranks and reports our rank when it
// changes. We're unranked once we stop observing.
func (m *membership) observe(ctx context.Context) error {
	rank := m.current().of(m.options.MemberName)
	m.setRank(ctx, rank)
	defer m.setRank(ctx, Rank{})

	for resp := range m.election.Observe(ctx) {
		changed, err := m.update(&resp)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		next := m.current().of(m.options.MemberName)
		if next == rank {
			continue
		}
		rank = next
		m.options.Log.Debug(ctx, "rank changed", j.MKV{
			"index":  rank.Index,
			"size":   rank.Size,
			"ranked": rank.Ranked,
		})
		m.setRank(ctx, rank)
	}
	return ctx.Err()
}

func (m *membership) campaign(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := m.election.Campaign(ctx, ""); err != nil {
			return errors.Wrap(err, "election campaign")
		}
		if err := m.lead(ctx); err != nil {
			return errors.Wrap(err, "lead election")
		}
	}
	return ctx.Err()
}

// lead publishes new ranks whenever members join or leave, and when a
// pending member has waited long enough.
func (m *membership) lead(ctx context.Context) error {
	o := m.options
	o.Log.Info(ctx, "leading cluster", j.KV("member", o.MemberName))
	o.NotifyLeader(o.MemberName, true)
	leaderGauge.Set(1)
	defer func() {
		leaderGauge.Set(0)
		o.NotifyLeader(o.MemberName, false)
		if err := m.election.Resign(m.session.Client().Ctx()); err != nil {
			// NoReturnErr: The session lease expiring also resigns.
			o.Log.Error(ctx, errors.Wrap(err, "resign"))
		}
	}()

	published := m.current()
	watch := m.session.Client().Watch(ctx, m.keys.membersPrefix, clientv3.WithPrefix())
	recheck := time.NewTimer(0)
	defer recheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.session.Done():
			return nil
		case resp := <-watch:
			if err := resp.Err(); err != nil {
				return err
			}
			if !membersChanged(resp.Events) {
				continue
			}
		case <-recheck.C:
			recheck.Reset(time.Minute)
		}

		members, err := listMembers(ctx, m.session.Client(), m.keys.membersPrefix)
		if err != nil {
			return err
		}
		plan := planRebalance(members, published, time.Now(), o.NewMemberWait)
		if len(plan.Pending) > 0 {
			at := members[plan.Pending[0]].Add(o.NewMemberWait)
			if !recheck.Stop() {
				select {
				case <-recheck.C:
				default:
				}
			}
			recheck.Reset(time.Until(at))
		}
		if plan.noop(published) {
			continue
		}

		published = plan.apply(published)
		o.Log.Info(ctx, "publishing ranks", j.KV("ranks", published))
		val, err := ranksEncoding.Marshal(published)
		if err != nil {
			return errors.Wrap(err, "encode ranks")
		}
		err = m.election.Proclaim(ctx, string(val))
		if errors.Is(err, concurrency.ErrElectionNotLeader) {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "proclaim ranks")
		}
	}
}

func listMembers(ctx context.Context, cli *clientv3.Client, prefix string) (map[string]time.Time, error) {
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	members := make(map[string]time.Time, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ms, err := strconv.ParseInt(string(kv.Value), 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid member value", j.MKV{
				"key":   string(kv.Key),
				"value": string(kv.Value),
			})
		}
		members[strings.TrimPrefix(string(kv.Key), prefix)] = time.UnixMilli(ms)
	}
	return members, nil
}

func membersChanged(events []*clientv3.Event) bool {
	for _, ev := range events {
		if !ev.IsModify() {
			return true
		}
	}
	return false
}
