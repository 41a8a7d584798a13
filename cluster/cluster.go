package cluster

import (
	"context"
	"time"

	"github.com/luno/jettison"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"golang.org/x/sync/errgroup"

	"github.com/luno/rolesbot"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...jettison.Option) {}
func (nopLogger) Info(context.Context, string, ...jettison.Option)  {}
func (nopLogger) Error(context.Context, error, ...jettison.Option)  {}

type options struct {
	Log rolesbot.Logger

	// RetryDelay is how long to wait before starting a new session after
	// the last one failed.
	RetryDelay time.Duration

	MembershipOptions MembershipOptions
	ShardsOptions     ShardsOptions
}

type Option func(*options)

// WithLogger sets the logger used by the Cluster. It's also used for
// membership and shards if their options don't set one.
func WithLogger(l rolesbot.Logger) Option {
	return func(o *options) {
		o.Log = l
	}
}

// WithMembershipOptions passes through options to cluster membership.
// See MembershipOptions for more details.
func WithMembershipOptions(opts MembershipOptions) Option {
	return func(o *options) {
		o.MembershipOptions = opts
	}
}

// WithShardsOptions passes through options to Shards.
// See ShardsOptions for more details.
func WithShardsOptions(opts ShardsOptions) Option {
	return func(o *options) {
		o.ShardsOptions = opts
	}
}

// WithRetryDelay sets how long to wait between etcd sessions.
// Defaults to 10 seconds.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.RetryDelay = d
	}
}

func buildOptions(opts []Option) options {
	o := options{RetryDelay: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MembershipOptions.Log == nil {
		o.MembershipOptions.Log = o.Log
	}
	if o.ShardsOptions.Log == nil {
		o.ShardsOptions.Log = o.Log
	}
	if o.Log == nil {
		o.Log = nopLogger{}
	}
	return o
}

// Cluster is this replica's membership of a cluster of bot replicas.
// It holds an etcd session and, while the session lasts, keeps Shards
// up to date with our rank. When the session is lost all servers are
// released until a new session is established.
type Cluster struct {
	cli     *clientv3.Client
	name    string
	options options

	cancel   context.CancelFunc
	finished chan struct{}

	Shards *Shards
}

// New joins the named cluster and runs until Close is called.
func New(cli *clientv3.Client, name string, opts ...Option) *Cluster {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cluster{
		cli:      cli,
		name:     name,
		options:  buildOptions(opts),
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	c.Shards = NewShards(c.options.ShardsOptions)

	go c.run(ctx)
	return c
}

// Close releases all servers, leaves the cluster and revokes the session.
func (c *Cluster) Close() {
	c.cancel()
	<-c.finished
}

func (c *Cluster) run(ctx context.Context) {
	defer close(c.finished)
	c.options.Log.Debug(ctx, "running cluster", j.KV("cluster", c.name))
	defer c.options.Log.Debug(ctx, "stopped cluster")

	for ctx.Err() == nil {
		err := c.runSession(ctx)
		if err != nil && !errors.IsAny(err, context.Canceled) {
			c.options.Log.Error(ctx, errors.Wrap(err, "cluster session"))
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.options.RetryDelay):
		}
	}
}

func (c *Cluster) runSession(ctx context.Context) error {
	sess, err := concurrency.NewSession(c.cli)
	if err != nil {
		return errors.Wrap(err, "new etcd session")
	}
	c.options.Log.Debug(ctx, "created session", j.KV("etcd_lease", int64(sess.Lease())))

	defer func() {
		if err := sess.Close(); err != nil {
			// NoReturnErr: The lease expires on its own.
			c.options.Log.Error(ctx, errors.Wrap(err, "close session"))
		}
	}()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.Shards.run(ctx, etcdLocker{session: sess, prefix: c.name})
	})
	eg.Go(func() error {
		return runMembership(ctx, sess, c.name, c.Shards.updateRank, c.options.MembershipOptions)
	})
	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Done():
			return errors.New("etcd session expired")
		}
	})
	return eg.Wait()
}
