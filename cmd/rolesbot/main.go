// Command rolesbot runs the reaction role bot.
//
//	rolesbot --config rolesbot.yaml
//
// See package config for the configuration keys and their environment
// variables.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/luno/rolesbot"
	"github.com/luno/rolesbot/cluster"
	"github.com/luno/rolesbot/config"
	"github.com/luno/rolesbot/revolt"
	"github.com/luno/rolesbot/settings"
	etcdstore "github.com/luno/rolesbot/settings/etcd"
	sqlitestore "github.com/luno/rolesbot/settings/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("rolesbot", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	metricsAddr := flags.String("metrics-addr", "", "serve metrics on this address instead of the configured one")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var etcd *clientv3.Client
	if cfg.UsesEtcd() {
		etcd, err = clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			DialOptions: []grpc.DialOption{grpc.WithBlock()},
			Logger:      zap.NewNop(),
		})
		if err != nil {
			return errors.Wrap(err, "connect etcd", j.KV("endpoints", cfg.Etcd.Endpoints))
		}
		defer etcd.Close()
	}

	store, closeStore, err := openStore(cfg, etcd)
	if err != nil {
		return err
	}
	defer closeStore()

	client := revolt.New(cfg.Token,
		revolt.WithAPIURL(cfg.API.URL),
		revolt.WithRateLimit(rate.Limit(cfg.API.RateLimit), cfg.API.RateBurst))
	self, err := client.Login(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, "logged in", j.MKV{"bot": self.ID, "username": self.Username})

	// etcd is shared by every replica, so it's read directly.
	if cfg.Store.Driver != config.DriverEtcd {
		store = settings.NewCached(store)
	}

	bot := rolesbot.New(client, store,
		rolesbot.WithLogger(rolesbot.JettisonLogger{}),
		rolesbot.WithQueueOptions(rolesbot.QueueOptions{
			MailboxSize: cfg.Queue.MailboxSize,
			IdleTimeout: cfg.Queue.IdleTimeout,
		}))
	defer bot.Close()

	var handler revolt.Handler = bot
	if cfg.Cluster.Enabled {
		c := cluster.New(etcd, cfg.Cluster.Name,
			cluster.WithLogger(rolesbot.JettisonLogger{}),
			cluster.WithMembershipOptions(cluster.MembershipOptions{
				MemberName:    cfg.Cluster.Member,
				NewMemberWait: cfg.Cluster.NewMemberWait,
			}),
			cluster.WithShardsOptions(cluster.ShardsOptions{
				ClaimTimeout: cfg.Cluster.ClaimTimeout,
			}))
		defer c.Close()
		handler = sharded{
			next:     bot,
			channels: client,
			shards:   c.Shards,
			log:      rolesbot.JettisonLogger{},
		}
	}

	gateway := revolt.NewGateway(client, handler, revolt.GatewayOptions{
		URL:        cfg.API.GatewayURL,
		StatusText: cfg.StatusText,
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gateway.Run(ctx)
	})
	if cfg.MetricsAddr != "" {
		srv := metricsServer(cfg.MetricsAddr)
		eg.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "serve metrics", j.KV("addr", cfg.MetricsAddr))
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
	}

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info(context.Background(), "shutting down")
		return nil
	}
	return err
}

// openStore returns the configured settings store and a func to close it.
func openStore(cfg config.Config, etcd *clientv3.Client) (settings.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		s, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			// NoReturnErr: Shutting down.
			_ = s.Close()
		}, nil
	case config.DriverEtcd:
		return etcdstore.New(etcd, cfg.Store.Prefix), func() {}, nil
	case config.DriverMemory:
		return settings.NewMemory(), func() {}, nil
	}
	return nil, nil, errors.Wrap(config.ErrInvalid, "unknown store driver",
		j.KV("driver", cfg.Store.Driver))
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
