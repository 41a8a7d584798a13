// Package config loads the rolesbot binary's configuration.
//
// Configuration starts from Default, is overlaid by an optional YAML file
// and finally by ROLESBOT_ prefixed environment variables, e.g.
// ROLESBOT_TOKEN or ROLESBOT_STORE_DRIVER.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ROLESBOT_"

var ErrInvalid = errors.New("invalid config", j.C("ERR_91d6f2a4c03e7b58"))

// Driver selects the settings store.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverEtcd   Driver = "etcd"
	DriverMemory Driver = "memory"
)

type Config struct {
	// Token is the bot token used for the REST API and the gateway.
	Token string `yaml:"token" env:"TOKEN"`

	// MetricsAddr is where prometheus metrics are served. Empty disables
	// the metrics server.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	// StatusText is shown as the bot's status once connected.
	StatusText string `yaml:"status_text" env:"STATUS_TEXT"`

	API     APIConfig     `yaml:"api" envPrefix:"API_"`
	Store   StoreConfig   `yaml:"store" envPrefix:"STORE_"`
	Etcd    EtcdConfig    `yaml:"etcd" envPrefix:"ETCD_"`
	Queue   QueueConfig   `yaml:"queue" envPrefix:"QUEUE_"`
	Cluster ClusterConfig `yaml:"cluster" envPrefix:"CLUSTER_"`
}

type APIConfig struct {
	URL        string `yaml:"url" env:"URL"`
	GatewayURL string `yaml:"gateway_url" env:"GATEWAY_URL"`

	// RateLimit is the most REST requests sent per second, with bursts of
	// up to RateBurst.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST"`
}

type StoreConfig struct {
	Driver Driver `yaml:"driver" env:"DRIVER"`

	// Path of the sqlite database.
	Path string `yaml:"path" env:"PATH"`

	// Prefix of the etcd keys holding server settings.
	Prefix string `yaml:"prefix" env:"PREFIX"`
}

// EtcdConfig is used by the etcd store and by the cluster.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints" env:"ENDPOINTS" envSeparator:","`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

type QueueConfig struct {
	MailboxSize int           `yaml:"mailbox_size" env:"MAILBOX_SIZE"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// ClusterConfig splits servers between replicas sharing an etcd cluster.
type ClusterConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Name identifies the cluster, replicas with the same Name share servers.
	Name string `yaml:"name" env:"NAME"`

	// Member is this replica's unique name. Defaults to the hostname.
	Member string `yaml:"member" env:"MEMBER"`

	NewMemberWait time.Duration `yaml:"new_member_wait" env:"NEW_MEMBER_WAIT"`
	ClaimTimeout  time.Duration `yaml:"claim_timeout" env:"CLAIM_TIMEOUT"`
}

// Default returns the configuration used for anything not set by the file
// or the environment.
func Default() Config {
	return Config{
		MetricsAddr: ":9090",
		API: APIConfig{
			URL:        "https://api.revolt.chat",
			GatewayURL: "wss://ws.revolt.chat",
			RateLimit:  10,
			RateBurst:  10,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "rolesbot.db",
			Prefix: "rolesbot/settings/",
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Queue: QueueConfig{
			MailboxSize: 100,
			IdleTimeout: 5 * time.Minute,
		},
		Cluster: ClusterConfig{
			Name:          "rolesbot",
			NewMemberWait: time.Minute,
			ClaimTimeout:  5 * time.Second,
		},
	}
}

// Load returns the configuration from the YAML file at path, if not empty,
// overlaid by the environment. The result is validated.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if err := c.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	if c.Cluster.Enabled && c.Cluster.Member == "" {
		host, err := os.Hostname()
		if err != nil {
			return Config{}, errors.Wrap(err, "hostname")
		}
		c.Cluster.Member = host
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// loadFile merges the file into c. Unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file", j.KV("path", path))
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "decode config file", j.KV("path", path))
	}
	return nil
}

// Validate returns ErrInvalid for the first problem found.
func (c Config) Validate() error {
	invalid := func(msg string) error {
		return errors.Wrap(ErrInvalid, msg)
	}
	if c.Token == "" {
		return invalid("token is required")
	}
	if c.API.URL == "" || c.API.GatewayURL == "" {
		return invalid("api urls are required")
	}
	if c.API.RateLimit <= 0 || c.API.RateBurst <= 0 {
		return invalid("api rate limit must be positive")
	}
	if c.Queue.MailboxSize < 0 || c.Queue.IdleTimeout < 0 {
		return invalid("queue options must not be negative")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return invalid("store.path is required for sqlite")
		}
	case DriverEtcd:
		if c.Store.Prefix == "" {
			return invalid("store.prefix is required for etcd")
		}
	case DriverMemory:
	default:
		return invalid("store.driver must be sqlite, etcd or memory")
	}
	if c.UsesEtcd() && len(c.Etcd.Endpoints) == 0 {
		return invalid("etcd.endpoints is required")
	}

	if c.Cluster.Enabled && (c.Cluster.Name == "" || c.Cluster.Member == "") {
		return invalid("cluster name and member are required")
	}
	return nil
}

// UsesEtcd is true if the store or the cluster needs an etcd client.
func (c Config) UsesEtcd() bool {
	return c.Store.Driver == DriverEtcd || c.Cluster.Enabled
}
