package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rolesbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROLESBOT_TOKEN", "secret")

	c, err := Load("")
	jtest.RequireNil(t, err)

	exp := Default()
	exp.Token = "secret"
	assert.Equal(t, exp, c)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
token: from-file
status_text: "@rolesbot help"
store:
  driver: etcd
  prefix: bots/settings/
etcd:
  endpoints: [etcd-0:2379, etcd-1:2379]
queue:
  idle_timeout: 30s
cluster:
  enabled: true
  member: replica-0
`)

	c, err := Load(path)
	jtest.RequireNil(t, err)

	assert.Equal(t, "from-file", c.Token)
	assert.Equal(t, "@rolesbot help", c.StatusText)
	assert.Equal(t, DriverEtcd, c.Store.Driver)
	assert.Equal(t, "bots/settings/", c.Store.Prefix)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, c.Etcd.Endpoints)
	assert.Equal(t, 30*time.Second, c.Queue.IdleTimeout)
	assert.Equal(t, 100, c.Queue.MailboxSize)
	assert.True(t, c.Cluster.Enabled)
	assert.Equal(t, "replica-0", c.Cluster.Member)
	assert.Equal(t, "rolesbot", c.Cluster.Name)
	assert.True(t, c.UsesEtcd())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
token: from-file
store:
  driver: sqlite
  path: /var/lib/rolesbot.db
`)
	t.Setenv("ROLESBOT_TOKEN", "from-env")
	t.Setenv("ROLESBOT_STORE_DRIVER", "memory")
	t.Setenv("ROLESBOT_QUEUE_MAILBOX_SIZE", "7")
	t.Setenv("ROLESBOT_ETCD_ENDPOINTS", "a:1,b:2")
	t.Setenv("ROLESBOT_API_RATE_LIMIT", "2.5")

	c, err := Load(path)
	jtest.RequireNil(t, err)

	assert.Equal(t, "from-env", c.Token)
	assert.Equal(t, DriverMemory, c.Store.Driver)
	assert.Equal(t, "/var/lib/rolesbot.db", c.Store.Path)
	assert.Equal(t, 7, c.Queue.MailboxSize)
	assert.Equal(t, []string{"a:1", "b:2"}, c.Etcd.Endpoints)
	assert.Equal(t, 2.5, c.API.RateLimit)
	assert.False(t, c.UsesEtcd())
}

func TestClusterMemberDefaultsToHostname(t *testing.T) {
	t.Setenv("ROLESBOT_TOKEN", "secret")
	t.Setenv("ROLESBOT_CLUSTER_ENABLED", "true")

	host, err := os.Hostname()
	require.NoError(t, err)

	c, err := Load("")
	jtest.RequireNil(t, err)
	assert.Equal(t, host, c.Cluster.Member)
}

func TestLoadUnknownKey(t *testing.T) {
	path := writeFile(t, "token: x\ntokne: y\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "")
	t.Setenv("ROLESBOT_TOKEN", "secret")

	_, err := Load(path)
	jtest.RequireNil(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Token = "secret"
		return c
	}

	testCases := []struct {
		name   string
		modify func(c *Config)
		expErr error
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:   "no token",
			modify: func(c *Config) { c.Token = "" },
			expErr: ErrInvalid,
		},
		{
			name:   "no gateway",
			modify: func(c *Config) { c.API.GatewayURL = "" },
			expErr: ErrInvalid,
		},
		{
			name:   "zero rate",
			modify: func(c *Config) { c.API.RateLimit = 0 },
			expErr: ErrInvalid,
		},
		{
			name:   "negative idle timeout",
			modify: func(c *Config) { c.Queue.IdleTimeout = -time.Second },
			expErr: ErrInvalid,
		},
		{
			name:   "unknown driver",
			modify: func(c *Config) { c.Store.Driver = "mongo" },
			expErr: ErrInvalid,
		},
		{
			name:   "sqlite without path",
			modify: func(c *Config) { c.Store.Path = "" },
			expErr: ErrInvalid,
		},
		{
			name: "etcd without endpoints",
			modify: func(c *Config) {
				c.Store.Driver = DriverEtcd
				c.Etcd.Endpoints = nil
			},
			expErr: ErrInvalid,
		},
		{
			name: "memory without endpoints",
			modify: func(c *Config) {
				c.Store.Driver = DriverMemory
				c.Etcd.Endpoints = nil
			},
		},
		{
			name: "cluster without member",
			modify: func(c *Config) {
				c.Cluster.Enabled = true
			},
			expErr: ErrInvalid,
		},
		{
			name: "cluster",
			modify: func(c *Config) {
				c.Cluster.Enabled = true
				c.Cluster.Member = "replica-0"
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.modify(&c)
			err := c.Validate()
			if tc.expErr == nil {
				jtest.RequireNil(t, err)
				return
			}
			jtest.Assert(t, tc.expErr, err)
		})
	}
}
