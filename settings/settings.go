// Package settings stores per-server bot settings.
package settings

import (
	"context"
	"sync"
)

// MaxAutoRoles is the most autoroles a server may configure.
const MaxAutoRoles = 25

// ServerSettings is the configuration of one server.
type ServerSettings struct {
	ServerID string

	// AutoRoles are given to members when they join, in order.
	AutoRoles []string
}

// Clone returns a deep copy of s.
func (s ServerSettings) Clone() ServerSettings {
	s.AutoRoles = append([]string(nil), s.AutoRoles...)
	return s
}

// Store reads and writes ServerSettings.
type Store interface {
	// Get returns the server's settings or false if none were saved.
	Get(ctx context.Context, serverID string) (ServerSettings, bool, error)

	// Save replaces the server's settings.
	Save(ctx context.Context, s ServerSettings) error
}

// Memory is a Store which keeps settings in memory only.
type Memory struct {
	mu      sync.RWMutex
	servers map[string]ServerSettings
}

func NewMemory() *Memory {
	return &Memory{servers: make(map[string]ServerSettings)}
}

func (m *Memory) Get(_ context.Context, serverID string) (ServerSettings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.servers[serverID]
	return s.Clone(), ok, nil
}

func (m *Memory) Save(_ context.Context, s ServerSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[s.ServerID] = s.Clone()
	return nil
}

// Cached is a read-through cache in front of another Store. Writes go to
// the backing store first and are only cached once they succeed. Entries
// never expire, so the backing store must not be written to by anyone else.
type Cached struct {
	backing Store

	mu      sync.RWMutex
	servers map[string]cachedEntry
}

type cachedEntry struct {
	settings ServerSettings
	found    bool
}

func NewCached(backing Store) *Cached {
	return &Cached{backing: backing, servers: make(map[string]cachedEntry)}
}

func (c *Cached) Get(ctx context.Context, serverID string) (ServerSettings, bool, error) {
	c.mu.RLock()
	e, ok := c.servers[serverID]
	c.mu.RUnlock()
	if ok {
		return e.settings.Clone(), e.found, nil
	}

	s, found, err := c.backing.Get(ctx, serverID)
	if err != nil {
		return ServerSettings{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// A Save during the read is newer than what was read.
	if e, ok := c.servers[serverID]; ok {
		return e.settings.Clone(), e.found, nil
	}
	c.servers[serverID] = cachedEntry{settings: s.Clone(), found: found}
	return s, found, nil
}

func (c *Cached) Save(ctx context.Context, s ServerSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.backing.Save(ctx, s); err != nil {
		return err
	}
	c.servers[s.ServerID] = cachedEntry{settings: s.Clone(), found: true}
	return nil
}
