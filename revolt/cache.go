package revolt

import "sync"

// cache holds the objects the gateway keeps us informed about. Entries are
// dropped on update events and fetched again on next use.
type cache struct {
	mu       sync.RWMutex
	users    map[string]user
	servers  map[string]server
	channels map[string]channel
}

func newCache() *cache {
	return &cache{
		users:    make(map[string]user),
		servers:  make(map[string]server),
		channels: make(map[string]channel),
	}
}

func (c *cache) user(id string) (user, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

func (c *cache) server(id string) (server, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.servers[id]
	return s, ok
}

func (c *cache) channel(id string) (channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	return ch, ok
}

func (c *cache) putUser(u user) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
}

func (c *cache) putServer(s server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[s.ID] = s
}

func (c *cache) putChannel(ch channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ID] = ch
}

func (c *cache) forgetUser(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, id)
}

func (c *cache) forgetServer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.servers, id)
}

func (c *cache) forgetChannel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, id)
}

// reset replaces the cache contents with the state sent on connect.
func (c *cache) reset(users []user, servers []server, channels []channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[string]user, len(users))
	for _, u := range users {
		c.users[u.ID] = u
	}
	c.servers = make(map[string]server, len(servers))
	for _, s := range servers {
		c.servers[s.ID] = s
	}
	c.channels = make(map[string]channel, len(channels))
	for _, ch := range channels {
		c.channels[ch.ID] = ch
	}
}
