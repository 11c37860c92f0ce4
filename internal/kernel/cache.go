package kernel

import (
	"sync"
)

// compileCache maps specialization keys to compiled kernels. Lookups vastly
// outnumber installs, so reads take the shared lock.
type compileCache struct {
	mu      sync.RWMutex
	entries map[string]*Compiled
}

func newCompileCache() *compileCache {
	return &compileCache{
		entries: make(map[string]*Compiled),
	}
}

func (c *compileCache) Get(key string) (*Compiled, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.entries[key]
	return k, ok
}

func (c *compileCache) Put(key string, k *Compiled) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = k
}

func (c *compileCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
