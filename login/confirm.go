package login

import (
	"sort"
	"sync"
)

// Confirmations maps in-flight request IDs to their confirmation channels.
// It is safe for concurrent use.
type Confirmations struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewConfirmations returns an empty registry.
func NewConfirmations() *Confirmations {
	return &Confirmations{pending: make(map[string]chan struct{})}
}

// Register creates the channel for id. The returned release func removes
// the entry and must be called when the request finishes.
func (c *Confirmations) Register(id string) (<-chan struct{}, func()) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		if c.pending[id] == ch {
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}
}

// Confirm signals the login registered under id. It returns false when no
// such login is pending.
func (c *Confirmations) Confirm(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[id]
	if !ok {
		return false
	}
	close(ch)
	delete(c.pending, id)
	return true
}

// Pending returns the number of registered logins.
func (c *Confirmations) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IDs returns the registered request IDs in sorted order.
func (c *Confirmations) IDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}
