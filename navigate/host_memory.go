package navigate

import (
	"strings"
	"sync"
	"time"
)

// HostMemory remembers hosts whose primary wait strategy timed out, so the
// next navigation goes straight to dom-ready. Entries expire after the TTL
// and are pruned periodically.
type HostMemory struct {
	store sync.Map // host (string) -> time.Time expiry
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// NewHostMemory creates a HostMemory and starts an hourly prune loop.
// Call Stop to end it.
func NewHostMemory(ttl time.Duration) *HostMemory {
	hm := &HostMemory{
		ttl:  ttl,
		now:  time.Now,
		done: make(chan struct{}),
	}
	go hm.pruneLoop()
	return hm
}

// IsSlow reports whether host timed out recently.
func (hm *HostMemory) IsSlow(host string) bool {
	host = strings.ToLower(host)
	val, ok := hm.store.Load(host)
	if !ok {
		return false
	}
	if hm.now().After(val.(time.Time)) {
		hm.store.Delete(host)
		return false
	}
	return true
}

// MarkSlow records a timeout for host.
func (hm *HostMemory) MarkSlow(host string) {
	if host == "" || hm.ttl <= 0 {
		return
	}
	hm.store.Store(strings.ToLower(host), hm.now().Add(hm.ttl))
}

// Len returns the number of live entries.
func (hm *HostMemory) Len() int {
	n := 0
	now := hm.now()
	hm.store.Range(func(_, value any) bool {
		if !now.After(value.(time.Time)) {
			n++
		}
		return true
	})
	return n
}

// Stop terminates the prune loop. It is safe to call more than once.
func (hm *HostMemory) Stop() {
	hm.once.Do(func() { close(hm.done) })
}

func (hm *HostMemory) pruneLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-hm.done:
			return
		case <-ticker.C:
			now := hm.now()
			hm.store.Range(func(key, value any) bool {
				if now.After(value.(time.Time)) {
					hm.store.Delete(key)
				}
				return true
			})
		}
	}
}
