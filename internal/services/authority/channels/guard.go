package channels

import "sync"

// DefaultMaxChannels bounds how many kingdom channels one process keeps
// open at a time.
const DefaultMaxChannels = 12

// Guard is the process-wide channel registry. Opening a channel consumes a
// slot until every subscriber leaves; re-acquiring an open name is a no-op
// success so retries never double-spend capacity.
type Guard struct {
	mu    sync.Mutex
	limit int
	open  map[string]struct{}
}

// NewGuard creates a guard with the given slot limit. Non-positive limits
// fall back to DefaultMaxChannels.
func NewGuard(limit int) *Guard {
	if limit <= 0 {
		limit = DefaultMaxChannels
	}
	return &Guard{
		limit: limit,
		open:  make(map[string]struct{}),
	}
}

// Acquire reserves a slot for the named channel. Saturation is reported as
// a normal false, not an error; callers degrade to polling.
func (g *Guard) Acquire(name string) bool {
	if g == nil || name == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.open[name]; ok {
		return true
	}
	if len(g.open) >= g.limit {
		return false
	}
	g.open[name] = struct{}{}
	return true
}

// Release frees the named channel's slot. Releasing a name that is not
// open is a no-op.
func (g *Guard) Release(name string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.open, name)
}

// Active reports how many channels are currently open.
func (g *Guard) Active() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}
