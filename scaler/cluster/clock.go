package cluster

import (
	"sync"
	"time"
)

// Epoch is the instant a VirtualClock starts at.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// VirtualClock is simulated time: it moves only when the cluster does work.
// Safe for concurrent use.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: Epoch}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward. Non-positive d is ignored.
func (c *VirtualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Elapsed returns the simulated time since Epoch.
func (c *VirtualClock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}
