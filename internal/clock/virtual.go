package clock

import (
	"sync"
	"time"
)

// VirtualClock is a controllable clock for deterministic tests and replays.
// Advancing it fires channel waiters and AfterFunc callbacks in deadline
// order, moving the current time to each deadline first, so a callback that
// re-arms itself sees every intermediate tick.
//
// Thread-safe for concurrent use.
type VirtualClock struct {
	mu      sync.RWMutex
	current time.Time
	waiters []*waiter
	seq     uint64
}

type waiter struct {
	id       uint64
	deadline time.Time
	ch       chan time.Time
	fn       func()
}

// NewVirtualClock creates a VirtualClock starting at the given time.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{
		current: start,
	}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Since returns the virtual duration elapsed since t.
func (c *VirtualClock) Since(t time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Sub(t)
}

// After returns a channel that receives the virtual time once the clock
// has advanced past the current time plus d.
func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}

	c.seq++
	c.waiters = append(c.waiters, &waiter{
		id:       c.seq,
		deadline: c.current.Add(d),
		ch:       ch,
	})
	return ch
}

// AfterFunc registers f to run when the clock reaches now+d. A non-positive
// d runs f on a new goroutine right away, like time.AfterFunc.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &virtualTimer{clock: c, id: c.seq}
	if d <= 0 {
		go f()
		return t
	}

	c.waiters = append(c.waiters, &waiter{
		id:       c.seq,
		deadline: c.current.Add(d),
		fn:       f,
	})
	return t
}

// Advance moves the virtual clock forward by the given duration.
// Panics if d is negative.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}
	c.advanceTo(c.Now().Add(d))
}

// Set sets the virtual clock to an exact time.
// Panics if t is before the current time.
func (c *VirtualClock) Set(t time.Time) {
	if t.Before(c.Now()) {
		panic("clock: cannot set time to the past")
	}
	c.advanceTo(t)
}

// Pending returns the number of waiters and timers not yet fired.
func (c *VirtualClock) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.waiters)
}

// advanceTo fires due waiters one at a time, earliest first. Callbacks run
// without c.mu held so they may read the clock or register new timers;
// timers registered by a callback are fired in the same pass when due.
func (c *VirtualClock) advanceTo(target time.Time) {
	for {
		c.mu.Lock()
		idx := -1
		for i, w := range c.waiters {
			if w.deadline.After(target) {
				continue
			}
			if idx < 0 || w.deadline.Before(c.waiters[idx].deadline) {
				idx = i
			}
		}
		if idx < 0 {
			if target.After(c.current) {
				c.current = target
			}
			c.mu.Unlock()
			return
		}

		w := c.waiters[idx]
		c.waiters = append(c.waiters[:idx], c.waiters[idx+1:]...)
		if w.deadline.After(c.current) {
			c.current = w.deadline
		}
		now := c.current
		c.mu.Unlock()

		if w.fn != nil {
			w.fn()
		} else {
			w.ch <- now
		}
	}
}

func (c *VirtualClock) stop(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, w := range c.waiters {
		if w.id == id {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

type virtualTimer struct {
	clock *VirtualClock
	id    uint64
}

func (t *virtualTimer) Stop() bool {
	return t.clock.stop(t.id)
}
