package clockfake

import (
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-guard/internal/clock"
)

// Clock is a manually advanced clock. Timers fire synchronously inside
// Advance, on the caller's goroutine, in deadline order.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
	nextID int
}

var _ clock.Clock = (*Clock)(nil)

func New(now time.Time) *Clock {
	return &Clock{now: now}
}

type timer struct {
	id      int
	clock   *Clock
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &timer{id: c.nextID, clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and runs every timer that became due.
// Callbacks run without the clock lock held, so they may arm new timers; those
// fire within the same call if they are also due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.when.After(c.now) {
			c.now = next.when
		}
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// Set jumps to t without firing timers, to simulate wall-clock skew.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Pending returns the number of armed timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// NextDeadline returns the earliest armed timer deadline.
func (c *Clock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.nextDue(time.Time{}.AddDate(9999, 0, 0))
	if next == nil {
		return time.Time{}, false
	}
	return next.when, true
}

func (c *Clock) nextDue(limit time.Time) *timer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].when.Equal(live[j].when) {
			return live[i].id < live[j].id
		}
		return live[i].when.Before(live[j].when)
	})
	if len(live) == 0 || live[0].when.After(limit) {
		return nil
	}
	return live[0]
}
