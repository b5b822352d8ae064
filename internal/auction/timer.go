package auction

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown is the single global auction countdown. Start cancels any prior
// run, emits an immediate tick, then one tick per second; when the remaining
// time reaches zero the expire callback fires exactly once and the countdown
// stops itself. ResetTo moves the remaining time to a fixed replenishment
// value, shortening or lengthening it toward that point.
type Countdown struct {
	clock    clockwork.Clock
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	running   bool
	stopCh    chan struct{}
}

// NewCountdown builds a countdown. Both callbacks are invoked from the
// countdown's own goroutine and must not be nil.
func NewCountdown(clock clockwork.Clock, onTick func(int), onExpire func()) *Countdown {
	return &Countdown{
		clock:    clock,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start begins a fresh countdown of the given number of seconds, stopping
// any countdown already running. No two countdowns run concurrently.
func (c *Countdown) Start(seconds int) {
	c.Stop()

	c.mu.Lock()
	c.remaining = seconds
	c.running = true
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.mu.Unlock()

	go c.run(stopCh, seconds)
}

func (c *Countdown) run(stopCh chan struct{}, initial int) {
	c.onTick(initial)

	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if !c.running || c.stopCh != stopCh {
				// A Stop or a newer Start raced this tick.
				c.mu.Unlock()
				return
			}
			c.remaining--
			rem := c.remaining
			if rem <= 0 {
				c.running = false
				c.stopCh = nil
				c.mu.Unlock()
				c.onExpire()
				return
			}
			c.mu.Unlock()
			c.onTick(rem)
		}
	}
}

// ResetTo sets the remaining time to the fixed replenishment value. It is a
// no-op when the countdown is not running.
func (c *Countdown) ResetTo(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.remaining = seconds
	}
}

// Stop halts the countdown. Idempotent; safe to call when not running.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.running = false
		close(c.stopCh)
		c.stopCh = nil
	}
}

// Remaining returns the seconds left, or the last value before the countdown
// stopped.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Running reports whether a countdown is in progress.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
