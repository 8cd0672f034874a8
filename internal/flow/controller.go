// Package flow implements the frame queue and flow controller shared by the
// caption producer and the frame consumer.
//
// One mutex and one sync.Cond guard the queue and the three flags (live,
// flushing, end-of-stream). There is no lock-free fast path: every producer
// and consumer operation goes through the lock, and every state change
// broadcasts so a blocked Take re-evaluates from scratch.
package flow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a point-in-time snapshot of the controller flags and queue depth.
type State struct {
	Live        bool
	Flushing    bool
	EndOfStream bool
	Depth       int
}

// Controller is the frame queue plus the flow state machine.
//
// Roles:
//   - Producer (any goroutine): Submit, RequestEndOfStream
//   - Canceller (any goroutine): SetFlushing, Reset
//   - Consumer (single goroutine): Take
//
// Thread-safety: all methods are safe for concurrent use. Take must only be
// called from one goroutine at a time.
type Controller struct {
	mu   sync.Mutex
	cond *sync.Cond

	items []Item // FIFO, head at index 0

	live        bool
	flushing    bool
	endOfStream bool
}

// NewController creates a controller with an empty queue.
func NewController(live bool) *Controller {
	c := &Controller{live: live}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Submit enqueues markup with its presentation timestamp and wakes waiters.
//
// In live mode the queue is cleared first, so at most one item is pending and
// it is always the newest. Returns the number of items discarded by that
// clear (always 0 when not live).
//
// Never blocks on the consumer, never fails.
func (c *Controller) Submit(content string, pts uint64) (Item, int) {
	item := Item{
		Content:     content,
		PTS:         pts,
		TraceID:     uuid.New().String(),
		SubmittedAt: time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	if c.live {
		dropped = len(c.items)
		c.clearLocked()
	}
	c.items = append(c.items, item)
	c.cond.Broadcast()

	return item, dropped
}

// RequestEndOfStream marks end-of-stream and wakes waiters. Idempotent.
func (c *Controller) RequestEndOfStream() {
	c.mu.Lock()
	c.endOfStream = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// SetFlushing enters (true) or leaves (false) the flushing state and wakes
// waiters. Entering flush is the only way to cancel a blocked Take.
func (c *Controller) SetFlushing(active bool) {
	c.mu.Lock()
	c.flushing = active
	c.cond.Broadcast()
	c.mu.Unlock()
}

// SetLive switches between live (keep newest only) and backlog mode.
// Items already queued are kept; the policy applies from the next Submit.
func (c *Controller) SetLive(live bool) {
	c.mu.Lock()
	c.live = live
	c.mu.Unlock()
}

// Live reports whether live mode is on.
func (c *Controller) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Reset empties the queue and clears end-of-stream. The flushing flag is left
// untouched. Returns the number of discarded items.
//
// Safe to call while a Take is blocked: the waiter is woken and re-reads
// every condition under the lock.
func (c *Controller) Reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.items)
	c.endOfStream = false
	c.clearLocked()
	c.cond.Broadcast()

	return dropped
}

// Take pops the next item, blocking until one is available or a terminal
// condition applies.
//
// Priority, re-evaluated after every wake:
//  1. queue empty AND end-of-stream pending → clear it, OutcomeEndOfStream
//  2. flushing → OutcomeFlushing (queue untouched)
//  3. queue non-empty → pop head, OutcomeItem
//  4. otherwise wait
//
// A queued item is therefore delivered before end-of-stream is reported,
// while flushing vetoes delivery without consuming anything.
func (c *Controller) Take() (Item, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if outcome, ok := c.terminalLocked(); ok {
			return Item{}, outcome
		}

		if len(c.items) > 0 {
			return c.popLocked(), OutcomeItem
		}

		c.cond.Wait()
	}
}

// Flushing reports whether the flushing veto is active.
func (c *Controller) Flushing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushing
}

// State returns a snapshot of flags and queue depth.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Live:        c.live,
		Flushing:    c.flushing,
		EndOfStream: c.endOfStream,
		Depth:       len(c.items),
	}
}

// terminalLocked evaluates the end-of-stream and flushing conditions.
// End-of-stream is edge-triggered: reporting it consumes the flag.
func (c *Controller) terminalLocked() (Outcome, bool) {
	if len(c.items) == 0 && c.endOfStream {
		c.endOfStream = false
		return OutcomeEndOfStream, true
	}
	if c.flushing {
		return OutcomeFlushing, true
	}
	return OutcomeItem, false
}

func (c *Controller) popLocked() Item {
	item := c.items[0]
	c.items[0] = Item{} // release markup for GC
	c.items = c.items[1:]
	if len(c.items) == 0 {
		c.items = nil
	}
	return item
}

func (c *Controller) clearLocked() {
	clear(c.items)
	c.items = c.items[:0]
}
