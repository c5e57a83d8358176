// Package completion provides the bounded-wait primitives used to
// synchronize control-path code with acknowledgments signaled from the
// interrupt path. Nothing in this package blocks without a timeout.
package completion

import (
	"sync"
	"time"
)

// Completion is a single-slot handshake: one side signals an event, the
// other blocks until the event arrives or a timeout expires. A signal
// delivered before the wait is not lost; a second signal before the
// slot is consumed is coalesced into the first.
type Completion struct {
	mu sync.Mutex
	ch chan struct{}
}

// New returns an armed, unsignaled Completion.
func New() *Completion {
	return &Completion{ch: make(chan struct{}, 1)}
}

// Reset discards any stale signal so the next Wait only observes
// signals delivered after this call.
func (c *Completion) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.ch:
	default:
	}
}

// Signal marks the event as having occurred. It never blocks and is
// safe to call from the interrupt dispatch path.
func (c *Completion) Signal() {
	select {
	case c.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is signaled or timeout expires. It
// reports whether the signal arrived in time.
func (c *Completion) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.ch:
		return true
	case <-t.C:
		return false
	}
}

// Poll repeatedly evaluates cond every interval until it reports true
// or timeout expires. It reports whether cond became true. Used where
// the hardware exposes a status bit instead of an interrupt.
func Poll(cond func() bool, timeout, interval time.Duration) bool {
	if cond() {
		return true
	}
	deadline := time.Now().Add(timeout)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for range tick.C {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
	return false
}
