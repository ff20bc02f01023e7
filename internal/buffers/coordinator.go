// Package buffers coordinates the finite hardware buffer pool and the
// bounded software fallback queue.
//
// Two rules govern everything here:
//
//  1. A buffer slot has exactly one owner at a time. Check-out and return
//     transitions are validated; a double check-out or double return is a
//     programming error and is reported as one.
//  2. The fallback queue never blocks and never rejects: when it is full
//     the OLDEST pending frame is evicted, because in real-time video the
//     freshest frame always wins.
package buffers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
)

// ErrSlotState is wrapped by double-checkout/double-return errors.
var ErrSlotState = errors.New("buffers: invalid slot state transition")

// Coordinator manages free input slots and the pending-frame queue for one
// pipeline session. All methods are safe for concurrent use.
type Coordinator struct {
	mu   sync.Mutex
	cond *sync.Cond

	// Free input slots, FIFO. Fed by the async event loop via AddFree.
	free []decoder.Slot

	// Input slot ownership, by slot index. true = lent out to the
	// pipeline (or never seen), false = sitting in the free list.
	inputOut map[int]bool

	// Output slot ownership, by slot index.
	outputOut map[int]bool

	// Pending frames awaiting an input slot (sync fallback path only).
	pending    []decoder.DecodeUnit
	pendingCap int

	closed bool
}

// New creates a coordinator with the given pending-queue capacity.
func New(pendingCap int) *Coordinator {
	if pendingCap < 1 {
		pendingCap = 1
	}
	c := &Coordinator{
		inputOut:   make(map[int]bool),
		outputOut:  make(map[int]bool),
		pendingCap: pendingCap,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// AddFree returns an input slot to the free pool, waking one waiter.
// Returns an error if the slot was already free (double return).
func (c *Coordinator) AddFree(slot decoder.Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if out, seen := c.inputOut[slot.Index]; seen && !out {
		return fmt.Errorf("%w: input slot %d returned twice", ErrSlotState, slot.Index)
	}
	c.inputOut[slot.Index] = false
	c.free = append(c.free, slot)
	c.cond.Signal()
	return nil
}

// AcquireInput checks out a free input slot, waiting up to timeout.
// The bounded wait keeps the ingestion thread from blocking indefinitely
// behind a wedged decoder; on timeout the caller drops the frame.
func (c *Coordinator) AcquireInput(timeout time.Duration) (decoder.Slot, bool) {
	deadline := time.Now().Add(timeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.free) == 0 && !c.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return decoder.Slot{}, false
		}
		c.waitWithTimeout(remaining)
	}
	if c.closed || len(c.free) == 0 {
		return decoder.Slot{}, false
	}
	slot := c.free[0]
	c.free = c.free[1:]
	c.inputOut[slot.Index] = true
	return slot, true
}

// CheckOutOutput records that an output slot left the decoder.
func (c *Coordinator) CheckOutOutput(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outputOut[index] {
		return fmt.Errorf("%w: output slot %d checked out twice", ErrSlotState, index)
	}
	c.outputOut[index] = true
	return nil
}

// ReleaseOutput records that an output slot went back to the decoder.
func (c *Coordinator) ReleaseOutput(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.outputOut[index] {
		return fmt.Errorf("%w: output slot %d released twice", ErrSlotState, index)
	}
	c.outputOut[index] = false
	return nil
}

// PendingPush queues a frame for the poll loop. It never fails: when the
// queue is at capacity the oldest frame is evicted and returned so the
// caller can account for exactly one drop.
func (c *Coordinator) PendingPush(unit decoder.DecodeUnit) (evicted decoder.DecodeUnit, dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) >= c.pendingCap {
		evicted = c.pending[0]
		c.pending = c.pending[1:]
		dropped = true
	}
	c.pending = append(c.pending, unit)
	c.cond.Signal()
	return evicted, dropped
}

// PendingPop removes the oldest queued frame.
func (c *Coordinator) PendingPop() (decoder.DecodeUnit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return decoder.DecodeUnit{}, false
	}
	unit := c.pending[0]
	c.pending = c.pending[1:]
	return unit, true
}

// PendingUnpop pushes a frame back to the FRONT of the queue, used when the
// poll loop pops a frame but cannot get an input slot for it.
func (c *Coordinator) PendingUnpop(unit decoder.DecodeUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append([]decoder.DecodeUnit{unit}, c.pending...)
}

// PendingLen returns the queue depth.
func (c *Coordinator) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PendingDiscard empties the queue and returns what was in it.
func (c *Coordinator) PendingDiscard() []decoder.DecodeUnit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// WaitWork blocks until pending work arrives, the coordinator closes, or
// the timeout elapses. Used by the poll loop so it never busy-spins.
// Returns true if there is pending work.
func (c *Coordinator) WaitWork(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) == 0 && !c.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		c.waitWithTimeout(remaining)
	}
	return len(c.pending) > 0
}

// Close wakes every waiter and rejects further acquisitions. The free list
// and pending queue survive for inspection/discard by the caller.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Reset reopens a closed coordinator and clears all state for a fresh
// session.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.closed = false
	c.free = nil
	c.pending = nil
	c.inputOut = make(map[int]bool)
	c.outputOut = make(map[int]bool)
	c.mu.Unlock()
}

// FreeLen returns the number of free input slots held.
func (c *Coordinator) FreeLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.free)
}

// waitWithTimeout waits on the condition variable, waking itself after at
// most d. Caller must hold c.mu.
func (c *Coordinator) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		c.cond.Broadcast()
	})
	c.cond.Wait()
	timer.Stop()
}
