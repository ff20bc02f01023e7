package buffers

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
)

func slot(idx int) decoder.Slot {
	return decoder.Slot{Index: idx}
}

func unit(pts int64) decoder.DecodeUnit {
	return decoder.DecodeUnit{PTS: pts, Payload: []byte{0x01}}
}

// =============================================================================
// Table-Driven Tests: Input slot ownership
// =============================================================================

func TestCoordinator_AcquireReturnsFIFO(t *testing.T) {
	c := New(4)
	for i := 0; i < 3; i++ {
		if err := c.AddFree(slot(i)); err != nil {
			t.Fatalf("AddFree(%d): %v", i, err)
		}
	}
	if c.FreeLen() != 3 {
		t.Fatalf("FreeLen = %d, want 3", c.FreeLen())
	}

	for want := 0; want < 3; want++ {
		s, ok := c.AcquireInput(10 * time.Millisecond)
		if !ok {
			t.Fatalf("AcquireInput #%d failed", want)
		}
		if s.Index != want {
			t.Errorf("slot order: got %d, want %d", s.Index, want)
		}
	}
}

func TestCoordinator_AcquireTimesOutWhenEmpty(t *testing.T) {
	c := New(4)

	start := time.Now()
	_, ok := c.AcquireInput(20 * time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("AcquireInput succeeded on empty pool")
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("returned after %v, expected to wait out the timeout", elapsed)
	}
}

func TestCoordinator_AcquireWakesOnAddFree(t *testing.T) {
	c := New(4)

	done := make(chan decoder.Slot, 1)
	go func() {
		s, ok := c.AcquireInput(time.Second)
		if ok {
			done <- s
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := c.AddFree(slot(7)); err != nil {
		t.Fatalf("AddFree: %v", err)
	}

	select {
	case s, ok := <-done:
		if !ok || s.Index != 7 {
			t.Errorf("waiter got %v (ok=%v), want slot 7", s, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestCoordinator_DoubleReturnRejected(t *testing.T) {
	c := New(4)
	if err := c.AddFree(slot(0)); err != nil {
		t.Fatalf("first AddFree: %v", err)
	}
	err := c.AddFree(slot(0))
	if err == nil {
		t.Fatal("double AddFree accepted")
	}
	if !errors.Is(err, ErrSlotState) {
		t.Errorf("error %v does not wrap ErrSlotState", err)
	}

	// After a legitimate acquire the slot can come back.
	if _, ok := c.AcquireInput(10 * time.Millisecond); !ok {
		t.Fatal("AcquireInput failed")
	}
	if err := c.AddFree(slot(0)); err != nil {
		t.Errorf("AddFree after acquire: %v", err)
	}
}

func TestCoordinator_OutputOwnership(t *testing.T) {
	c := New(4)

	if err := c.CheckOutOutput(3); err != nil {
		t.Fatalf("CheckOutOutput: %v", err)
	}
	if err := c.CheckOutOutput(3); !errors.Is(err, ErrSlotState) {
		t.Errorf("double checkout: got %v, want ErrSlotState", err)
	}
	if err := c.ReleaseOutput(3); err != nil {
		t.Fatalf("ReleaseOutput: %v", err)
	}
	if err := c.ReleaseOutput(3); !errors.Is(err, ErrSlotState) {
		t.Errorf("double release: got %v, want ErrSlotState", err)
	}
}

// =============================================================================
// Table-Driven Tests: Pending queue (drop-oldest)
// =============================================================================

func TestCoordinator_PendingDropOldest(t *testing.T) {
	c := New(3)

	for pts := int64(1); pts <= 3; pts++ {
		if _, dropped := c.PendingPush(unit(pts)); dropped {
			t.Fatalf("push %d dropped below capacity", pts)
		}
	}

	evicted, dropped := c.PendingPush(unit(4))
	if !dropped {
		t.Fatal("push at capacity did not evict")
	}
	if evicted.PTS != 1 {
		t.Errorf("evicted PTS = %d, want 1 (oldest)", evicted.PTS)
	}

	// Remaining order: 2, 3, 4.
	for _, want := range []int64{2, 3, 4} {
		u, ok := c.PendingPop()
		if !ok || u.PTS != want {
			t.Errorf("pop = %d (ok=%v), want %d", u.PTS, ok, want)
		}
	}
	if _, ok := c.PendingPop(); ok {
		t.Error("pop succeeded on empty queue")
	}
}

func TestCoordinator_PendingUnpop(t *testing.T) {
	c := New(4)
	c.PendingPush(unit(1))
	c.PendingPush(unit(2))

	u, _ := c.PendingPop()
	c.PendingUnpop(u)

	if got, _ := c.PendingPop(); got.PTS != 1 {
		t.Errorf("after unpop, head PTS = %d, want 1", got.PTS)
	}
}

func TestCoordinator_PendingDiscard(t *testing.T) {
	c := New(8)
	for pts := int64(1); pts <= 5; pts++ {
		c.PendingPush(unit(pts))
	}

	discarded := c.PendingDiscard()
	if len(discarded) != 5 {
		t.Errorf("discarded %d frames, want 5", len(discarded))
	}
	if c.PendingLen() != 0 {
		t.Errorf("PendingLen = %d after discard", c.PendingLen())
	}
}

func TestCoordinator_WaitWork(t *testing.T) {
	c := New(4)

	// Times out with nothing pending.
	if c.WaitWork(10 * time.Millisecond) {
		t.Error("WaitWork returned true with empty queue")
	}

	// Wakes when work arrives.
	var wg sync.WaitGroup
	wg.Add(1)
	var got bool
	go func() {
		defer wg.Done()
		got = c.WaitWork(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	c.PendingPush(unit(1))
	wg.Wait()
	if !got {
		t.Error("WaitWork did not observe pushed work")
	}
}

// =============================================================================
// Table-Driven Tests: Close / Reset
// =============================================================================

func TestCoordinator_CloseWakesWaiters(t *testing.T) {
	c := New(4)

	done := make(chan bool, 1)
	go func() {
		_, ok := c.AcquireInput(5 * time.Second)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("AcquireInput succeeded on closed coordinator")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the waiter")
	}

	// AddFree on a closed coordinator is a silent no-op.
	if err := c.AddFree(slot(0)); err != nil {
		t.Errorf("AddFree after Close: %v", err)
	}
	if c.FreeLen() != 0 {
		t.Errorf("FreeLen = %d after Close, want 0", c.FreeLen())
	}
}

func TestCoordinator_ResetReopens(t *testing.T) {
	c := New(4)
	c.AddFree(slot(0))
	c.PendingPush(unit(1))
	c.Close()

	c.Reset()

	if c.FreeLen() != 0 || c.PendingLen() != 0 {
		t.Errorf("Reset left state: free=%d pending=%d", c.FreeLen(), c.PendingLen())
	}
	if err := c.AddFree(slot(0)); err != nil {
		t.Fatalf("AddFree after Reset: %v", err)
	}
	if _, ok := c.AcquireInput(10 * time.Millisecond); !ok {
		t.Error("AcquireInput failed after Reset")
	}
}
