package stats

import "time"

// tsEntry records when a frame entered the decoder and whether it was a
// keyframe (which selects the EMA weight at output time).
type tsEntry struct {
	enqueuedAt time.Time
	keyframe   bool
}

// timestampMap maps pts -> enqueue time with a hard size bound.
//
// Every entry leaves the map exactly once: either matched by take() when
// the decoded frame appears, or evicted oldest-first when the bound is hit
// (output never arrived, e.g. the decoder swallowed the frame).
type timestampMap struct {
	capacity int
	entries  map[int64]tsEntry

	// Insertion order of pts keys. May hold keys already taken; eviction
	// skips those lazily.
	order []int64
}

func newTimestampMap(capacity int) *timestampMap {
	if capacity < 1 {
		capacity = 1
	}
	return &timestampMap{
		capacity: capacity,
		entries:  make(map[int64]tsEntry, capacity),
	}
}

// put inserts an entry, evicting the oldest live entry if at capacity.
func (t *timestampMap) put(pts int64, e tsEntry) {
	if _, exists := t.entries[pts]; exists {
		t.entries[pts] = e
		return
	}
	for len(t.entries) >= t.capacity {
		t.evictOldest()
	}
	t.entries[pts] = e
	t.order = append(t.order, pts)
}

// take removes and returns the entry for pts.
func (t *timestampMap) take(pts int64) (tsEntry, bool) {
	e, ok := t.entries[pts]
	if !ok {
		return tsEntry{}, false
	}
	delete(t.entries, pts)
	return e, true
}

// evictOldest drops the oldest live entry, skipping stale order keys.
func (t *timestampMap) evictOldest() {
	for len(t.order) > 0 {
		pts := t.order[0]
		t.order = t.order[1:]
		if _, ok := t.entries[pts]; ok {
			delete(t.entries, pts)
			return
		}
	}
}

// size returns the number of live entries.
func (t *timestampMap) size() int {
	return len(t.entries)
}
