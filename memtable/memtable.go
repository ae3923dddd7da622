// Package memtable holds the per-stream write buffer. Inserted points stay
// here, invisible to queries, until the owning stream store flushes them
// into an immutable segment.
package memtable

import (
	"sync"

	"github.com/INLOpen/skiplist"

	"github.com/tachyondb/tachyon/core"
)

// pointSize is the estimated in-memory cost of one buffered point.
const pointSize = int64(16)

func comparator(a, b core.Timestamp) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Memtable buffers inserted points sorted by timestamp. Inserting a
// timestamp that is already buffered overwrites the previous value
// (last-writer-wins), so the buffer never holds duplicate timestamps.
//
// A Memtable is safe for concurrent use. The flush path detaches the whole
// buffer and replaces it with a fresh one, then drains the detached buffer
// without any concurrent writers.
type Memtable struct {
	mu        sync.RWMutex
	data      *skiplist.SkipList[core.Timestamp, core.Value]
	sizeBytes int64
}

// New creates an empty write buffer.
func New() *Memtable {
	return &Memtable{
		data: skiplist.NewWithComparator[core.Timestamp, core.Value](comparator),
	}
}

// Put buffers one point. It reports whether an already-buffered point with
// the same timestamp was overwritten.
func (m *Memtable) Put(ts core.Timestamp, value core.Value) (replaced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldNode := m.data.Insert(ts, value)
	if oldNode != nil {
		return true
	}
	m.sizeBytes += pointSize
	return false
}

// PutIfAbsent buffers a point only when its timestamp is not already
// present, and reports whether it did. A failed flush uses it to return
// drained points to the live buffer without clobbering values written
// while the flush ran.
func (m *Memtable) PutIfAbsent(ts core.Timestamp, value core.Value) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.Search(ts); ok {
		return false
	}
	m.data.Insert(ts, value)
	m.sizeBytes += pointSize
	return true
}

// Len returns the number of distinct buffered timestamps.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Len()
}

// SizeBytes returns the estimated memory held by the buffer.
func (m *Memtable) SizeBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sizeBytes
}

// IsEmpty reports whether there is anything to flush.
func (m *Memtable) IsEmpty() bool {
	return m.Len() == 0
}

// Bounds returns the smallest and largest buffered timestamps. ok is false
// when the buffer is empty.
func (m *Memtable) Bounds() (min, max core.Timestamp, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	iter := m.data.NewIterator()
	if !iter.First() {
		return 0, 0, false
	}
	min = iter.Key()
	if !iter.Last() {
		return 0, 0, false
	}
	max = iter.Key()
	return min, max, true
}

// NewIterator returns an ascending iterator over every buffered point. The
// caller must prevent concurrent Puts for the iterator's lifetime; the
// flush path does so by detaching the buffer before draining it.
func (m *Memtable) NewIterator() core.VectorIterator {
	return &memtableIterator{iter: m.data.NewIterator()}
}
