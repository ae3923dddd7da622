package segment

import (
	"container/heap"

	"github.com/tachyondb/tachyon/core"
)

// Source pairs an iterator with its precedence rank. When two sources yield
// the same timestamp, the higher rank wins; stream stores rank segments by
// flush sequence so the most recently flushed write survives
// (last-writer-wins across flushes).
type Source struct {
	Iterator core.VectorIterator
	Rank     uint64
}

type mergeItem struct {
	iter    core.VectorIterator
	rank    uint64
	current core.Vector
}

type mergeHeap []*mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].current.Timestamp != h[j].current.Timestamp {
		return h[i].current.Timestamp < h[j].current.Timestamp
	}
	// Equal timestamps: the newer source sorts first so it is emitted and
	// the older duplicates are discarded.
	return h[i].rank > h[j].rank
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergingIterator merges several sorted sources into one strictly ascending
// sequence, discarding older duplicates of the same timestamp.
type MergingIterator struct {
	heap    mergeHeap
	current core.Vector
	started bool
	err     error
	closed  bool
}

var _ core.VectorIterator = (*MergingIterator)(nil)

// NewMergingIterator builds the merge over the given sources. Sources that
// are exhausted from the start are closed immediately. A single live source
// is returned unwrapped.
func NewMergingIterator(sources []Source) core.VectorIterator {
	switch len(sources) {
	case 0:
		return core.NewEmptyIterator()
	case 1:
		return sources[0].Iterator
	}

	mi := &MergingIterator{heap: make(mergeHeap, 0, len(sources))}
	for _, src := range sources {
		if src.Iterator.Next() {
			mi.heap = append(mi.heap, &mergeItem{
				iter:    src.Iterator,
				rank:    src.Rank,
				current: src.Iterator.At(),
			})
		} else {
			if err := src.Iterator.Error(); err != nil && mi.err == nil {
				mi.err = err
			}
			src.Iterator.Close()
		}
	}
	heap.Init(&mi.heap)
	return mi
}

func (mi *MergingIterator) Next() bool {
	if mi.err != nil || mi.closed {
		return false
	}

	if mi.started {
		// Drop every source entry carrying the timestamp just emitted: the
		// winner that produced it, plus any older duplicates.
		emitted := mi.current.Timestamp
		for len(mi.heap) > 0 && mi.heap[0].current.Timestamp == emitted {
			if !mi.advanceTop() {
				return false
			}
		}
	}

	if len(mi.heap) == 0 {
		return false
	}
	mi.current = mi.heap[0].current
	mi.started = true
	return true
}

// advanceTop steps the top iterator and restores the heap, removing the
// iterator when it is exhausted. It reports false on iterator error.
func (mi *MergingIterator) advanceTop() bool {
	top := mi.heap[0]
	if top.iter.Next() {
		top.current = top.iter.At()
		heap.Fix(&mi.heap, 0)
		return true
	}
	if err := top.iter.Error(); err != nil {
		mi.err = err
		return false
	}
	top.iter.Close()
	heap.Pop(&mi.heap)
	return true
}

func (mi *MergingIterator) At() core.Vector {
	return mi.current
}

func (mi *MergingIterator) Error() error { return mi.err }

func (mi *MergingIterator) Close() error {
	if mi.closed {
		return nil
	}
	mi.closed = true
	var firstErr error
	for _, item := range mi.heap {
		if err := item.iter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	mi.heap = nil
	return firstErr
}
