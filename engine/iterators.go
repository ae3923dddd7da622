package engine

import "github.com/tachyondb/tachyon/core"

// singleIterator yields exactly one point. The hinted scan path uses it to
// stand a segment-header aggregate in for the segment's rows.
type singleIterator struct {
	point core.Vector
	done  bool
}

func (it *singleIterator) Next() bool {
	if it.done {
		return false
	}
	it.done = true
	return true
}

func (it *singleIterator) At() core.Vector { return it.point }
func (it *singleIterator) Error() error    { return nil }
func (it *singleIterator) Close() error    { it.done = true; return nil }

// countAdapter rewrites each point's value to a partial count of one, so a
// raw scan can feed the same consumer as header-derived partial counts.
type countAdapter struct {
	inner core.VectorIterator
}

func (it *countAdapter) Next() bool { return it.inner.Next() }

func (it *countAdapter) At() core.Vector {
	v := it.inner.At()
	return core.Vector{Timestamp: v.Timestamp, Value: core.NewUint64Value(1)}
}

func (it *countAdapter) Error() error { return it.inner.Error() }
func (it *countAdapter) Close() error { return it.inner.Close() }

// chainIterator concatenates iterators, draining each in turn.
type chainIterator struct {
	parts []core.VectorIterator
	pos   int
	err   error
}

func (it *chainIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.pos < len(it.parts) {
		part := it.parts[it.pos]
		if part.Next() {
			return true
		}
		if err := part.Error(); err != nil {
			it.err = err
			return false
		}
		part.Close()
		it.pos++
	}
	return false
}

func (it *chainIterator) At() core.Vector { return it.parts[it.pos].At() }

func (it *chainIterator) Error() error { return it.err }

func (it *chainIterator) Close() error {
	var firstErr error
	for ; it.pos < len(it.parts); it.pos++ {
		if err := it.parts[it.pos].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
