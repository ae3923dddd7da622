package memtable

import (
	"github.com/INLOpen/skiplist"

	"github.com/tachyondb/tachyon/core"
)

// memtableIterator walks the buffer in ascending timestamp order. It is not
// safe for concurrent use.
type memtableIterator struct {
	iter    *skiplist.Iterator[core.Timestamp, core.Value]
	started bool
	valid   bool
	current core.Vector
}

var _ core.VectorIterator = (*memtableIterator)(nil)

func (it *memtableIterator) Next() bool {
	if !it.started {
		it.started = true
		it.valid = it.iter.First()
	} else if it.valid {
		it.valid = it.iter.Next()
	}

	if !it.valid {
		return false
	}
	it.current = core.Vector{Timestamp: it.iter.Key(), Value: it.iter.Value()}
	return true
}

func (it *memtableIterator) At() core.Vector {
	return it.current
}

func (it *memtableIterator) Error() error { return nil }

func (it *memtableIterator) Close() error {
	it.valid = false
	return nil
}
