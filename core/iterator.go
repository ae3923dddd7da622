package core

// VectorIterator is the pull-based cursor every scan layer produces: the
// memtable drain, a single segment scan, and the cross-segment merge all
// implement it. The sequence is strictly timestamp-ascending.
//
// Next advances and reports validity, At is only meaningful after a true
// Next, Error surfaces any I/O failure, and Close releases underlying
// resources. Iterators are not safe for concurrent use.
type VectorIterator interface {
	Next() bool
	At() Vector
	Error() error
	Close() error
}

type emptyIterator struct{}

// NewEmptyIterator returns an iterator that is exhausted from the start.
// Used for scans over empty ranges (start == end) and streams with no
// flushed data.
func NewEmptyIterator() VectorIterator {
	return emptyIterator{}
}

func (emptyIterator) Next() bool   { return false }
func (emptyIterator) At() Vector   { return Vector{} }
func (emptyIterator) Error() error { return nil }
func (emptyIterator) Close() error { return nil }
