package segment

import (
	"github.com/tachyondb/tachyon/core"
)

// segmentIterator walks the blocks of one segment, decoding lazily. It is
// not safe for concurrent use; open one per scan.
type segmentIterator struct {
	r     *Reader
	block int
	start core.Timestamp
	end   core.Timestamp

	points  []core.Vector
	pos     int
	current core.Vector
	err     error
	done    bool
}

var _ core.VectorIterator = (*segmentIterator)(nil)

func (it *segmentIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	for {
		it.pos++
		if it.pos < len(it.points) {
			p := it.points[it.pos]
			if p.Timestamp >= it.end {
				it.done = true
				return false
			}
			if p.Timestamp < it.start {
				// Leading points of the first block fall before the range.
				continue
			}
			it.current = p
			return true
		}

		if it.block >= len(it.r.index) || it.r.index[it.block].minTs >= it.end {
			it.done = true
			return false
		}

		points, err := it.r.readBlock(it.block)
		if err != nil {
			it.err = err
			return false
		}
		it.block++
		it.points = points
		it.pos = -1
	}
}

func (it *segmentIterator) At() core.Vector {
	return it.current
}

func (it *segmentIterator) Error() error { return it.err }

func (it *segmentIterator) Close() error {
	it.done = true
	it.points = nil
	return nil
}
