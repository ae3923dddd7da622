package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/tachyondb/tachyon/core"
)

// Block payload layout (before compression): point count as uvarint, the
// first timestamp as uvarint, each subsequent timestamp as a uvarint delta
// from its predecessor, then all values as raw 8-byte little-endian words.
// Timestamps are strictly ascending within a block, so every delta is >= 1.

func encodeBlock(points []core.Vector) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64*(len(points)+1)+8*len(points))
	var tmp [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(tmp[:], uint64(len(points)))
	buf = append(buf, tmp[:n]...)

	prev := core.Timestamp(0)
	for i, p := range points {
		delta := uint64(p.Timestamp)
		if i > 0 {
			delta = uint64(p.Timestamp - prev)
		}
		n = binary.PutUvarint(tmp[:], delta)
		buf = append(buf, tmp[:n]...)
		prev = p.Timestamp
	}

	for _, p := range points {
		binary.LittleEndian.PutUint64(tmp[:8], p.Value.Bits())
		buf = append(buf, tmp[:8]...)
	}
	return buf
}

func decodeBlock(payload []byte, expectCount uint32) ([]core.Vector, error) {
	count, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad block point count", core.ErrCorrupted)
	}
	if count != uint64(expectCount) {
		return nil, fmt.Errorf("%w: block holds %d points, index says %d", core.ErrCorrupted, count, expectCount)
	}
	payload = payload[n:]

	// A point costs at least one delta byte plus an 8-byte value, so the
	// payload bounds the plausible count. Checked before allocating so a
	// corrupt count cannot force a huge slice.
	if count > uint64(len(payload))/9 {
		return nil, fmt.Errorf("%w: block too small for %d points", core.ErrCorrupted, count)
	}

	points := make([]core.Vector, count)
	prev := core.Timestamp(0)
	for i := range points {
		delta, n := binary.Uvarint(payload)
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad timestamp delta at point %d", core.ErrCorrupted, i)
		}
		payload = payload[n:]
		if i == 0 {
			prev = core.Timestamp(delta)
		} else {
			prev += core.Timestamp(delta)
		}
		points[i].Timestamp = prev
	}

	if len(payload) < 8*int(count) {
		return nil, fmt.Errorf("%w: block value section truncated", core.ErrCorrupted)
	}
	for i := range points {
		points[i].Value = core.ValueFromBits(binary.LittleEndian.Uint64(payload[8*i:]))
	}
	return points, nil
}
