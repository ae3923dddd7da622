package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/tachyondb/tachyon/core"
)

// Header carries segment-wide metadata plus precomputed aggregates. The
// aggregates let a hinted scan answer sum/count/min/max over a fully-covered
// segment without touching its data blocks.
type Header struct {
	Version     uint16
	ValueType   core.ValueType
	Compression byte
	StreamID    uuid.UUID

	Count        uint64
	MinTimestamp core.Timestamp
	MaxTimestamp core.Timestamp

	Sum        core.Value
	MinValue   core.Value
	MaxValue   core.Value
	FirstValue core.Value
}

func (h *Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, headerMagic)

	b := buf[headerMagicSize:]
	binary.LittleEndian.PutUint16(b[0:2], h.Version)
	b[2] = byte(h.ValueType)
	b[3] = h.Compression
	copy(b[4:20], h.StreamID[:])
	binary.LittleEndian.PutUint64(b[20:28], h.Count)
	binary.LittleEndian.PutUint64(b[28:36], uint64(h.MinTimestamp))
	binary.LittleEndian.PutUint64(b[36:44], uint64(h.MaxTimestamp))
	binary.LittleEndian.PutUint64(b[44:52], h.Sum.Bits())
	binary.LittleEndian.PutUint64(b[52:60], h.MinValue.Bits())
	binary.LittleEndian.PutUint64(b[60:68], h.MaxValue.Bits())
	binary.LittleEndian.PutUint64(b[68:76], h.FirstValue.Bits())
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header truncated (%d bytes)", core.ErrCorrupted, len(buf))
	}
	if string(buf[:headerMagicSize]) != headerMagic {
		return Header{}, fmt.Errorf("%w: bad header magic", core.ErrCorrupted)
	}

	b := buf[headerMagicSize:]
	var h Header
	h.Version = binary.LittleEndian.Uint16(b[0:2])
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: unsupported segment version %d", core.ErrCorrupted, h.Version)
	}
	vt, err := core.ValueTypeFromByte(b[2])
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", core.ErrCorrupted, err)
	}
	h.ValueType = vt
	h.Compression = b[3]
	copy(h.StreamID[:], b[4:20])
	h.Count = binary.LittleEndian.Uint64(b[20:28])
	h.MinTimestamp = core.Timestamp(binary.LittleEndian.Uint64(b[28:36]))
	h.MaxTimestamp = core.Timestamp(binary.LittleEndian.Uint64(b[36:44]))
	h.Sum = core.ValueFromBits(binary.LittleEndian.Uint64(b[44:52]))
	h.MinValue = core.ValueFromBits(binary.LittleEndian.Uint64(b[52:60]))
	h.MaxValue = core.ValueFromBits(binary.LittleEndian.Uint64(b[60:68]))
	h.FirstValue = core.ValueFromBits(binary.LittleEndian.Uint64(b[68:76]))
	return h, nil
}

// blockIndexEntry locates one data block and its covered time range.
type blockIndexEntry struct {
	minTs  core.Timestamp
	maxTs  core.Timestamp
	offset uint64
	length uint32
	count  uint32
}

func encodeIndexEntry(buf []byte, e blockIndexEntry) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.minTs))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.maxTs))
	binary.LittleEndian.PutUint64(buf[16:24], e.offset)
	binary.LittleEndian.PutUint32(buf[24:28], e.length)
	binary.LittleEndian.PutUint32(buf[28:32], e.count)
}

func decodeIndexEntry(buf []byte) blockIndexEntry {
	return blockIndexEntry{
		minTs:  core.Timestamp(binary.LittleEndian.Uint64(buf[0:8])),
		maxTs:  core.Timestamp(binary.LittleEndian.Uint64(buf[8:16])),
		offset: binary.LittleEndian.Uint64(buf[16:24]),
		length: binary.LittleEndian.Uint32(buf[24:28]),
		count:  binary.LittleEndian.Uint32(buf[28:32]),
	}
}
