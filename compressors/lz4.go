package compressors

import (
	"encoding/binary"
	"fmt"

	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements the Compressor interface using LZ4 block
// encoding. The LZ4 block format does not record the uncompressed size, so
// Compress prepends it as a little-endian uint32.
type LZ4Compressor struct{}

var _ Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(dst, uint32(len(data)))

	n, err := lz4.CompressBlock(data, dst[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 && len(data) > 0 {
		// Incompressible input; CompressBlock leaves dst empty.
		dst = append(dst[:4], data...)
		// Mark as stored-raw with the high bit of the size prefix.
		binary.LittleEndian.PutUint32(dst, uint32(len(data))|rawBlockFlag)
		return dst, nil
	}
	return dst[:4+n], nil
}

const rawBlockFlag = 1 << 31

func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 block too short: %d bytes", len(data))
	}
	size := binary.LittleEndian.Uint32(data)
	if size&rawBlockFlag != 0 {
		return data[4:], nil
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	return dst[:n], nil
}

func (c *LZ4Compressor) Type() Type {
	return TypeLZ4
}
