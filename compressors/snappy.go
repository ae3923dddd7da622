package compressors

import (
	"fmt"

	"github.com/golang/snappy"
)

// SnappyCompressor implements the Compressor interface using Snappy block
// encoding.
type SnappyCompressor struct{}

var _ Compressor = (*SnappyCompressor)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return decompressed, nil
}

func (c *SnappyCompressor) Type() Type {
	return TypeSnappy
}
