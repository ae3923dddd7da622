package compressors

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements the Compressor interface using zstd. A single
// encoder/decoder pair is shared; EncodeAll and DecodeAll are safe for
// concurrent use.
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ Compressor = (*ZstdCompressor)(nil)

var (
	zstdOnce sync.Once
	zstdInst *ZstdCompressor
	zstdErr  error
)

func NewZstdCompressor() (*ZstdCompressor, error) {
	zstdOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			zstdErr = fmt.Errorf("zstd encoder init: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(128<<20))
		if err != nil {
			zstdErr = fmt.Errorf("zstd decoder init: %w", err)
			return
		}
		zstdInst = &ZstdCompressor{enc: enc, dec: dec}
	})
	return zstdInst, zstdErr
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decompressed, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}
	return decompressed, nil
}

func (c *ZstdCompressor) Type() Type {
	return TypeZstd
}
