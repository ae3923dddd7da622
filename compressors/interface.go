// Package compressors provides the pluggable block compression used by
// segment files. The codec is chosen per connection and recorded in every
// segment header, so files written with one codec remain readable after the
// configuration changes.
package compressors

import "fmt"

// Type identifies a compression codec in segment headers.
type Type byte

const (
	TypeNone   Type = 0x00
	TypeSnappy Type = 0x01
	TypeLZ4    Type = 0x02
	TypeZstd   Type = 0x03
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeSnappy:
		return "snappy"
	case TypeLZ4:
		return "lz4"
	case TypeZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

// Parse resolves a codec name from configuration.
func Parse(name string) (Type, error) {
	switch name {
	case "", "none":
		return TypeNone, nil
	case "snappy":
		return TypeSnappy, nil
	case "lz4":
		return TypeLZ4, nil
	case "zstd":
		return TypeZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression codec %q", name)
	}
}

// Compressor compresses and decompresses whole blocks. Implementations are
// stateless or internally synchronized and safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() Type
}

// ForType returns the Compressor implementing the given codec.
func ForType(t Type) (Compressor, error) {
	switch t {
	case TypeNone:
		return NewNoCompressionCompressor(), nil
	case TypeSnappy:
		return NewSnappyCompressor(), nil
	case TypeLZ4:
		return NewLz4Compressor(), nil
	case TypeZstd:
		return NewZstdCompressor()
	default:
		return nil, fmt.Errorf("unknown compression type 0x%02x", byte(t))
	}
}
