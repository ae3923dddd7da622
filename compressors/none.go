package compressors

// NoCompressionCompressor passes blocks through unchanged.
type NoCompressionCompressor struct{}

var _ Compressor = (*NoCompressionCompressor)(nil)

func NewNoCompressionCompressor() *NoCompressionCompressor {
	return &NoCompressionCompressor{}
}

func (c *NoCompressionCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c *NoCompressionCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

func (c *NoCompressionCompressor) Type() Type {
	return TypeNone
}
