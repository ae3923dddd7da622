package segment

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tachyondb/tachyon/compressors"
	"github.com/tachyondb/tachyon/core"
)

// Reader serves range scans over one finished segment file. Blocks are read
// with ReadAt, so a single Reader is safe for any number of concurrent
// scans.
type Reader struct {
	path       string
	file       *os.File
	header     Header
	index      []blockIndexEntry
	compressor compressors.Compressor
}

// Open validates the segment's magic, header and footer and loads the block
// index into memory.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segment open %s: %w", path, err)
	}

	r := &Reader{path: path, file: file}
	if err := r.load(); err != nil {
		file.Close()
		return nil, fmt.Errorf("segment open %s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) load() error {
	stat, err := r.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() < int64(HeaderSize+FooterSize) {
		return fmt.Errorf("%w: file too small (%d bytes)", core.ErrCorrupted, stat.Size())
	}

	headerBuf := make([]byte, HeaderSize)
	if _, err := r.file.ReadAt(headerBuf, 0); err != nil {
		return err
	}
	r.header, err = decodeHeader(headerBuf)
	if err != nil {
		return err
	}

	comp, err := compressors.ForType(compressors.Type(r.header.Compression))
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrCorrupted, err)
	}
	r.compressor = comp

	footerBuf := make([]byte, FooterSize)
	if _, err := r.file.ReadAt(footerBuf, stat.Size()-int64(FooterSize)); err != nil {
		return err
	}
	if string(footerBuf[footerFixedSize:]) != MagicString {
		return fmt.Errorf("%w: bad footer magic", core.ErrCorrupted)
	}
	indexOffset := binary.LittleEndian.Uint64(footerBuf[0:8])
	blockCount := binary.LittleEndian.Uint32(footerBuf[8:12])

	indexSize := int64(blockCount) * blockIndexEntrySize
	if int64(indexOffset)+indexSize+int64(FooterSize) != stat.Size() {
		return fmt.Errorf("%w: index does not line up with file size", core.ErrCorrupted)
	}

	indexBuf := make([]byte, indexSize)
	if _, err := r.file.ReadAt(indexBuf, int64(indexOffset)); err != nil {
		return err
	}
	r.index = make([]blockIndexEntry, blockCount)
	for i := range r.index {
		r.index[i] = decodeIndexEntry(indexBuf[i*blockIndexEntrySize:])
	}

	// Every entry must describe a non-empty block lying between the header
	// and the index, in file order. A corrupt entry fails here instead of
	// driving an oversized allocation in readBlock.
	prevEnd := uint64(HeaderSize)
	for i, e := range r.index {
		if e.count == 0 || e.length == 0 {
			return fmt.Errorf("%w: index entry %d is empty", core.ErrCorrupted, i)
		}
		if e.offset < prevEnd || e.offset+uint64(e.length) > indexOffset {
			return fmt.Errorf("%w: index entry %d out of bounds", core.ErrCorrupted, i)
		}
		prevEnd = e.offset + uint64(e.length)
	}
	return nil
}

// Header returns the segment metadata and precomputed aggregates.
func (r *Reader) Header() Header {
	return r.header
}

// Path returns the file the reader was opened from.
func (r *Reader) Path() string {
	return r.path
}

// Overlaps reports whether the segment holds any point in [start, end).
func (r *Reader) Overlaps(start, end core.Timestamp) bool {
	return start < end && r.header.MinTimestamp < end && r.header.MaxTimestamp >= start
}

// CoveredBy reports whether every point of the segment lies in [start, end),
// which is what permits substituting the header aggregates for a scan.
func (r *Reader) CoveredBy(start, end core.Timestamp) bool {
	return start <= r.header.MinTimestamp && r.header.MaxTimestamp < end
}

// Scan returns an iterator over the points in [start, end) in ascending
// timestamp order. The first relevant block is located by binary search on
// the block index.
func (r *Reader) Scan(start, end core.Timestamp) core.VectorIterator {
	if !r.Overlaps(start, end) {
		return core.NewEmptyIterator()
	}
	firstBlock := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].maxTs >= start
	})
	return &segmentIterator{
		r:     r,
		block: firstBlock,
		start: start,
		end:   end,
	}
}

func (r *Reader) readBlock(i int) ([]core.Vector, error) {
	e := r.index[i]
	raw := make([]byte, e.length)
	if _, err := r.file.ReadAt(raw, int64(e.offset)); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: block %d truncated", core.ErrCorrupted, i)
		}
		return nil, fmt.Errorf("segment read block %d: %w", i, err)
	}
	payload, err := r.compressor.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %v", core.ErrCorrupted, i, err)
	}
	return decodeBlock(payload, e.count)
}

// Close releases the underlying file. Open scans must not outlive it.
func (r *Reader) Close() error {
	return r.file.Close()
}
