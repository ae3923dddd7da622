package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/tachyondb/tachyon/compressors"
	"github.com/tachyondb/tachyon/core"
)

// WriterOptions configures a segment writer.
type WriterOptions struct {
	// Path is the final location of the segment. The writer works on
	// Path + ".tmp" and renames on Finish.
	Path          string
	StreamID      uuid.UUID
	ValueType     core.ValueType
	Compressor    compressors.Compressor
	BlockCapacity int
}

// Writer streams sorted points into a new segment file. Points must be
// added in strictly ascending timestamp order; the flush path guarantees
// this because it drains a sorted memtable. The file only becomes visible
// under its final name when Finish succeeds.
type Writer struct {
	opts     WriterOptions
	tempPath string
	file     *os.File
	w        *bufio.Writer

	offset uint64
	block  []core.Vector
	index  []blockIndexEntry
	header Header

	finished bool
}

// NewWriter creates the temporary segment file and reserves header space.
func NewWriter(opts WriterOptions) (*Writer, error) {
	if !opts.ValueType.IsValid() {
		return nil, fmt.Errorf("segment writer: invalid value type 0x%02x", byte(opts.ValueType))
	}
	if opts.Compressor == nil {
		opts.Compressor = compressors.NewNoCompressionCompressor()
	}
	if opts.BlockCapacity <= 0 {
		opts.BlockCapacity = DefaultBlockCapacity
	}

	tempPath := opts.Path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment writer: create %s: %w", tempPath, err)
	}

	w := &Writer{
		opts:     opts,
		tempPath: tempPath,
		file:     file,
		w:        bufio.NewWriter(file),
		block:    make([]core.Vector, 0, opts.BlockCapacity),
		header: Header{
			Version:     FormatVersion,
			ValueType:   opts.ValueType,
			Compression: byte(opts.Compressor.Type()),
			StreamID:    opts.StreamID,
		},
	}

	// Reserve the header region; the real header is written by Finish once
	// the aggregates are known.
	if _, err := w.w.Write(make([]byte, HeaderSize)); err != nil {
		w.Abort()
		return nil, fmt.Errorf("segment writer: reserve header: %w", err)
	}
	w.offset = uint64(HeaderSize)
	return w, nil
}

// Add appends one point and folds it into the header aggregates.
func (w *Writer) Add(ts core.Timestamp, value core.Value) error {
	if w.finished {
		return fmt.Errorf("segment writer: Add after Finish")
	}
	if w.header.Count > 0 && ts <= w.header.MaxTimestamp {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, ts, w.header.MaxTimestamp)
	}

	vt := w.header.ValueType
	if w.header.Count == 0 {
		w.header.MinTimestamp = ts
		w.header.FirstValue = value
		w.header.Sum = value
		w.header.MinValue = value
		w.header.MaxValue = value
	} else {
		w.header.Sum = w.header.Sum.Add(vt, value)
		w.header.MinValue = w.header.MinValue.Min(vt, value)
		w.header.MaxValue = w.header.MaxValue.Max(vt, value)
	}
	w.header.MaxTimestamp = ts
	w.header.Count++

	w.block = append(w.block, core.Vector{Timestamp: ts, Value: value})
	if len(w.block) >= w.opts.BlockCapacity {
		return w.flushBlock()
	}
	return nil
}

func (w *Writer) flushBlock() error {
	if len(w.block) == 0 {
		return nil
	}

	payload := encodeBlock(w.block)
	compressed, err := w.opts.Compressor.Compress(payload)
	if err != nil {
		return fmt.Errorf("segment writer: compress block: %w", err)
	}
	if _, err := w.w.Write(compressed); err != nil {
		return fmt.Errorf("segment writer: write block: %w", err)
	}

	w.index = append(w.index, blockIndexEntry{
		minTs:  w.block[0].Timestamp,
		maxTs:  w.block[len(w.block)-1].Timestamp,
		offset: w.offset,
		length: uint32(len(compressed)),
		count:  uint32(len(w.block)),
	})
	w.offset += uint64(len(compressed))
	w.block = w.block[:0]
	return nil
}

// Finish writes the block index, footer and header, syncs, and atomically
// publishes the segment under its final name. On error the temporary file
// is left for Abort; nothing is visible under the final path.
func (w *Writer) Finish() error {
	if w.finished {
		return fmt.Errorf("segment writer: Finish called twice")
	}
	if w.header.Count == 0 {
		return ErrNoPoints
	}
	if err := w.flushBlock(); err != nil {
		return err
	}

	indexOffset := w.offset
	entry := make([]byte, blockIndexEntrySize)
	for _, e := range w.index {
		encodeIndexEntry(entry, e)
		if _, err := w.w.Write(entry); err != nil {
			return fmt.Errorf("segment writer: write index: %w", err)
		}
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(footer[0:8], indexOffset)
	binary.LittleEndian.PutUint32(footer[8:12], uint32(len(w.index)))
	copy(footer[footerFixedSize:], MagicString)
	if _, err := w.w.Write(footer); err != nil {
		return fmt.Errorf("segment writer: write footer: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("segment writer: flush: %w", err)
	}

	if _, err := w.file.WriteAt(w.header.encode(), 0); err != nil {
		return fmt.Errorf("segment writer: write header: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("segment writer: sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("segment writer: close: %w", err)
	}
	if err := os.Rename(w.tempPath, w.opts.Path); err != nil {
		return fmt.Errorf("segment writer: publish %s: %w", w.opts.Path, err)
	}

	w.finished = true
	return nil
}

// Abort discards the temporary file. Safe to call after a failed Finish.
func (w *Writer) Abort() {
	if w.finished {
		return
	}
	w.file.Close()
	os.Remove(w.tempPath)
	w.finished = true
}

// Count returns the number of points added so far.
func (w *Writer) Count() uint64 {
	return w.header.Count
}
