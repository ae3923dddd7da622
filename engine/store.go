// Package engine ties the write buffer, the flushed region and the catalog
// together behind a Connection. Each stream owns a streamStore: a memtable
// buffering inserts plus the immutable segment files flushed so far. Points
// become visible to queries only once flushed.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/tachyondb/tachyon/compressors"
	"github.com/tachyondb/tachyon/core"
	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/memtable"
	"github.com/tachyondb/tachyon/segment"
)

// rankedSegment is one flushed segment plus its flush sequence number. The
// sequence orders segments for last-writer-wins merging and names the file.
type rankedSegment struct {
	seq    uint64
	reader *segment.Reader
}

// streamStore is the storage of one stream: a write buffer and the list of
// flushed segments, newest last. Appenders and scans take the read lock;
// flush takes the write lock only to detach the buffer and to publish the
// finished segment, so the segment file I/O itself never blocks writers.
// flushMu admits one flush at a time.
type streamStore struct {
	summary indexer.StreamSummary
	dir     string

	compressor    compressors.Compressor
	blockCapacity int
	logger        *slog.Logger
	tracer        trace.Tracer

	flushMu  sync.Mutex
	mu       sync.RWMutex
	mem      *memtable.Memtable
	segments []rankedSegment
	nextSeq  uint64
}

// openStreamStore creates the stream's directory if needed and opens every
// segment already flushed there.
func openStreamStore(dir string, summary indexer.StreamSummary, opts Options, tracer trace.Tracer) (*streamStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stream store: create %s: %w", dir, err)
	}
	comp, err := compressors.ForType(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("stream store: %w", err)
	}

	s := &streamStore{
		summary:       summary,
		dir:           dir,
		compressor:    comp,
		blockCapacity: opts.BlockCapacity,
		logger:        opts.Logger.With("stream", summary.ID),
		tracer:        tracer,
		mem:           memtable.New(),
	}
	if err := s.openSegments(); err != nil {
		s.closeSegments()
		return nil, err
	}
	return s, nil
}

// openSegments discovers flushed segment files and opens them in flush
// order. Leftover temporary files from an interrupted flush are removed.
func (s *streamStore) openSegments() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("stream store: read %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, segment.TempFileExtension) {
			os.Remove(filepath.Join(s.dir, name))
			continue
		}
		if !strings.HasSuffix(name, segment.FileExtension) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, segment.FileExtension), 10, 64)
		if err != nil {
			return fmt.Errorf("stream store: unexpected segment name %q", name)
		}
		reader, err := segment.Open(filepath.Join(s.dir, name))
		if err != nil {
			return err
		}
		s.segments = append(s.segments, rankedSegment{seq: seq, reader: reader})
	}

	sort.Slice(s.segments, func(i, j int) bool { return s.segments[i].seq < s.segments[j].seq })
	if n := len(s.segments); n > 0 {
		s.nextSeq = s.segments[n-1].seq + 1
	}
	return nil
}

// append buffers one point. Duplicate timestamps within the buffer are
// overwritten (last-writer-wins). The point stays invisible to scans until
// the next flush. The read lock excludes flush's buffer swap; the
// memtable's own lock keeps concurrent appenders safe.
func (s *streamStore) append(ts core.Timestamp, value core.Value) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mem.Put(ts, value)
}

func (s *streamStore) bufferedBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem.SizeBytes()
}

// flush drains the write buffer into a new immutable segment and publishes
// it. An empty buffer is a no-op. The buffer is detached under a short
// write lock, the segment is written with no locks held, and the result is
// published under the write lock again, so appenders and scans only ever
// wait on the two swaps. On failure nothing is published and the drained
// points are returned to the live buffer.
func (s *streamStore) flush(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "streamStore.flush")
	defer span.End()

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.mem.IsEmpty() {
		s.mu.Unlock()
		return nil
	}
	frozen := s.mem
	s.mem = memtable.New()
	seq := s.nextSeq
	s.nextSeq = seq + 1
	s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%06d%s", seq, segment.FileExtension))
	w, err := segment.NewWriter(segment.WriterOptions{
		Path:          path,
		StreamID:      s.summary.ID,
		ValueType:     s.summary.ValueType,
		Compressor:    s.compressor,
		BlockCapacity: s.blockCapacity,
	})
	if err != nil {
		s.restore(frozen)
		return err
	}

	iter := frozen.NewIterator()
	for iter.Next() {
		v := iter.At()
		if err := w.Add(v.Timestamp, v.Value); err != nil {
			w.Abort()
			s.restore(frozen)
			return err
		}
	}
	if err := iter.Error(); err != nil {
		w.Abort()
		s.restore(frozen)
		return err
	}
	count := w.Count()
	if err := w.Finish(); err != nil {
		w.Abort()
		s.restore(frozen)
		return err
	}

	reader, err := segment.Open(path)
	if err != nil {
		return fmt.Errorf("stream store: reopen flushed segment: %w", err)
	}

	s.mu.Lock()
	s.segments = append(s.segments, rankedSegment{seq: seq, reader: reader})
	s.mu.Unlock()

	s.logger.Info("memtable flushed", "segment", filepath.Base(path), "points", count)
	return nil
}

// restore returns the drained points to the live buffer after a failed
// flush. A timestamp rewritten while the flush ran keeps its newer value;
// flushMu is still held, so the live buffer cannot be detached underneath
// the merge.
func (s *streamStore) restore(frozen *memtable.Memtable) {
	s.mu.RLock()
	mem := s.mem
	s.mu.RUnlock()

	iter := frozen.NewIterator()
	for iter.Next() {
		v := iter.At()
		mem.PutIfAbsent(v.Timestamp, v.Value)
	}
}

// OpenScan returns an iterator over the flushed region restricted to
// [start, end). With a hint it may substitute segment-header aggregates for
// whole segments; hinted reports whether it did, because a hinted count scan
// emits partial counts instead of rows.
func (s *streamStore) OpenScan(start, end core.Timestamp, hint core.ScanHint) (core.VectorIterator, bool, error) {
	s.mu.RLock()
	overlapping := make([]*segment.Reader, 0, len(s.segments))
	ranks := make([]uint64, 0, len(s.segments))
	for _, rs := range s.segments {
		if rs.reader.Overlaps(start, end) {
			overlapping = append(overlapping, rs.reader)
			ranks = append(ranks, rs.seq)
		}
	}
	s.mu.RUnlock()

	if len(overlapping) == 0 {
		return core.NewEmptyIterator(), false, nil
	}

	if hint != core.ScanHintNone && segmentsDisjoint(overlapping) {
		return s.hintedScan(overlapping, start, end, hint), true, nil
	}

	sources := make([]segment.Source, len(overlapping))
	for i, r := range overlapping {
		sources[i] = segment.Source{Iterator: r.Scan(start, end), Rank: ranks[i]}
	}
	return segment.NewMergingIterator(sources), false, nil
}

// segmentsDisjoint reports whether the segments' time ranges are pairwise
// non-overlapping. Overlap means duplicate timestamps are possible, which
// would make header aggregates double-count, so the hinted path requires
// disjoint segments.
func segmentsDisjoint(readers []*segment.Reader) bool {
	if len(readers) < 2 {
		return true
	}
	sorted := append([]*segment.Reader(nil), readers...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Header().MinTimestamp < sorted[j].Header().MinTimestamp
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Header().MinTimestamp <= sorted[i-1].Header().MaxTimestamp {
			return false
		}
	}
	return true
}

// hintedScan builds the fast-path iterator: fully covered segments
// contribute one partial aggregate read from their header, partially
// covered segments are scanned raw. For the count hint raw points are
// mapped to partial counts of one so the whole sequence is uniform.
func (s *streamStore) hintedScan(readers []*segment.Reader, start, end core.Timestamp, hint core.ScanHint) core.VectorIterator {
	sort.Slice(readers, func(i, j int) bool {
		return readers[i].Header().MinTimestamp < readers[j].Header().MinTimestamp
	})
	parts := make([]core.VectorIterator, 0, len(readers))
	for _, r := range readers {
		if r.CoveredBy(start, end) {
			h := r.Header()
			parts = append(parts, &singleIterator{point: core.Vector{
				Timestamp: h.MinTimestamp,
				Value:     headerAggregate(h, hint),
			}})
			continue
		}
		raw := r.Scan(start, end)
		if hint == core.ScanHintCount {
			raw = &countAdapter{inner: raw}
		}
		parts = append(parts, raw)
	}
	return &chainIterator{parts: parts}
}

// headerAggregate picks the partial aggregate matching the hint out of a
// segment header.
func headerAggregate(h segment.Header, hint core.ScanHint) core.Value {
	switch hint {
	case core.ScanHintSum:
		return h.Sum
	case core.ScanHintCount:
		return core.NewUint64Value(h.Count)
	case core.ScanHintMin:
		return h.MinValue
	case core.ScanHintMax:
		return h.MaxValue
	default:
		return core.ZeroValue()
	}
}

// close releases every open segment reader.
func (s *streamStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSegments()
}

func (s *streamStore) closeSegments() {
	for _, rs := range s.segments {
		rs.reader.Close()
	}
	s.segments = nil
}
