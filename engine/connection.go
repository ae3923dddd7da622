package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/prometheus/model/labels"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tachyondb/tachyon/core"
	"github.com/tachyondb/tachyon/indexer"
	"github.com/tachyondb/tachyon/internal/clock"
	"github.com/tachyondb/tachyon/query"
)

const streamsDirName = "streams"

// Connection is the aggregate root of one database directory: the catalog
// plus a stream store per registered stream. A Connection is safe for
// concurrent use. Closing it flushes every dirty buffer first, so nothing
// inserted is lost, then releases all segment readers.
type Connection struct {
	dir    string
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock

	idx *indexer.Indexer

	mu     sync.RWMutex
	stores map[uuid.UUID]*streamStore
	closed bool
}

// Open opens (or initializes) the database rooted at dir. Streams recorded
// in the catalog get their segment files reopened, so previously flushed
// data is queryable immediately.
func Open(dir string, opts Options) (*Connection, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	idx, err := indexer.NewIndexer(dir, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	c := &Connection{
		dir:    dir,
		opts:   opts,
		logger: opts.Logger,
		tracer: opts.tracer(),
		clock:  opts.Clock,
		idx:    idx,
		stores: make(map[uuid.UUID]*streamStore),
	}

	for _, summary := range idx.AllStreams() {
		store, err := openStreamStore(c.streamDir(summary.ID), summary, opts, c.tracer)
		if err != nil {
			c.closeStores()
			return nil, fmt.Errorf("open connection: stream %s: %w", summary.ID, err)
		}
		c.stores[summary.ID] = store
	}

	c.logger.Info("connection opened", "dir", dir, "streams", len(c.stores))
	return c, nil
}

func (c *Connection) streamDir(id uuid.UUID) string {
	return filepath.Join(c.dir, streamsDirName, id.String())
}

// selectorLabels parses a selector string into a full label set.
func selectorLabels(selector string) (map[string]string, error) {
	sel, err := query.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	lbls := make(map[string]string, len(sel.Matchers)+1)
	lbls[labels.MetricName] = sel.Name
	for _, m := range sel.Matchers {
		lbls[m.Name] = m.Value
	}
	return lbls, nil
}

// CreateStream registers a stream identified by a selector string, e.g.
// `cpu_usage{host="a"}`, with a fixed value type. The selector must spell
// out the stream's complete label set. Creation is durable before return.
func (c *Connection) CreateStream(selector string, vt core.ValueType) (uuid.UUID, error) {
	lbls, err := selectorLabels(selector)
	if err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return uuid.Nil, core.ErrConnectionClosed
	}

	id, err := c.idx.CreateStream(lbls, vt)
	if err != nil {
		return uuid.Nil, err
	}

	summary, _ := c.idx.GetStream(id)
	store, err := openStreamStore(c.streamDir(id), summary, c.opts, c.tracer)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create stream: %w", err)
	}
	c.stores[id] = store
	return id, nil
}

// StreamExists reports whether a stream with exactly the selector's label
// set is registered. Unlike query resolution this is an exact identity
// check, not a subset match.
func (c *Connection) StreamExists(selector string) (bool, error) {
	lbls, err := selectorLabels(selector)
	if err != nil {
		return false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, core.ErrConnectionClosed
	}

	name := lbls[labels.MetricName]
	matchers := make([]*labels.Matcher, 0, len(lbls)-1)
	for k, v := range lbls {
		if k == labels.MetricName {
			continue
		}
		matchers = append(matchers, labels.MustNewMatcher(labels.MatchEqual, k, v))
	}

	candidates, err := c.idx.Lookup(name, matchers)
	if err != nil {
		return false, err
	}
	for _, s := range candidates {
		if len(s.Labels) == len(lbls) {
			return true, nil
		}
	}
	return false, nil
}

// GetAllStreams returns a summary of every registered stream.
func (c *Connection) GetAllStreams() ([]indexer.StreamSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrConnectionClosed
	}
	return c.idx.AllStreams(), nil
}

// resolveOne resolves a selector to exactly one stream, query-style.
func (c *Connection) resolveOne(selector string) (indexer.StreamSummary, error) {
	sel, err := query.ParseSelector(selector)
	if err != nil {
		return indexer.StreamSummary{}, err
	}
	streams, err := c.idx.Lookup(sel.Name, sel.Matchers)
	if err != nil {
		return indexer.StreamSummary{}, err
	}
	switch len(streams) {
	case 0:
		return indexer.StreamSummary{}, fmt.Errorf("%w: %s", core.ErrStreamNotFound, selector)
	case 1:
		return streams[0], nil
	default:
		return indexer.StreamSummary{}, fmt.Errorf("%w: %s matches %d streams", core.ErrAmbiguousSelector, selector, len(streams))
	}
}

// PrepareInsert binds an inserter to the single stream the selector
// resolves to.
func (c *Connection) PrepareInsert(selector string) (*Inserter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrConnectionClosed
	}

	summary, err := c.resolveOne(selector)
	if err != nil {
		return nil, err
	}
	store, ok := c.stores[summary.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no store", core.ErrStreamNotFound, summary.ID)
	}
	return &Inserter{conn: c, store: store, summary: summary}, nil
}

// PrepareQuery compiles query text over [start, end) into an executable
// statement. All static errors (syntax, unknown stream, invalid range)
// surface here; iteration afterwards only reports I/O problems.
func (c *Connection) PrepareQuery(text string, start, end core.Timestamp) (*query.Statement, error) {
	_, span := c.tracer.Start(context.Background(), "connection.PrepareQuery")
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrConnectionClosed
	}

	prog, err := query.Compile(text, c.idx, start, end)
	if err != nil {
		return nil, err
	}
	return query.NewStatement(prog, c), nil
}

// OpenScan implements query.ScanSource over the connection's stores.
func (c *Connection) OpenScan(id uuid.UUID, start, end core.Timestamp, hint core.ScanHint) (core.VectorIterator, bool, error) {
	c.mu.RLock()
	store, ok := c.stores[id]
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return nil, false, core.ErrConnectionClosed
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", core.ErrStreamNotFound, id)
	}
	return store.OpenScan(start, end, hint)
}

// Flush makes every buffered point visible, flushing all streams
// concurrently. It returns the first error; streams that flushed stay
// flushed.
func (c *Connection) Flush(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "connection.Flush")
	defer span.End()

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return core.ErrConnectionClosed
	}
	stores := make([]*streamStore, 0, len(c.stores))
	for _, s := range c.stores {
		stores = append(stores, s)
	}
	c.mu.RUnlock()

	started := c.clock.Now()
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range stores {
		g.Go(func() error { return s.flush(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Debug("flush complete", "streams", len(stores), "elapsed", c.clock.Now().Sub(started))
	return nil
}

// Close flushes every dirty buffer and releases all segment readers. It is
// idempotent. Statements prepared on the connection must not be used after
// Close.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	stores := make([]*streamStore, 0, len(c.stores))
	for _, s := range c.stores {
		stores = append(stores, s)
	}
	c.mu.Unlock()

	var firstErr error
	for _, s := range stores {
		if err := s.flush(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.mu.Lock()
	c.closeStores()
	c.closed = true
	c.mu.Unlock()

	c.logger.Info("connection closed", "dir", c.dir)
	return firstErr
}

// closeStores releases segment readers. Caller holds the write lock, or is
// tearing down a half-open connection.
func (c *Connection) closeStores() {
	for _, s := range c.stores {
		s.close()
	}
}

// Inserter appends points to one stream. Type enforcement happens here,
// synchronously: a mismatched value is rejected and nothing is buffered.
// An Inserter is as concurrency-safe as its stream store; any number may
// target the same stream.
type Inserter struct {
	conn    *Connection
	store   *streamStore
	summary indexer.StreamSummary
}

// Stream returns the stream the inserter is bound to.
func (in *Inserter) Stream() indexer.StreamSummary { return in.summary }

// InsertInt64 appends a signed integer point.
func (in *Inserter) InsertInt64(ts core.Timestamp, v int64) error {
	return in.insert(ts, core.NewInt64Value(v), core.Integer64)
}

// InsertUint64 appends an unsigned integer point.
func (in *Inserter) InsertUint64(ts core.Timestamp, v uint64) error {
	return in.insert(ts, core.NewUint64Value(v), core.UInteger64)
}

// InsertFloat64 appends a floating point point.
func (in *Inserter) InsertFloat64(ts core.Timestamp, v float64) error {
	return in.insert(ts, core.NewFloat64Value(v), core.Float64)
}

// Insert appends a raw value whose type the caller asserts.
func (in *Inserter) Insert(ts core.Timestamp, v core.Value, vt core.ValueType) error {
	return in.insert(ts, v, vt)
}

func (in *Inserter) insert(ts core.Timestamp, v core.Value, vt core.ValueType) error {
	if vt != in.summary.ValueType {
		return &core.TypeMismatchError{Expected: in.summary.ValueType, Actual: vt}
	}

	in.conn.mu.RLock()
	closed := in.conn.closed
	in.conn.mu.RUnlock()
	if closed {
		return core.ErrConnectionClosed
	}

	in.store.append(ts, v)

	if threshold := in.conn.opts.MemtableThreshold; threshold > 0 && in.store.bufferedBytes() >= threshold {
		return in.store.flush(context.Background())
	}
	return nil
}

// Flush makes this stream's buffered points visible.
func (in *Inserter) Flush(ctx context.Context) error {
	in.conn.mu.RLock()
	closed := in.conn.closed
	in.conn.mu.RUnlock()
	if closed {
		return core.ErrConnectionClosed
	}
	return in.store.flush(ctx)
}
