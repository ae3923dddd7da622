package engine

import (
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tachyondb/tachyon/compressors"
	"github.com/tachyondb/tachyon/internal/clock"
	"github.com/tachyondb/tachyon/segment"
)

// DefaultMemtableThreshold is the buffered-bytes level at which a stream
// store flushes on its own.
const DefaultMemtableThreshold = int64(4 * 1024 * 1024)

// Options configures a Connection. The zero value is usable: silent logger,
// noop tracer, uncompressed segments, default thresholds.
type Options struct {
	// Logger receives engine events. Nil discards them.
	Logger *slog.Logger
	// TracerProvider instruments flush and query preparation. Nil installs
	// a noop tracer.
	TracerProvider trace.TracerProvider
	// Compression selects the segment block codec. The zero value is
	// uncompressed.
	Compression compressors.Type
	// MemtableThreshold is the buffered size, in bytes, that triggers an
	// automatic flush on insert. Zero means DefaultMemtableThreshold;
	// negative disables automatic flushing entirely.
	MemtableThreshold int64
	// BlockCapacity is the number of points per segment block. Zero means
	// segment.DefaultBlockCapacity.
	BlockCapacity int
	// Clock is the engine's time source, used for flush timing. Nil means
	// the system clock.
	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.MemtableThreshold == 0 {
		o.MemtableThreshold = DefaultMemtableThreshold
	}
	if o.BlockCapacity <= 0 {
		o.BlockCapacity = segment.DefaultBlockCapacity
	}
	if o.Clock == nil {
		o.Clock = clock.SystemClock{}
	}
	return o
}

func (o Options) tracer() trace.Tracer {
	if o.TracerProvider != nil {
		return o.TracerProvider.Tracer("github.com/tachyondb/tachyon/engine")
	}
	return noop.NewTracerProvider().Tracer("")
}
