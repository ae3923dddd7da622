// Package indexer is the stream catalog: it maps a stream's identity (metric
// name plus exact label set) to its UUID and declared value type, and
// resolves label matchers to streams through roaring-bitmap posting lists.
package indexer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/uuid"
	"github.com/prometheus/prometheus/model/labels"

	"github.com/tachyondb/tachyon/core"
)

// StreamSummary describes one registered stream. Labels include the metric
// name under the __name__ key, PromQL style.
type StreamSummary struct {
	ID        uuid.UUID
	Labels    map[string]string
	ValueType core.ValueType
}

// Name returns the stream's metric name.
func (s StreamSummary) Name() string {
	return s.Labels[labels.MetricName]
}

type streamEntry struct {
	localID uint64
	summary StreamSummary
}

// Indexer owns the in-memory catalog and its persisted manifest. It is safe
// for concurrent use; mutation persists the manifest before returning.
type Indexer struct {
	mu     sync.RWMutex
	dir    string
	logger *slog.Logger

	byLocalID   map[uint64]*streamEntry
	byUUID      map[uuid.UUID]*streamEntry
	byCanonical map[string]*streamEntry
	postings    map[string]*roaring64.Bitmap
	nextLocalID uint64
}

// NewIndexer loads the catalog manifest from dir, or starts empty when none
// exists yet.
func NewIndexer(dir string, logger *slog.Logger) (*Indexer, error) {
	idx := &Indexer{
		dir:         dir,
		logger:      logger,
		byLocalID:   make(map[uint64]*streamEntry),
		byUUID:      make(map[uuid.UUID]*streamEntry),
		byCanonical: make(map[string]*streamEntry),
		postings:    make(map[string]*roaring64.Bitmap),
	}
	if err := idx.loadManifest(); err != nil {
		return nil, fmt.Errorf("indexer: load manifest: %w", err)
	}
	return idx, nil
}

// canonicalKey produces the unique identity string of a label set:
// name{k1=v1,k2=v2} with keys sorted.
func canonicalKey(lbls map[string]string) string {
	keys := make([]string, 0, len(lbls))
	for k := range lbls {
		if k == labels.MetricName {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(lbls[labels.MetricName])
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(lbls[k])
	}
	b.WriteByte('}')
	return b.String()
}

// postingKey is the map key of one (label, value) posting list. The NUL
// separator cannot occur in a valid label name.
func postingKey(name, value string) string {
	return name + "\x00" + value
}

// register wires a stream into every in-memory structure. Caller holds the
// write lock.
func (idx *Indexer) register(summary StreamSummary) *streamEntry {
	entry := &streamEntry{localID: idx.nextLocalID, summary: summary}
	idx.nextLocalID++

	idx.byLocalID[entry.localID] = entry
	idx.byUUID[summary.ID] = entry
	idx.byCanonical[canonicalKey(summary.Labels)] = entry

	for k, v := range summary.Labels {
		key := postingKey(k, v)
		bm, ok := idx.postings[key]
		if !ok {
			bm = roaring64.New()
			idx.postings[key] = bm
		}
		bm.Add(entry.localID)
	}
	return entry
}

// CreateStream registers a new stream and persists the manifest. It fails
// with core.ErrStreamExists when the identity is already registered, whether
// or not the value type matches; silently re-creating with a different type
// would let types drift.
func (idx *Indexer) CreateStream(lbls map[string]string, vt core.ValueType) (uuid.UUID, error) {
	if lbls[labels.MetricName] == "" {
		return uuid.Nil, fmt.Errorf("indexer: stream has no metric name")
	}
	if !vt.IsValid() {
		return uuid.Nil, fmt.Errorf("indexer: invalid value type 0x%02x", byte(vt))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := canonicalKey(lbls)
	if _, ok := idx.byCanonical[key]; ok {
		return uuid.Nil, fmt.Errorf("%w: %s", core.ErrStreamExists, key)
	}

	labelsCopy := make(map[string]string, len(lbls))
	for k, v := range lbls {
		labelsCopy[k] = v
	}
	summary := StreamSummary{ID: uuid.New(), Labels: labelsCopy, ValueType: vt}
	entry := idx.register(summary)

	if err := idx.persistManifest(); err != nil {
		idx.unregister(entry)
		return uuid.Nil, fmt.Errorf("indexer: persist manifest: %w", err)
	}

	idx.logger.Info("stream created", "stream", key, "id", summary.ID, "value_type", vt.String())
	return summary.ID, nil
}

// unregister rolls back a failed registration. Caller holds the write lock.
func (idx *Indexer) unregister(entry *streamEntry) {
	delete(idx.byLocalID, entry.localID)
	delete(idx.byUUID, entry.summary.ID)
	delete(idx.byCanonical, canonicalKey(entry.summary.Labels))
	for k, v := range entry.summary.Labels {
		if bm, ok := idx.postings[postingKey(k, v)]; ok {
			bm.Remove(entry.localID)
		}
	}
}

// Lookup resolves a metric name plus equality matchers to the streams whose
// label sets satisfy all of them. Matcher semantics are PromQL's: a subset
// match, not an exact label-set match. The result is sorted by stream
// identity for determinism.
func (idx *Indexer) Lookup(name string, matchers []*labels.Matcher) ([]StreamSummary, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	base, ok := idx.postings[postingKey(labels.MetricName, name)]
	if !ok {
		return nil, nil
	}
	result := base.Clone()

	for _, m := range matchers {
		if m.Name == labels.MetricName {
			continue
		}
		if m.Type != labels.MatchEqual {
			return nil, fmt.Errorf("indexer: unsupported matcher %s for label %q", m.Type, m.Name)
		}
		bm, ok := idx.postings[postingKey(m.Name, m.Value)]
		if !ok {
			return nil, nil
		}
		result.And(bm)
		if result.IsEmpty() {
			return nil, nil
		}
	}

	summaries := make([]StreamSummary, 0, result.GetCardinality())
	iter := result.Iterator()
	for iter.HasNext() {
		summaries = append(summaries, idx.byLocalID[iter.Next()].summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return canonicalKey(summaries[i].Labels) < canonicalKey(summaries[j].Labels)
	})
	return summaries, nil
}

// GetStream returns the summary of a stream by UUID.
func (idx *Indexer) GetStream(id uuid.UUID) (StreamSummary, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entry, ok := idx.byUUID[id]
	if !ok {
		return StreamSummary{}, false
	}
	return entry.summary, true
}

// AllStreams returns every registered stream sorted by identity.
func (idx *Indexer) AllStreams() []StreamSummary {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	summaries := make([]StreamSummary, 0, len(idx.byUUID))
	for _, entry := range idx.byUUID {
		summaries = append(summaries, entry.summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return canonicalKey(summaries[i].Labels) < canonicalKey(summaries[j].Labels)
	})
	return summaries
}

// Len returns the number of registered streams.
func (idx *Indexer) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byUUID)
}
