package indexer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	idx, err := NewIndexer(t.TempDir(), testLogger())
	require.NoError(t, err)
	return idx
}

func streamLabels(name string, kv ...string) map[string]string {
	lbls := map[string]string{labels.MetricName: name}
	for i := 0; i+1 < len(kv); i += 2 {
		lbls[kv[i]] = kv[i+1]
	}
	return lbls
}

func eqMatcher(name, value string) *labels.Matcher {
	return labels.MustNewMatcher(labels.MatchEqual, name, value)
}

func TestCreateStreamAndLookup(t *testing.T) {
	idx := newTestIndexer(t)

	id, err := idx.CreateStream(streamLabels("http_requests_total", "service", "web"), core.UInteger64)
	require.NoError(t, err)
	require.NotEqual(t, id.String(), "00000000-0000-0000-0000-000000000000")

	got, err := idx.Lookup("http_requests_total", []*labels.Matcher{eqMatcher("service", "web")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, core.UInteger64, got[0].ValueType)
	assert.Equal(t, "http_requests_total", got[0].Name())
}

func TestCreateStreamDuplicateFails(t *testing.T) {
	idx := newTestIndexer(t)
	lbls := streamLabels("cpu_usage", "host", "a")

	_, err := idx.CreateStream(lbls, core.Float64)
	require.NoError(t, err)

	// Same identity, same type: still an error.
	_, err = idx.CreateStream(lbls, core.Float64)
	assert.ErrorIs(t, err, core.ErrStreamExists)

	// Same identity, different type: must not silently change the type.
	_, err = idx.CreateStream(lbls, core.Integer64)
	assert.ErrorIs(t, err, core.ErrStreamExists)
	assert.Equal(t, 1, idx.Len())
}

func TestLookupMatcherSemantics(t *testing.T) {
	idx := newTestIndexer(t)

	_, err := idx.CreateStream(streamLabels("req", "service", "web", "region", "eu"), core.UInteger64)
	require.NoError(t, err)
	_, err = idx.CreateStream(streamLabels("req", "service", "web", "region", "us"), core.UInteger64)
	require.NoError(t, err)
	_, err = idx.CreateStream(streamLabels("req", "service", "db", "region", "eu"), core.UInteger64)
	require.NoError(t, err)

	// Subset matching: one matcher narrows to two streams.
	got, err := idx.Lookup("req", []*labels.Matcher{eqMatcher("service", "web")})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Both matchers narrow to one.
	got, err = idx.Lookup("req", []*labels.Matcher{eqMatcher("service", "web"), eqMatcher("region", "us")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "us", got[0].Labels["region"])

	// Unknown label value matches nothing.
	got, err = idx.Lookup("req", []*labels.Matcher{eqMatcher("service", "cache")})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Unknown metric matches nothing.
	got, err = idx.Lookup("nope", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookupRejectsNonEqualityMatchers(t *testing.T) {
	idx := newTestIndexer(t)
	_, err := idx.CreateStream(streamLabels("m", "a", "b"), core.UInteger64)
	require.NoError(t, err)

	regex := labels.MustNewMatcher(labels.MatchRegexp, "a", "b.*")
	_, err = idx.Lookup("m", []*labels.Matcher{regex})
	assert.Error(t, err)
}

func TestManifestPersistence(t *testing.T) {
	dir := t.TempDir()

	idx, err := NewIndexer(dir, testLogger())
	require.NoError(t, err)
	id1, err := idx.CreateStream(streamLabels("a", "k", "v"), core.Integer64)
	require.NoError(t, err)
	id2, err := idx.CreateStream(streamLabels("b"), core.Float64)
	require.NoError(t, err)

	// Reopen from the same directory.
	reopened, err := NewIndexer(dir, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	s1, ok := reopened.GetStream(id1)
	require.True(t, ok)
	assert.Equal(t, core.Integer64, s1.ValueType)
	assert.Equal(t, "v", s1.Labels["k"])

	s2, ok := reopened.GetStream(id2)
	require.True(t, ok)
	assert.Equal(t, core.Float64, s2.ValueType)

	// Posting lists were rebuilt too.
	got, err := reopened.Lookup("a", []*labels.Matcher{eqMatcher("k", "v")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id1, got[0].ID)
}

func TestAllStreamsSorted(t *testing.T) {
	idx := newTestIndexer(t)
	_, err := idx.CreateStream(streamLabels("zz"), core.UInteger64)
	require.NoError(t, err)
	_, err = idx.CreateStream(streamLabels("aa"), core.UInteger64)
	require.NoError(t, err)

	all := idx.AllStreams()
	require.Len(t, all, 2)
	assert.Equal(t, "aa", all[0].Name())
	assert.Equal(t, "zz", all[1].Name())
}

func TestCreateStreamValidation(t *testing.T) {
	idx := newTestIndexer(t)

	_, err := idx.CreateStream(map[string]string{"service": "web"}, core.UInteger64)
	assert.Error(t, err, "missing metric name")

	_, err = idx.CreateStream(streamLabels("m"), core.ValueType(0x7f))
	assert.Error(t, err, "invalid value type")
}
