package query

import (
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/prometheus/model/labels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/core"
	"github.com/tachyondb/tachyon/indexer"
)

// fakeCatalog resolves by metric name only, ignoring matchers. Ambiguity is
// simulated by registering a name twice.
type fakeCatalog struct {
	streams map[string][]indexer.StreamSummary
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{streams: make(map[string][]indexer.StreamSummary)}
}

func (c *fakeCatalog) add(name string, vt core.ValueType) indexer.StreamSummary {
	s := indexer.StreamSummary{
		ID:        uuid.New(),
		Labels:    map[string]string{labels.MetricName: name},
		ValueType: vt,
	}
	c.streams[name] = append(c.streams[name], s)
	return s
}

func (c *fakeCatalog) Lookup(name string, _ []*labels.Matcher) ([]indexer.StreamSummary, error) {
	return c.streams[name], nil
}

func TestCompileVectorProgram(t *testing.T) {
	cat := newFakeCatalog()
	stream := cat.add("cpu_usage", core.Integer64)

	prog, err := Compile(`cpu_usage{host="a"}`, cat, 0, 100)
	require.NoError(t, err)

	assert.Equal(t, core.ReturnVector, prog.ReturnType)
	assert.Equal(t, core.Integer64, prog.ValueType)
	assert.Equal(t, AggregateNone, prog.Aggregate)
	assert.Equal(t, core.ScanHintNone, prog.Hint)
	assert.Equal(t, stream.ID, prog.Stream.ID)
	assert.Equal(t, core.Timestamp(0), prog.Start)
	assert.Equal(t, core.Timestamp(100), prog.End)

	require.Len(t, prog.Code, 4)
	assert.Equal(t, OpOpenScan, prog.Code[0].Op)
	assert.Equal(t, OpFetchNext, prog.Code[1].Op)
	assert.Equal(t, 3, prog.Code[1].Target)
	assert.Equal(t, OpEmitVector, prog.Code[2].Op)
	assert.Equal(t, 1, prog.Code[2].Target)
	assert.Equal(t, OpHalt, prog.Code[3].Op)
}

func TestCompileScalarProgram(t *testing.T) {
	cat := newFakeCatalog()
	cat.add("cpu_usage", core.Integer64)

	prog, err := Compile(`sum(cpu_usage)`, cat, 10, 20)
	require.NoError(t, err)

	assert.Equal(t, core.ReturnScalar, prog.ReturnType)
	assert.Equal(t, core.Integer64, prog.ValueType)
	assert.Equal(t, AggregateSum, prog.Aggregate)
	assert.Equal(t, core.ScanHintSum, prog.Hint)

	require.Len(t, prog.Code, 5)
	assert.Equal(t, OpOpenScan, prog.Code[0].Op)
	assert.Equal(t, OpFetchNext, prog.Code[1].Op)
	assert.Equal(t, OpReduce, prog.Code[2].Op)
	assert.Equal(t, OpEmitScalar, prog.Code[3].Op)
	assert.Equal(t, OpHalt, prog.Code[4].Op)
}

func TestCompileScalarTypes(t *testing.T) {
	cat := newFakeCatalog()
	cat.add("cpu_usage", core.Integer64)

	cases := []struct {
		input string
		vt    core.ValueType
		hint  core.ScanHint
	}{
		{`sum(cpu_usage)`, core.Integer64, core.ScanHintSum},
		{`count(cpu_usage)`, core.UInteger64, core.ScanHintCount},
		{`min(cpu_usage)`, core.Integer64, core.ScanHintMin},
		{`max(cpu_usage)`, core.Integer64, core.ScanHintMax},
		{`avg(cpu_usage)`, core.Float64, core.ScanHintNone},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			prog, err := Compile(tc.input, cat, 0, 100)
			require.NoError(t, err)
			assert.Equal(t, tc.vt, prog.ValueType)
			assert.Equal(t, tc.hint, prog.Hint)
		})
	}
}

func TestCompileInvalidRange(t *testing.T) {
	cat := newFakeCatalog()
	cat.add("cpu_usage", core.Integer64)

	_, err := Compile("cpu_usage", cat, 100, 10)
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestCompileEmptyRangeAllowed(t *testing.T) {
	cat := newFakeCatalog()
	cat.add("cpu_usage", core.Integer64)

	prog, err := Compile("cpu_usage", cat, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, prog.Start, prog.End)
}

func TestCompileUnknownStream(t *testing.T) {
	_, err := Compile("missing_metric", newFakeCatalog(), 0, 100)
	assert.ErrorIs(t, err, core.ErrStreamNotFound)
}

func TestCompileAmbiguousSelector(t *testing.T) {
	cat := newFakeCatalog()
	cat.add("cpu_usage", core.Integer64)
	cat.add("cpu_usage", core.Integer64)

	_, err := Compile("cpu_usage", cat, 0, 100)
	assert.ErrorIs(t, err, core.ErrAmbiguousSelector)
}

func TestCompileParseErrorPassthrough(t *testing.T) {
	_, err := Compile(`cpu_usage{host=~"a.*"}`, newFakeCatalog(), 0, 100)
	require.Error(t, err)
	assert.True(t, core.IsParseError(err))
}

func TestDisassemble(t *testing.T) {
	cat := newFakeCatalog()
	cat.add("cpu_usage", core.Integer64)

	prog, err := Compile(`sum(cpu_usage)`, cat, 0, 100)
	require.NoError(t, err)

	out := prog.Disassemble()
	assert.Contains(t, out, "OpenScan")
	assert.Contains(t, out, "Reduce")
	assert.Contains(t, out, "(sum)")
}
