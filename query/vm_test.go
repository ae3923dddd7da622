package query

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/core"
)

// sliceIterator replays a fixed set of points.
type sliceIterator struct {
	points []core.Vector
	pos    int
	err    error
	closed bool
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.points) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) At() core.Vector { return it.points[it.pos-1] }
func (it *sliceIterator) Error() error    { return it.err }
func (it *sliceIterator) Close() error    { it.closed = true; return nil }

// fakeSource serves one canned scan, optionally hinted or failing.
type fakeSource struct {
	iter    *sliceIterator
	hinted  bool
	openErr error
}

func (s *fakeSource) OpenScan(_ uuid.UUID, _, _ core.Timestamp, _ core.ScanHint) (core.VectorIterator, bool, error) {
	if s.openErr != nil {
		return nil, false, s.openErr
	}
	return s.iter, s.hinted, nil
}

func intPoints(vals ...int64) []core.Vector {
	points := make([]core.Vector, len(vals))
	for i, v := range vals {
		points[i] = core.Vector{Timestamp: core.Timestamp(i * 10), Value: core.NewInt64Value(v)}
	}
	return points
}

func compileOver(t *testing.T, input string, vt core.ValueType) *Program {
	t.Helper()
	cat := newFakeCatalog()
	cat.add("cpu_usage", vt)
	prog, err := Compile(input, cat, 0, 1000)
	require.NoError(t, err)
	return prog
}

func TestStatementVectorIteration(t *testing.T) {
	prog := compileOver(t, "cpu_usage", core.Integer64)
	src := &fakeSource{iter: &sliceIterator{points: intPoints(45, 47, 23, 48)}}
	stmt := NewStatement(prog, src)

	assert.Equal(t, StateCreated, stmt.State())
	assert.Equal(t, core.ReturnVector, stmt.ReturnType())
	assert.Equal(t, core.Integer64, stmt.ValueType())

	var got []int64
	for {
		v, ok, err := stmt.NextVector()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v.Value.Int64())
	}
	assert.Equal(t, []int64{45, 47, 23, 48}, got)
	assert.Equal(t, StateExhausted, stmt.State())
	assert.True(t, src.iter.closed)

	// Exhaustion is sticky.
	_, ok, err := stmt.NextVector()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, stmt.Close())
	assert.Equal(t, StateClosed, stmt.State())
}

func TestStatementScalarSum(t *testing.T) {
	prog := compileOver(t, "sum(cpu_usage)", core.Integer64)
	src := &fakeSource{iter: &sliceIterator{points: intPoints(45, 47, 23, 48)}}
	stmt := NewStatement(prog, src)

	v, ok, err := stmt.NextScalar()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(163), v.Int64())

	_, ok, err = stmt.NextScalar()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateExhausted, stmt.State())
}

func TestStatementScalarReducers(t *testing.T) {
	points := intPoints(45, 47, 23, 48)
	cases := []struct {
		input string
		check func(t *testing.T, v core.Value)
	}{
		{"sum(cpu_usage)", func(t *testing.T, v core.Value) { assert.Equal(t, int64(163), v.Int64()) }},
		{"count(cpu_usage)", func(t *testing.T, v core.Value) { assert.Equal(t, uint64(4), v.Uint64()) }},
		{"min(cpu_usage)", func(t *testing.T, v core.Value) { assert.Equal(t, int64(23), v.Int64()) }},
		{"max(cpu_usage)", func(t *testing.T, v core.Value) { assert.Equal(t, int64(48), v.Int64()) }},
		{"avg(cpu_usage)", func(t *testing.T, v core.Value) { assert.InDelta(t, 40.75, v.Float64(), 1e-9) }},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			prog := compileOver(t, tc.input, core.Integer64)
			src := &fakeSource{iter: &sliceIterator{points: append([]core.Vector(nil), points...)}}
			stmt := NewStatement(prog, src)

			v, ok, err := stmt.NextScalar()
			require.NoError(t, err)
			require.True(t, ok)
			tc.check(t, v)
		})
	}
}

func TestStatementHintedCountSumsPartials(t *testing.T) {
	prog := compileOver(t, "count(cpu_usage)", core.Integer64)
	// Hinted scans deliver partial counts instead of rows.
	partials := []core.Vector{
		{Timestamp: 0, Value: core.NewUint64Value(120)},
		{Timestamp: 500, Value: core.NewUint64Value(3)},
	}
	src := &fakeSource{iter: &sliceIterator{points: partials}, hinted: true}
	stmt := NewStatement(prog, src)

	v, ok, err := stmt.NextScalar()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(123), v.Uint64())
}

func TestStatementEmptyRange(t *testing.T) {
	t.Run("vector", func(t *testing.T) {
		prog := compileOver(t, "cpu_usage", core.Integer64)
		stmt := NewStatement(prog, &fakeSource{iter: &sliceIterator{}})
		_, ok, err := stmt.NextVector()
		require.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("sum", func(t *testing.T) {
		prog := compileOver(t, "sum(cpu_usage)", core.Integer64)
		stmt := NewStatement(prog, &fakeSource{iter: &sliceIterator{}})
		v, ok, err := stmt.NextScalar()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(0), v.Int64())
	})
	t.Run("avg is NaN", func(t *testing.T) {
		prog := compileOver(t, "avg(cpu_usage)", core.Integer64)
		stmt := NewStatement(prog, &fakeSource{iter: &sliceIterator{}})
		v, ok, err := stmt.NextScalar()
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, math.IsNaN(v.Float64()))
	})
}

func TestStatementReturnTypeGuards(t *testing.T) {
	vecProg := compileOver(t, "cpu_usage", core.Integer64)
	vecStmt := NewStatement(vecProg, &fakeSource{iter: &sliceIterator{}})
	_, _, err := vecStmt.NextScalar()
	assert.ErrorIs(t, err, core.ErrNotScalar)

	sclProg := compileOver(t, "sum(cpu_usage)", core.Integer64)
	sclStmt := NewStatement(sclProg, &fakeSource{iter: &sliceIterator{}})
	_, _, err = sclStmt.NextVector()
	assert.ErrorIs(t, err, core.ErrNotVector)
}

func TestStatementOpenScanFailure(t *testing.T) {
	prog := compileOver(t, "cpu_usage", core.Integer64)
	boom := errors.New("disk gone")
	stmt := NewStatement(prog, &fakeSource{openErr: boom})

	_, _, err := stmt.NextVector()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateExhausted, stmt.State())
}

func TestStatementScanErrorSurfaces(t *testing.T) {
	prog := compileOver(t, "cpu_usage", core.Integer64)
	boom := errors.New("bad block")
	src := &fakeSource{iter: &sliceIterator{err: boom}}
	stmt := NewStatement(prog, src)

	_, ok, err := stmt.NextVector()
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.True(t, src.iter.closed)
}

func TestStatementUseAfterClose(t *testing.T) {
	prog := compileOver(t, "cpu_usage", core.Integer64)
	src := &fakeSource{iter: &sliceIterator{points: intPoints(1, 2, 3)}}
	stmt := NewStatement(prog, src)

	_, ok, err := stmt.NextVector()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stmt.Close())
	require.NoError(t, stmt.Close())
	assert.True(t, src.iter.closed)

	_, _, err = stmt.NextVector()
	assert.ErrorIs(t, err, core.ErrStatementClosed)
}
