package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/core"
)

func openTestDB(t *testing.T) ConnHandle {
	t.Helper()
	h, st := Open(t.TempDir())
	require.Equal(t, StatusOK, st)
	t.Cleanup(func() { CloseConn(h) })
	return h
}

func TestOpenInvalidDir(t *testing.T) {
	_, st := Open("")
	assert.Equal(t, StatusInvalidArgument, st)
}

func TestFullRoundTrip(t *testing.T) {
	h := openTestDB(t)

	require.Equal(t, StatusOK, StreamCreate(h, `cpu_usage{host="a"}`, core.Integer64))

	exists, st := StreamExists(h, `cpu_usage{host="a"}`)
	require.Equal(t, StatusOK, st)
	assert.True(t, exists)

	for ts, v := range map[core.Timestamp]int64{23: 45, 29: 47, 40: 23, 51: 48} {
		st := Insert(h, `cpu_usage{host="a"}`, ts, core.NewInt64Value(v), core.Integer64)
		require.Equal(t, StatusOK, st)
	}
	require.Equal(t, StatusOK, InsertFlush(h))

	sh, st := StatementPrepare(h, `cpu_usage{host="a"}`, 0, 100)
	require.Equal(t, StatusOK, st)

	vt, st := StatementValueType(sh)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, core.Integer64, vt)

	rt, st := StatementReturnType(sh)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, core.ReturnVector, rt)

	var sum int64
	var n int
	for {
		v, more, st := NextVector(sh)
		require.Equal(t, StatusOK, st)
		if !more {
			break
		}
		sum += v.Value.Int64()
		n++
	}
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(163), sum)
	require.Equal(t, StatusOK, StatementClose(sh))

	sh, st = StatementPrepare(h, `sum(cpu_usage{host="a"})`, 0, 100)
	require.Equal(t, StatusOK, st)

	rt, st = StatementReturnType(sh)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, core.ReturnScalar, rt)

	v, more, st := NextScalar(sh)
	require.Equal(t, StatusOK, st)
	require.True(t, more)
	assert.Equal(t, int64(163), v.Int64())

	_, more, st = NextScalar(sh)
	require.Equal(t, StatusOK, st)
	assert.False(t, more)

	require.Equal(t, StatusOK, StatementClose(sh))
}

func TestStatusMapping(t *testing.T) {
	h := openTestDB(t)
	require.Equal(t, StatusOK, StreamCreate(h, "up", core.Integer64))

	assert.Equal(t, StatusExists, StreamCreate(h, "up", core.Integer64))
	assert.Equal(t, StatusExists, StreamCreate(h, "up", core.Float64))
	assert.Equal(t, StatusInvalidArgument, StreamCreate(h, "other", core.ValueType(0xFF)))

	assert.Equal(t, StatusTypeMismatch,
		Insert(h, "up", 1, core.NewFloat64Value(1.5), core.Float64))
	assert.Equal(t, StatusNotFound,
		Insert(h, "down", 1, core.NewInt64Value(1), core.Integer64))

	_, st := StatementPrepare(h, "down", 0, 100)
	assert.Equal(t, StatusNotFound, st)
	_, st = StatementPrepare(h, "up", 100, 0)
	assert.Equal(t, StatusInvalidRange, st)
	_, st = StatementPrepare(h, `up{host=~".*"}`, 0, 100)
	assert.Equal(t, StatusParseError, st)
}

func TestWrongStatementKind(t *testing.T) {
	h := openTestDB(t)
	require.Equal(t, StatusOK, StreamCreate(h, "up", core.Integer64))
	require.Equal(t, StatusOK, Insert(h, "up", 1, core.NewInt64Value(1), core.Integer64))
	require.Equal(t, StatusOK, InsertFlush(h))

	vecStmt, st := StatementPrepare(h, "up", 0, 10)
	require.Equal(t, StatusOK, st)
	_, _, st = NextScalar(vecStmt)
	assert.Equal(t, StatusInvalidArgument, st)
	StatementClose(vecStmt)

	sclStmt, st := StatementPrepare(h, "sum(up)", 0, 10)
	require.Equal(t, StatusOK, st)
	_, _, st = NextVector(sclStmt)
	assert.Equal(t, StatusInvalidArgument, st)
	StatementClose(sclStmt)
}

func TestStaleHandlesRejected(t *testing.T) {
	dir := t.TempDir()
	h, st := Open(dir)
	require.Equal(t, StatusOK, st)
	require.Equal(t, StatusOK, StreamCreate(h, "up", core.Integer64))

	sh, st := StatementPrepare(h, "up", 0, 10)
	require.Equal(t, StatusOK, st)

	require.Equal(t, StatusOK, StatementClose(sh))
	assert.Equal(t, StatusInvalidHandle, StatementClose(sh))
	_, _, st = NextVector(sh)
	assert.Equal(t, StatusInvalidHandle, st)

	require.Equal(t, StatusOK, CloseConn(h))
	assert.Equal(t, StatusInvalidHandle, CloseConn(h))
	assert.Equal(t, StatusInvalidHandle, StreamCreate(h, "x", core.Integer64))
	_, st = StreamExists(h, "up")
	assert.Equal(t, StatusInvalidHandle, st)
}

func TestCloseConnInvalidatesStatements(t *testing.T) {
	h, st := Open(t.TempDir())
	require.Equal(t, StatusOK, st)
	require.Equal(t, StatusOK, StreamCreate(h, "up", core.Integer64))

	sh, st := StatementPrepare(h, "up", 0, 10)
	require.Equal(t, StatusOK, st)

	require.Equal(t, StatusOK, CloseConn(h))

	_, _, st = NextVector(sh)
	assert.Equal(t, StatusInvalidHandle, st)
	assert.Equal(t, StatusInvalidHandle, StatementClose(sh))
}

func TestFabricatedHandleRejected(t *testing.T) {
	_, _, st := NextVector(StmtHandle(0xdeadbeef))
	assert.Equal(t, StatusInvalidHandle, st)
	assert.Equal(t, StatusInvalidHandle, CloseConn(ConnHandle(0)))
}

func TestHandleGenerationNotReused(t *testing.T) {
	h1, st := Open(t.TempDir())
	require.Equal(t, StatusOK, st)
	require.Equal(t, StatusOK, CloseConn(h1))

	// The freed slot is recycled under a new generation; the old handle
	// must stay dead.
	h2, st := Open(t.TempDir())
	require.Equal(t, StatusOK, st)
	defer CloseConn(h2)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, StatusInvalidHandle, CloseConn(h1))
}
