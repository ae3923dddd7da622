// Package api is the flat, handle-based boundary over the engine, shaped
// the way a C ABI would consume it: opaque integer handles, Status codes
// instead of Go errors, and no Go object ever crossing the boundary.
// Handles are generation checked, so use-after-close and fabricated handles
// are rejected rather than dereferenced.
package api

import (
	"context"

	"github.com/tachyondb/tachyon/core"
	"github.com/tachyondb/tachyon/engine"
	"github.com/tachyondb/tachyon/query"
)

// ConnHandle identifies an open connection.
type ConnHandle uint64

// StmtHandle identifies a prepared statement.
type StmtHandle uint64

// statementEntry ties a statement to its owning connection so closing the
// connection can invalidate the statement handles it issued.
type statementEntry struct {
	stmt *query.Statement
	conn ConnHandle
}

var (
	conns registry[*engine.Connection]
	stmts registry[statementEntry]
)

// Open opens the database rooted at dir with default options and returns a
// connection handle.
func Open(dir string) (ConnHandle, Status) {
	return OpenWithOptions(dir, engine.Options{})
}

// OpenWithOptions opens the database with explicit engine options.
func OpenWithOptions(dir string, opts engine.Options) (ConnHandle, Status) {
	if dir == "" {
		return 0, StatusInvalidArgument
	}
	conn, err := engine.Open(dir, opts)
	if err != nil {
		return 0, statusFromError(err)
	}
	return ConnHandle(conns.put(conn)), StatusOK
}

// CloseConn flushes and closes the connection and invalidates its handle.
// Statement handles issued by the connection become invalid as well.
func CloseConn(h ConnHandle) Status {
	conn, ok := conns.release(uint64(h))
	if !ok {
		return StatusInvalidHandle
	}
	closeStatementsOf(h)
	return statusFromError(conn.Close())
}

// closeStatementsOf releases every statement registered under conn.
func closeStatementsOf(conn ConnHandle) {
	stmts.mu.Lock()
	handles := make([]uint64, 0)
	for i := range stmts.slots {
		s := &stmts.slots[i]
		if s.live && s.value.conn == conn {
			handles = append(handles, packHandle(uint32(i), s.gen))
		}
	}
	stmts.mu.Unlock()

	for _, h := range handles {
		if entry, ok := stmts.release(h); ok {
			entry.stmt.Close()
		}
	}
}

// StreamCreate registers a stream under the selector's full label set.
func StreamCreate(h ConnHandle, selector string, vt core.ValueType) Status {
	conn, ok := conns.get(uint64(h))
	if !ok {
		return StatusInvalidHandle
	}
	if !vt.IsValid() {
		return StatusInvalidArgument
	}
	_, err := conn.CreateStream(selector, vt)
	return statusFromError(err)
}

// StreamExists reports whether a stream with exactly the selector's label
// set is registered.
func StreamExists(h ConnHandle, selector string) (bool, Status) {
	conn, ok := conns.get(uint64(h))
	if !ok {
		return false, StatusInvalidHandle
	}
	exists, err := conn.StreamExists(selector)
	return exists, statusFromError(err)
}

// Insert buffers one point into the stream the selector resolves to. The
// point stays invisible to queries until the next flush.
func Insert(h ConnHandle, selector string, ts core.Timestamp, value core.Value, vt core.ValueType) Status {
	conn, ok := conns.get(uint64(h))
	if !ok {
		return StatusInvalidHandle
	}
	ins, err := conn.PrepareInsert(selector)
	if err != nil {
		return statusFromError(err)
	}
	return statusFromError(ins.Insert(ts, value, vt))
}

// InsertFlush makes every buffered point on the connection visible.
func InsertFlush(h ConnHandle) Status {
	conn, ok := conns.get(uint64(h))
	if !ok {
		return StatusInvalidHandle
	}
	return statusFromError(conn.Flush(context.Background()))
}

// StatementPrepare compiles query text over [start, end) and returns a
// statement handle. All static errors surface here.
func StatementPrepare(h ConnHandle, text string, start, end core.Timestamp) (StmtHandle, Status) {
	conn, ok := conns.get(uint64(h))
	if !ok {
		return 0, StatusInvalidHandle
	}
	stmt, err := conn.PrepareQuery(text, start, end)
	if err != nil {
		return 0, statusFromError(err)
	}
	return StmtHandle(stmts.put(statementEntry{stmt: stmt, conn: h})), StatusOK
}

// StatementValueType returns the declared type of the statement's values.
func StatementValueType(h StmtHandle) (core.ValueType, Status) {
	entry, ok := stmts.get(uint64(h))
	if !ok {
		return 0, StatusInvalidHandle
	}
	return entry.stmt.ValueType(), StatusOK
}

// StatementReturnType reports whether the statement yields vectors or one
// scalar.
func StatementReturnType(h StmtHandle) (core.ReturnType, Status) {
	entry, ok := stmts.get(uint64(h))
	if !ok {
		return 0, StatusInvalidHandle
	}
	return entry.stmt.ReturnType(), StatusOK
}

// NextVector pulls the next point from a vector statement. ok is false at
// exhaustion and stays false.
func NextVector(h StmtHandle) (core.Vector, bool, Status) {
	entry, ok := stmts.get(uint64(h))
	if !ok {
		return core.Vector{}, false, StatusInvalidHandle
	}
	v, more, err := entry.stmt.NextVector()
	if err != nil {
		return core.Vector{}, false, statusFromError(err)
	}
	return v, more, StatusOK
}

// NextScalar reduces a scalar statement to its final value. The second call
// reports ok == false.
func NextScalar(h StmtHandle) (core.Value, bool, Status) {
	entry, ok := stmts.get(uint64(h))
	if !ok {
		return core.Value{}, false, StatusInvalidHandle
	}
	v, more, err := entry.stmt.NextScalar()
	if err != nil {
		return core.Value{}, false, statusFromError(err)
	}
	return v, more, StatusOK
}

// StatementClose releases the statement and invalidates its handle.
// Closing one statement never affects its siblings.
func StatementClose(h StmtHandle) Status {
	entry, ok := stmts.release(uint64(h))
	if !ok {
		return StatusInvalidHandle
	}
	return statusFromError(entry.stmt.Close())
}
