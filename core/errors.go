package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for catalog resolution and statement lifecycle. These are
// wrapped with context by the layers above, so callers should test them with
// errors.Is.
var (
	// ErrStreamNotFound is returned when a selector resolves to no stream.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrStreamExists is returned when creating a stream whose identity is
	// already registered, regardless of value type.
	ErrStreamExists = errors.New("stream already exists")
	// ErrAmbiguousSelector is returned when a selector matches more than one
	// stream; queries and inserts must bind to exactly one.
	ErrAmbiguousSelector = errors.New("selector matches more than one stream")
	// ErrInvalidRange is returned when a query range has start > end.
	ErrInvalidRange = errors.New("invalid time range: start is after end")
	// ErrStatementClosed is returned by operations on a closed statement.
	ErrStatementClosed = errors.New("statement is closed")
	// ErrConnectionClosed is returned by operations on a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrCorrupted indicates a malformed or truncated segment file.
	ErrCorrupted = errors.New("segment file is corrupted")
	// ErrNotVector is returned by NextVector on a scalar statement.
	ErrNotVector = errors.New("statement does not produce a vector result")
	// ErrNotScalar is returned by NextScalar on a vector statement.
	ErrNotScalar = errors.New("statement does not produce a scalar result")
)

// TypeMismatchError reports a value whose type tag differs from the stream's
// declared type. Inserts fail with it synchronously; nothing is buffered.
type TypeMismatchError struct {
	Expected ValueType
	Actual   ValueType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("value type mismatch: stream holds %s, got %s", e.Expected, e.Actual)
}

// IsTypeMismatch reports whether err is (or wraps) a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var tm *TypeMismatchError
	return errors.As(err, &tm)
}

// ParseError reports malformed query text with the byte position of the
// offending token. It is surfaced at prepare time, never during iteration.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Message)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
