package api

import (
	"errors"
	"io/fs"

	"github.com/tachyondb/tachyon/core"
)

// Status is the flat error code returned across the handle boundary.
// Misuse (stale handles, wrong-type calls) reports a code instead of
// panicking, so a foreign caller can always recover.
type Status int32

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusInvalidHandle
	StatusNotFound
	StatusExists
	StatusAmbiguous
	StatusTypeMismatch
	StatusInvalidRange
	StatusParseError
	StatusIO
	StatusClosed
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusNotFound:
		return "not found"
	case StatusExists:
		return "already exists"
	case StatusAmbiguous:
		return "ambiguous selector"
	case StatusTypeMismatch:
		return "type mismatch"
	case StatusInvalidRange:
		return "invalid range"
	case StatusParseError:
		return "parse error"
	case StatusIO:
		return "i/o error"
	case StatusClosed:
		return "closed"
	case StatusInternal:
		return "internal error"
	default:
		return "unknown status"
	}
}

// statusFromError flattens the engine's error taxonomy into a Status.
func statusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, core.ErrStreamNotFound):
		return StatusNotFound
	case errors.Is(err, core.ErrStreamExists):
		return StatusExists
	case errors.Is(err, core.ErrAmbiguousSelector):
		return StatusAmbiguous
	case errors.Is(err, core.ErrInvalidRange):
		return StatusInvalidRange
	case errors.Is(err, core.ErrConnectionClosed), errors.Is(err, core.ErrStatementClosed):
		return StatusClosed
	case errors.Is(err, core.ErrNotVector), errors.Is(err, core.ErrNotScalar):
		return StatusInvalidArgument
	case core.IsTypeMismatch(err):
		return StatusTypeMismatch
	case core.IsParseError(err):
		return StatusParseError
	case errors.Is(err, core.ErrCorrupted):
		return StatusIO
	case isFSError(err):
		return StatusIO
	default:
		return StatusInternal
	}
}

func isFSError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
