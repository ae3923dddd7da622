package query

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tachyondb/tachyon/core"
)

// State is the statement lifecycle. Iteration moves Created -> Running ->
// Exhausted; Close is valid from any state and is terminal.
type State byte

const (
	StateCreated State = iota
	StateRunning
	StateExhausted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(0x%02x)", byte(s))
	}
}

// ScanSource opens range scans over a stream's flushed region. Implemented
// by the engine's stream stores. hinted reports whether the returned scan
// substitutes partial aggregates for raw points (see core.ScanHint).
type ScanSource interface {
	OpenScan(id uuid.UUID, start, end core.Timestamp, hint core.ScanHint) (iter core.VectorIterator, hinted bool, err error)
}

// Statement is a prepared query: a compiled program plus cursor state. It
// executes one instruction at a time, pull-based, and owns no data beyond
// its scan cursor and accumulator. A Statement is single-threaded; wrap it
// in external synchronization to share it.
type Statement struct {
	prog   *Program
	source ScanSource

	state State
	pc    int
	scan  core.VectorIterator
	stack []core.Vector
	acc   *accumulator
}

// NewStatement binds a compiled program to a scan source. The first
// NextVector/NextScalar call opens the scan.
func NewStatement(prog *Program, source ScanSource) *Statement {
	return &Statement{
		prog:   prog,
		source: source,
		stack:  make([]core.Vector, 0, 2),
	}
}

// ValueType returns the declared type of produced values.
func (s *Statement) ValueType() core.ValueType { return s.prog.ValueType }

// ReturnType reports whether the statement produces a scalar or vectors.
func (s *Statement) ReturnType() core.ReturnType { return s.prog.ReturnType }

// State returns the current lifecycle state.
func (s *Statement) State() State { return s.state }

// Program exposes the compiled program, mainly for diagnostics.
func (s *Statement) Program() *Program { return s.prog }

// NextVector advances the scan by one point and returns it. ok is false
// once the range is exhausted, and stays false.
func (s *Statement) NextVector() (core.Vector, bool, error) {
	if s.prog.ReturnType != core.ReturnVector {
		return core.Vector{}, false, core.ErrNotVector
	}
	return s.step()
}

// NextScalar drains the scan through the reducer and returns the final
// value. The statement is exhausted afterwards; a second call reports ok ==
// false without re-reducing.
func (s *Statement) NextScalar() (core.Value, bool, error) {
	if s.prog.ReturnType != core.ReturnScalar {
		return core.Value{}, false, core.ErrNotScalar
	}
	v, ok, err := s.step()
	return v.Value, ok, err
}

// step runs the program until it yields, halts or fails.
func (s *Statement) step() (core.Vector, bool, error) {
	switch s.state {
	case StateClosed:
		return core.Vector{}, false, core.ErrStatementClosed
	case StateExhausted:
		return core.Vector{}, false, nil
	}

	for {
		instr := s.prog.Code[s.pc]
		switch instr.Op {
		case OpOpenScan:
			scan, hinted, err := s.source.OpenScan(s.prog.Stream.ID, s.prog.Start, s.prog.End, s.prog.Hint)
			if err != nil {
				s.state = StateExhausted
				return core.Vector{}, false, err
			}
			s.scan = scan
			s.acc = newAccumulator(s.prog.Aggregate, s.prog.Stream.ValueType, hinted)
			s.state = StateRunning
			s.pc++

		case OpFetchNext:
			if s.scan.Next() {
				s.stack = append(s.stack, s.scan.At())
				s.pc++
			} else {
				if err := s.scan.Error(); err != nil {
					s.exhaust()
					return core.Vector{}, false, err
				}
				s.pc = instr.Target
			}

		case OpReduce:
			v := s.pop()
			s.acc.fold(v.Value)
			s.pc = instr.Target

		case OpEmitVector:
			v := s.pop()
			s.pc = instr.Target
			return v, true, nil

		case OpEmitScalar:
			result := s.acc.result()
			s.pc++
			return core.Vector{Value: result}, true, nil

		case OpHalt:
			s.exhaust()
			return core.Vector{}, false, nil

		default:
			s.exhaust()
			return core.Vector{}, false, fmt.Errorf("vm: invalid opcode 0x%02x at pc %d", byte(instr.Op), s.pc)
		}
	}
}

func (s *Statement) pop() core.Vector {
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// exhaust marks iteration finished and releases the scan cursor.
func (s *Statement) exhaust() {
	s.state = StateExhausted
	if s.scan != nil {
		s.scan.Close()
		s.scan = nil
	}
}

// Close releases the statement. It is idempotent and valid in any state;
// sibling statements over the same stream are unaffected.
func (s *Statement) Close() error {
	if s.state == StateClosed {
		return nil
	}
	if s.scan != nil {
		s.scan.Close()
		s.scan = nil
	}
	s.state = StateClosed
	return nil
}
