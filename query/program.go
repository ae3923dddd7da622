package query

import (
	"fmt"
	"strings"

	"github.com/tachyondb/tachyon/core"
	"github.com/tachyondb/tachyon/indexer"
)

// Opcode is one VM instruction kind. The set is just large enough to
// express "scan a stream's range, optionally reduce".
type Opcode byte

const (
	// OpOpenScan opens the bound stream's range scan.
	OpOpenScan Opcode = iota
	// OpFetchNext pushes the scan's next point, or branches to Target when
	// the scan is exhausted.
	OpFetchNext
	// OpReduce pops a point, folds it into the accumulator and loops back
	// to Target.
	OpReduce
	// OpEmitVector pops a point, yields it to the caller and resumes at
	// Target on the next step.
	OpEmitVector
	// OpEmitScalar yields the accumulator's final value.
	OpEmitScalar
	// OpHalt marks the statement exhausted.
	OpHalt
)

func (op Opcode) String() string {
	switch op {
	case OpOpenScan:
		return "OpenScan"
	case OpFetchNext:
		return "FetchNext"
	case OpReduce:
		return "Reduce"
	case OpEmitVector:
		return "EmitVector"
	case OpEmitScalar:
		return "EmitScalar"
	case OpHalt:
		return "Halt"
	default:
		return fmt.Sprintf("Opcode(0x%02x)", byte(op))
	}
}

// Instruction is one VM step. Target is the branch destination of
// OpFetchNext (taken on scan exhaustion) and the loop destination of
// OpReduce and OpEmitVector.
type Instruction struct {
	Op     Opcode
	Target int
}

// Program is a compiled, type-annotated query bound to one stream and one
// time range. The declared ValueType and ReturnType are computed at compile
// time so callers can type-check before iterating.
type Program struct {
	Code []Instruction

	ValueType  core.ValueType
	ReturnType core.ReturnType
	Aggregate  AggregateOp
	Hint       core.ScanHint

	Stream indexer.StreamSummary
	Start  core.Timestamp
	End    core.Timestamp
}

// Disassemble renders the instruction sequence for diagnostics.
func (p *Program) Disassemble() string {
	var b strings.Builder
	for pc, instr := range p.Code {
		fmt.Fprintf(&b, "%02d %s", pc, instr.Op)
		switch instr.Op {
		case OpFetchNext, OpReduce, OpEmitVector:
			fmt.Fprintf(&b, " ->%02d", instr.Target)
		case OpOpenScan:
			fmt.Fprintf(&b, " %s [%d, %d)", p.Stream.ID, p.Start, p.End)
		}
		if instr.Op == OpReduce {
			fmt.Fprintf(&b, " (%s)", p.Aggregate)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
