package query

import (
	"fmt"

	"github.com/prometheus/prometheus/model/labels"

	"github.com/tachyondb/tachyon/core"
	"github.com/tachyondb/tachyon/indexer"
)

// Catalog resolves selectors to streams. Implemented by indexer.Indexer.
type Catalog interface {
	Lookup(name string, matchers []*labels.Matcher) ([]indexer.StreamSummary, error)
}

// Compile parses and lowers query text into a Program bound to [start, end).
// All static errors surface here: parse errors, range validation, selector
// resolution. Compilation only reads the catalog, it has no other side
// effects.
func Compile(input string, cat Catalog, start, end core.Timestamp) (*Program, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start=%d end=%d", core.ErrInvalidRange, start, end)
	}

	expr, err := Parse(input)
	if err != nil {
		return nil, err
	}

	var selector *SelectorExpr
	agg := AggregateNone
	switch e := expr.(type) {
	case *SelectorExpr:
		selector = e
	case *AggregateExpr:
		selector = e.Selector
		agg = e.Op
	}

	stream, err := resolveStream(cat, selector)
	if err != nil {
		return nil, err
	}

	prog := &Program{
		Aggregate: agg,
		Stream:    stream,
		Start:     start,
		End:       end,
	}

	switch agg {
	case AggregateNone:
		prog.ReturnType = core.ReturnVector
		prog.ValueType = stream.ValueType
		prog.Hint = core.ScanHintNone
		prog.Code = []Instruction{
			{Op: OpOpenScan},
			{Op: OpFetchNext, Target: 3},
			{Op: OpEmitVector, Target: 1},
			{Op: OpHalt},
		}
	default:
		prog.ReturnType = core.ReturnScalar
		prog.ValueType = scalarValueType(agg, stream.ValueType)
		prog.Hint = scanHint(agg)
		prog.Code = []Instruction{
			{Op: OpOpenScan},
			{Op: OpFetchNext, Target: 3},
			{Op: OpReduce, Target: 1},
			{Op: OpEmitScalar},
			{Op: OpHalt},
		}
	}
	return prog, nil
}

// resolveStream binds a selector to exactly one stream.
func resolveStream(cat Catalog, selector *SelectorExpr) (indexer.StreamSummary, error) {
	streams, err := cat.Lookup(selector.Name, selector.Matchers)
	if err != nil {
		return indexer.StreamSummary{}, err
	}
	switch len(streams) {
	case 0:
		return indexer.StreamSummary{}, fmt.Errorf("%w: %s", core.ErrStreamNotFound, selector.Name)
	case 1:
		return streams[0], nil
	default:
		return indexer.StreamSummary{}, fmt.Errorf("%w: %s matches %d streams", core.ErrAmbiguousSelector, selector.Name, len(streams))
	}
}

// scalarValueType is the declared type of a reduced result. count is always
// an unsigned tally and avg is always floating point; the other reducers
// keep the stream's type.
func scalarValueType(op AggregateOp, streamType core.ValueType) core.ValueType {
	switch op {
	case AggregateCount:
		return core.UInteger64
	case AggregateAvg:
		return core.Float64
	default:
		return streamType
	}
}

// scanHint maps a reducer to the partial-aggregate hint the stream store
// understands. avg needs both a sum and a count, which segment headers
// cannot provide in one pass, so it scans unhinted.
func scanHint(op AggregateOp) core.ScanHint {
	switch op {
	case AggregateSum:
		return core.ScanHintSum
	case AggregateCount:
		return core.ScanHintCount
	case AggregateMin:
		return core.ScanHintMin
	case AggregateMax:
		return core.ScanHintMax
	default:
		return core.ScanHintNone
	}
}
