package query

import (
	"github.com/tachyondb/tachyon/core"
)

// accumulator is the VM's scalar-mode reduction state. Each statement owns
// its own instance; nothing is shared between statements.
type accumulator struct {
	op         AggregateOp
	streamType core.ValueType
	// hinted marks that the scan substitutes partial aggregates for raw
	// points. For count that changes the fold: incoming values are partial
	// counts to be summed, not rows to be tallied.
	hinted bool

	sum   core.Value
	sumF  float64
	count uint64
	best  core.Value
	seen  bool
}

func newAccumulator(op AggregateOp, streamType core.ValueType, hinted bool) *accumulator {
	return &accumulator{op: op, streamType: streamType, hinted: hinted}
}

func (a *accumulator) fold(v core.Value) {
	switch a.op {
	case AggregateSum:
		a.sum = a.sum.Add(a.streamType, v)
	case AggregateCount:
		if a.hinted {
			a.count += v.Uint64()
		} else {
			a.count++
		}
	case AggregateMin:
		if !a.seen {
			a.best = v
			a.seen = true
		} else {
			a.best = a.best.Min(a.streamType, v)
		}
	case AggregateMax:
		if !a.seen {
			a.best = v
			a.seen = true
		} else {
			a.best = a.best.Max(a.streamType, v)
		}
	case AggregateAvg:
		a.sumF += v.AsFloat64(a.streamType)
		a.count++
	}
}

// result returns the final reduced value. An empty fold yields the
// reducer's identity: 0 for sum and count, the zero value for min/max, and
// NaN for avg (0/0, per IEEE division).
func (a *accumulator) result() core.Value {
	switch a.op {
	case AggregateSum:
		return a.sum
	case AggregateCount:
		return core.NewUint64Value(a.count)
	case AggregateMin, AggregateMax:
		return a.best
	case AggregateAvg:
		return core.NewFloat64Value(a.sumF / float64(a.count))
	default:
		return core.ZeroValue()
	}
}
