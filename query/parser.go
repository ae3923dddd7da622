// Package query compiles PromQL-style query text into a small bytecode
// program and executes it incrementally against a stream's flushed region.
//
// The accepted grammar is a restricted PromQL subset: a vector selector with
// exact-equality label matchers, optionally wrapped in a single aggregation
// call (sum, count, min, max, avg). Parsing proper is delegated to the
// Prometheus PromQL parser; the restriction pass lives here.
package query

import (
	"errors"
	"fmt"

	"github.com/prometheus/prometheus/model/labels"
	promparser "github.com/prometheus/prometheus/promql/parser"

	"github.com/tachyondb/tachyon/core"
)

// AggregateOp identifies the reducer of a scalar query.
type AggregateOp byte

const (
	AggregateNone AggregateOp = iota
	AggregateSum
	AggregateCount
	AggregateMin
	AggregateMax
	AggregateAvg
)

func (op AggregateOp) String() string {
	switch op {
	case AggregateNone:
		return "none"
	case AggregateSum:
		return "sum"
	case AggregateCount:
		return "count"
	case AggregateMin:
		return "min"
	case AggregateMax:
		return "max"
	case AggregateAvg:
		return "avg"
	default:
		return fmt.Sprintf("AggregateOp(0x%02x)", byte(op))
	}
}

// SelectorExpr is a vector selector: a metric name plus equality matchers.
type SelectorExpr struct {
	Name     string
	Matchers []*labels.Matcher
}

// AggregateExpr wraps a selector in a reducer.
type AggregateExpr struct {
	Op       AggregateOp
	Selector *SelectorExpr
}

// Expr is the restricted AST: either *SelectorExpr or *AggregateExpr.
type Expr interface {
	exprNode()
}

func (*SelectorExpr) exprNode()  {}
func (*AggregateExpr) exprNode() {}

// Parse parses query text into the restricted AST. Anything outside the
// supported subset fails with a core.ParseError carrying the position of
// the offending construct.
func Parse(input string) (Expr, error) {
	expr, err := promparser.ParseExpr(input)
	if err != nil {
		return nil, convertParseError(err)
	}
	return restrict(expr)
}

// ParseSelector parses a bare vector selector, as used for stream creation
// and insert binding. Aggregations are rejected.
func ParseSelector(input string) (*SelectorExpr, error) {
	expr, err := Parse(input)
	if err != nil {
		return nil, err
	}
	sel, ok := expr.(*SelectorExpr)
	if !ok {
		return nil, &core.ParseError{Message: "expected a plain vector selector"}
	}
	return sel, nil
}

func restrict(expr promparser.Expr) (Expr, error) {
	switch e := expr.(type) {
	case *promparser.VectorSelector:
		return restrictSelector(e)
	case *promparser.AggregateExpr:
		return restrictAggregate(e)
	case *promparser.ParenExpr:
		return restrict(e.Expr)
	default:
		return nil, &core.ParseError{
			Pos:     int(expr.PositionRange().Start),
			Message: fmt.Sprintf("unsupported expression %T", expr),
		}
	}
}

func restrictSelector(sel *promparser.VectorSelector) (*SelectorExpr, error) {
	pos := int(sel.PositionRange().Start)
	if sel.OriginalOffset != 0 || sel.Timestamp != nil || sel.StartOrEnd != 0 {
		return nil, &core.ParseError{Pos: pos, Message: "offset and @ modifiers are not supported"}
	}

	name := sel.Name
	matchers := make([]*labels.Matcher, 0, len(sel.LabelMatchers))
	for _, m := range sel.LabelMatchers {
		if m.Name == labels.MetricName {
			if m.Type != labels.MatchEqual {
				return nil, &core.ParseError{Pos: pos, Message: "metric name must be an exact match"}
			}
			name = m.Value
			continue
		}
		if m.Type != labels.MatchEqual {
			return nil, &core.ParseError{
				Pos:     pos,
				Message: fmt.Sprintf("unsupported matcher %q for label %q: only exact equality is allowed", m.Type, m.Name),
			}
		}
		matchers = append(matchers, m)
	}
	if name == "" {
		return nil, &core.ParseError{Pos: pos, Message: "selector has no metric name"}
	}
	return &SelectorExpr{Name: name, Matchers: matchers}, nil
}

func restrictAggregate(agg *promparser.AggregateExpr) (*AggregateExpr, error) {
	pos := int(agg.PositionRange().Start)

	var op AggregateOp
	switch agg.Op {
	case promparser.SUM:
		op = AggregateSum
	case promparser.COUNT:
		op = AggregateCount
	case promparser.MIN:
		op = AggregateMin
	case promparser.MAX:
		op = AggregateMax
	case promparser.AVG:
		op = AggregateAvg
	default:
		return nil, &core.ParseError{
			Pos:     pos,
			Message: fmt.Sprintf("unsupported aggregation %q", agg.Op.String()),
		}
	}

	if len(agg.Grouping) > 0 || agg.Without {
		return nil, &core.ParseError{Pos: pos, Message: "by/without grouping is not supported"}
	}
	if agg.Param != nil {
		return nil, &core.ParseError{Pos: pos, Message: "aggregation parameters are not supported"}
	}

	inner, err := restrict(agg.Expr)
	if err != nil {
		return nil, err
	}
	sel, ok := inner.(*SelectorExpr)
	if !ok {
		return nil, &core.ParseError{Pos: pos, Message: "nested aggregations are not supported"}
	}
	return &AggregateExpr{Op: op, Selector: sel}, nil
}

// convertParseError maps the Prometheus parser's error type onto the
// engine's ParseError, keeping the first reported position.
func convertParseError(err error) error {
	var perrs promparser.ParseErrors
	if errors.As(err, &perrs) && len(perrs) > 0 {
		return &core.ParseError{
			Pos:     int(perrs[0].PositionRange.Start),
			Message: perrs[0].Err.Error(),
		}
	}
	return &core.ParseError{Message: err.Error()}
}
