package core

import "fmt"

// ScanHint tells a scan which aggregate the caller will fold the points
// into. A hinted scan may substitute a run of points with a single
// precomputed partial aggregate taken from a segment header, which lets
// scalar queries skip decoding whole segments.
//
// For ScanHintCount the emitted values are partial counts (uint64), not
// stream values; the consumer must sum them rather than count rows.
type ScanHint byte

const (
	ScanHintNone  ScanHint = 0x00
	ScanHintSum   ScanHint = 0x01
	ScanHintCount ScanHint = 0x02
	ScanHintMin   ScanHint = 0x03
	ScanHintMax   ScanHint = 0x04
)

func (h ScanHint) String() string {
	switch h {
	case ScanHintNone:
		return "none"
	case ScanHintSum:
		return "sum"
	case ScanHintCount:
		return "count"
	case ScanHintMin:
		return "min"
	case ScanHintMax:
		return "max"
	default:
		return fmt.Sprintf("ScanHint(0x%02x)", byte(h))
	}
}
