// Package segment implements the immutable on-disk representation of a
// stream's flushed region. Each flush produces one segment file holding a
// sorted, block-compressed run of (timestamp, value) points plus a block
// index for binary-searched range scans. Files are written to a temporary
// name and atomically renamed, so readers never observe a partial segment.
package segment

import "errors"

// headerMagic opens every segment file.
const headerMagic = "Tach"

// MagicString closes every segment file and is checked before the footer is
// trusted. Used for basic corruption detection.
const MagicString = "TACHYON-SEGMENT-V1"

// FormatVersion is bumped on incompatible layout changes.
const FormatVersion uint16 = 2

// FileExtension is the suffix of finished segment files.
const FileExtension = ".ty"

// TempFileExtension is the suffix segments carry while being written.
const TempFileExtension = ".ty.tmp"

// Fixed layout sizes in bytes.
const (
	headerMagicSize = len(headerMagic)

	// version(2) + valueType(1) + compression(1) + streamID(16) +
	// count(8) + minTs(8) + maxTs(8) +
	// sum(8) + minValue(8) + maxValue(8) + firstValue(8)
	headerFixedSize = 2 + 1 + 1 + 16 + 8 + 8 + 8 + 8 + 8 + 8 + 8

	// HeaderSize is the full on-disk header including the leading magic.
	HeaderSize = headerMagicSize + headerFixedSize

	// minTs(8) + maxTs(8) + offset(8) + length(4) + count(4)
	blockIndexEntrySize = 8 + 8 + 8 + 4 + 4

	// indexOffset(8) + blockCount(4)
	footerFixedSize = 8 + 4

	// FooterSize is the full on-disk footer including the trailing magic.
	FooterSize = footerFixedSize + len(MagicString)
)

// DefaultBlockCapacity is the number of points per data block. At 16 bytes a
// point this keeps uncompressed blocks around 16KB.
const DefaultBlockCapacity = 1024

var (
	// ErrNoPoints is returned by Finish when nothing was added.
	ErrNoPoints = errors.New("segment has no points")
	// ErrOutOfOrder is returned when Add violates ascending timestamp order.
	ErrOutOfOrder = errors.New("points must be added in strictly ascending timestamp order")
)
