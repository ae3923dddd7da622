package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyondb/tachyon/core"
)

// sliceIterator drives the merge tests without touching disk.
type sliceIterator struct {
	points []core.Vector
	pos    int
	closed bool
}

func newSliceIterator(points []core.Vector) *sliceIterator {
	return &sliceIterator{points: points, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.points) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) At() core.Vector { return it.points[it.pos] }
func (it *sliceIterator) Error() error    { return nil }
func (it *sliceIterator) Close() error    { it.closed = true; return nil }

func mergeAll(t *testing.T, sources []Source) []core.Vector {
	t.Helper()
	iter := NewMergingIterator(sources)
	defer iter.Close()

	var out []core.Vector
	for iter.Next() {
		out = append(out, iter.At())
	}
	require.NoError(t, iter.Error())
	return out
}

func TestMergingIteratorInterleaved(t *testing.T) {
	a := newSliceIterator(uintPoints([]core.Timestamp{1, 4, 7}, []uint64{1, 4, 7}))
	b := newSliceIterator(uintPoints([]core.Timestamp{2, 5, 8}, []uint64{2, 5, 8}))
	c := newSliceIterator(uintPoints([]core.Timestamp{3, 6, 9}, []uint64{3, 6, 9}))

	got := mergeAll(t, []Source{{a, 1}, {b, 2}, {c, 3}})
	require.Len(t, got, 9)
	for i, p := range got {
		assert.Equal(t, core.Timestamp(i+1), p.Timestamp)
		assert.Equal(t, uint64(i+1), p.Value.Uint64())
	}
}

func TestMergingIteratorNewestWinsOnDuplicates(t *testing.T) {
	older := newSliceIterator(uintPoints([]core.Timestamp{10, 20, 30}, []uint64{1, 1, 1}))
	newer := newSliceIterator(uintPoints([]core.Timestamp{20, 40}, []uint64{2, 2}))

	got := mergeAll(t, []Source{{older, 1}, {newer, 2}})
	require.Len(t, got, 4)

	assert.Equal(t, core.Timestamp(10), got[0].Timestamp)
	assert.Equal(t, uint64(1), got[0].Value.Uint64())
	// Timestamp 20 exists in both; the higher-ranked source wins.
	assert.Equal(t, core.Timestamp(20), got[1].Timestamp)
	assert.Equal(t, uint64(2), got[1].Value.Uint64())
	assert.Equal(t, core.Timestamp(30), got[2].Timestamp)
	assert.Equal(t, core.Timestamp(40), got[3].Timestamp)
}

func TestMergingIteratorTripleDuplicate(t *testing.T) {
	s1 := newSliceIterator(uintPoints([]core.Timestamp{5}, []uint64{1}))
	s2 := newSliceIterator(uintPoints([]core.Timestamp{5}, []uint64{2}))
	s3 := newSliceIterator(uintPoints([]core.Timestamp{5}, []uint64{3}))

	got := mergeAll(t, []Source{{s1, 1}, {s2, 2}, {s3, 3}})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Value.Uint64())
}

func TestMergingIteratorEmptySources(t *testing.T) {
	got := mergeAll(t, nil)
	assert.Empty(t, got)

	empty := newSliceIterator(nil)
	live := newSliceIterator(uintPoints([]core.Timestamp{1}, []uint64{1}))
	got = mergeAll(t, []Source{{empty, 1}, {live, 2}})
	require.Len(t, got, 1)
	assert.True(t, empty.closed)
}

func TestMergingIteratorSingleSourceUnwrapped(t *testing.T) {
	only := newSliceIterator(uintPoints([]core.Timestamp{1, 2}, []uint64{1, 2}))
	iter := NewMergingIterator([]Source{{only, 1}})
	// A single live source is returned as-is, no heap involved.
	assert.Equal(t, core.VectorIterator(only), iter)
}

func TestMergingIteratorExhaustionIsIdempotent(t *testing.T) {
	a := newSliceIterator(uintPoints([]core.Timestamp{1}, []uint64{1}))
	b := newSliceIterator(uintPoints([]core.Timestamp{2}, []uint64{2}))
	iter := NewMergingIterator([]Source{{a, 1}, {b, 2}})
	defer iter.Close()

	assert.True(t, iter.Next())
	assert.True(t, iter.Next())
	assert.False(t, iter.Next())
	assert.False(t, iter.Next())
}
