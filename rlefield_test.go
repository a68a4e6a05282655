package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRLEFieldStrideDetection(t *testing.T) {
	var f RLEField[uint64]
	values := []uint64{5, 5, 5, 10, 15, 20, 100}
	for _, v := range values {
		f.AppendValue(v)
	}

	assert.Equal(t, len(values), f.Size())
	assert.Equal(t, values, f.Restore())

	// 5,5,5 is a stride with increment 0; 5,10,15,20 continues arithmetic
	// progression with increment 5 starting from the last 5; 100 breaks it.
	// Either grouping is valid as long as round-tripping and random access
	// agree, which the assertions below confirm independent of exactly how
	// many strides were used.
	for i, want := range values {
		got, err := f.At(i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRLEFieldDetectsTwoDistinctStrides(t *testing.T) {
	var f RLEField[uint64]
	values := []uint64{5, 10, 15, 20, 100, 101, 102}
	for _, v := range values {
		f.AppendValue(v)
	}

	assert.Equal(t, len(values), f.Size())
	assert.Equal(t, values, f.Restore())

	got, err := f.At(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got)

	got, err = f.At(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got)
}

func TestRLEFieldMaxIsTrueMaximum(t *testing.T) {
	var f RLEField[int64]
	for _, v := range []int64{3, 9, 1, 7, 2} {
		f.AppendValue(v)
	}
	max, err := f.Max()
	require.NoError(t, err)
	assert.Equal(t, int64(9), max)
}

func TestRLEFieldMaxOnEmptyErrors(t *testing.T) {
	var f RLEField[uint32]
	_, err := f.Max()
	assert.Error(t, err)
}

func TestRLEFieldAtOutOfRange(t *testing.T) {
	var f RLEField[uint64]
	f.AppendValue(1)
	_, err := f.At(-1)
	assert.Error(t, err)
	_, err = f.At(1)
	assert.Error(t, err)
}

func TestRLEFieldIteratorMatchesRestore(t *testing.T) {
	var f RLEField[uint32]
	for _, v := range []uint32{1, 2, 3, 4, 8, 8, 8, 2, 1} {
		f.AppendValue(v)
	}

	it := f.Iterator()
	var collected []uint32
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		collected = append(collected, v)
	}
	assert.Equal(t, f.Restore(), collected)
}

func TestRLEFieldSizeBytesTracksBytesAdded(t *testing.T) {
	var f RLEField[uint64]
	var bytesAdded int
	f.Append(1, &bytesAdded)
	f.Append(2, &bytesAdded) // continues the same stride, no growth
	f.Append(3, &bytesAdded) // continues, no growth
	f.Append(100, &bytesAdded) // breaks the progression, new stride

	assert.Equal(t, f.SizeBytes(), bytesAdded)
	assert.Equal(t, 2*strideSizeBytes, bytesAdded)
}
