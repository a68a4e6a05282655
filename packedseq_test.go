package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackedUintSeqRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 1, 5, 300, 300, 70000, 1 << 40}

	var seq PackedUintSeq
	var bytesAdded int
	for _, v := range values {
		require.NoError(t, seq.Append(v, &bytesAdded))
	}

	assert.Equal(t, len(values), seq.Len())
	assert.Equal(t, bytesAdded, seq.SizeBytes())
	assert.Equal(t, values, seq.Restore())
}

func TestPackedUintSeqRejectsNonMonotone(t *testing.T) {
	var seq PackedUintSeq
	require.NoError(t, seq.AppendValue(10))
	err := seq.AppendValue(9)
	assert.Error(t, err)
	assert.Equal(t, 1, seq.Len(), "a rejected append must not change the stored sequence")
}

func TestPackedUintSeqRejectsHugeDelta(t *testing.T) {
	var seq PackedUintSeq
	require.NoError(t, seq.AppendValue(0))
	err := seq.AppendValue(1 << 62)
	assert.Error(t, err)
}

func TestPackedUintSeqIteratorIsIndependentOfRestore(t *testing.T) {
	var seq PackedUintSeq
	for _, v := range []uint64{3, 3, 4, 10, 10, 10} {
		require.NoError(t, seq.AppendValue(v))
	}

	it := seq.Iterator()
	var collected []uint64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		collected = append(collected, v)
	}
	assert.Equal(t, seq.Restore(), collected)
}

func TestPackedUintSeqEncodesDeltaNotAbsoluteValue(t *testing.T) {
	values := []uint64{0, 1, 33, 8193}

	var seq PackedUintSeq
	var bytesAdded int
	for _, v := range values {
		require.NoError(t, seq.Append(v, &bytesAdded))
	}

	// Deltas are 0, 1, 32, 8160: the first two fit in one byte each, 32
	// needs two (it is not below the one-byte bound), and 8160 still fits
	// in two (it is below the two-byte bound of 8192) even though the
	// absolute value 8193 would not.
	assert.Equal(t, 1+1+2+2, seq.SizeBytes())
	assert.Equal(t, values, seq.Restore())
}

func TestMaxDeltaForBytesBoundary(t *testing.T) {
	// a single byte (k=1) reserves 3 bits for the length code, leaving 5
	// bits of delta: max representable delta is 2^5 - 1 below the bound.
	assert.Equal(t, uint64(1<<5), maxDeltaForBytes(1))

	var seq PackedUintSeq
	require.NoError(t, seq.AppendValue(0))
	require.NoError(t, seq.AppendValue(maxDeltaForBytes(1)-1))
	assert.Equal(t, 2, seq.SizeBytes(), "a delta just under the one-byte bound must still fit in one byte")
}
