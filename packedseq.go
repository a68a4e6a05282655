package simnet

import "fmt"

// PackedUintSeq stores a monotone non-decreasing sequence of uint64 values
// as a byte vector of per-element deltas, grounded on the original
// PackedUintSeq in packer.h: each entry's leading byte reserves its low 3
// bits for a length code k in 0..7 meaning the entry occupies k+1 bytes
// total; the remaining bits (across all k+1 bytes, little-endian) hold the
// delta from the previously appended value shifted left by 3.
type PackedUintSeq struct {
	data       []byte
	lastAppend uint64
	length     int
}

// maxDeltaForBytes is 2^(8*(k+1)-3), the exclusive upper bound on a delta
// that fits in k+1 bytes once 3 bits are reserved for the length code.
func maxDeltaForBytes(totalBytes int) uint64 {
	return uint64(1) << uint(8*totalBytes-3)
}

// Append adds v to the sequence. It fails (returns an error) if v is
// smaller than the last appended value, or if the delta requires more than
// 8 bytes to encode. bytesAdded, if non-nil, is incremented by the number
// of bytes this append consumed, so callers can track memory growth.
func (s *PackedUintSeq) Append(v uint64, bytesAdded *int) error {
	if s.length > 0 && v < s.lastAppend {
		return fmt.Errorf("simnet: non-monotone append to packed sequence: %d < %d", v, s.lastAppend)
	}

	delta := v - s.lastAppend

	totalBytes := 0
	for k := 1; k <= 8; k++ {
		if delta < maxDeltaForBytes(k) {
			totalBytes = k
			break
		}
	}
	if totalBytes == 0 {
		return fmt.Errorf("simnet: delta %d too large to encode in a packed sequence", delta)
	}

	shifted := (delta << 3) | uint64(totalBytes-1)
	start := len(s.data)
	for i := 0; i < totalBytes; i++ {
		s.data = append(s.data, byte(shifted>>(8*uint(i))))
	}

	s.lastAppend = v
	s.length++
	if bytesAdded != nil {
		*bytesAdded += len(s.data) - start
	}
	return nil
}

// AppendValue is Append without memory-growth tracking.
func (s *PackedUintSeq) AppendValue(v uint64) error {
	return s.Append(v, nil)
}

// Len returns the number of integers stored.
func (s *PackedUintSeq) Len() int { return s.length }

// SizeBytes returns the number of bytes occupied by the encoded sequence.
func (s *PackedUintSeq) SizeBytes() int { return len(s.data) }

// Restore decodes the full sequence back into a slice, in append order.
func (s *PackedUintSeq) Restore() []uint64 {
	out := make([]uint64, 0, s.length)
	it := s.Iterator()
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Iterator returns a fresh, restart-free forward iterator over the
// sequence. The sequence must not be mutated while an iterator is in use.
func (s *PackedUintSeq) Iterator() *PackedUintSeqIterator {
	return &PackedUintSeqIterator{parent: s}
}

// PackedUintSeqIterator walks a PackedUintSeq once, forward only.
type PackedUintSeqIterator struct {
	parent    *PackedUintSeq
	offset    int
	prevValue uint64
	seen      int
}

// Next yields the next integer in the sequence, or false when exhausted.
func (it *PackedUintSeqIterator) Next() (uint64, bool) {
	if it.seen >= it.parent.length {
		return 0, false
	}

	data := it.parent.data
	first := data[it.offset]
	totalBytes := int(first&0x7) + 1

	var shifted uint64
	for i := 0; i < totalBytes; i++ {
		shifted |= uint64(data[it.offset+i]) << (8 * uint(i))
	}
	delta := shifted >> 3
	value := it.prevValue + delta

	it.offset += totalBytes
	it.prevValue = value
	it.seen++
	return value, true
}
