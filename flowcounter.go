package simnet

import (
	"hash/fnv"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/stat"
)

// flowCounterPrecision is the number of bits used to select a HyperLogLog
// register; 2^flowCounterPrecision registers are kept. 10 bits (1024
// registers) keeps the standard error around 3% without costing much
// memory, appropriate for an estimator meant to run per-action inside a
// hot packet-processing path.
const flowCounterPrecision = 10

const flowCounterRegisters = 1 << flowCounterPrecision

// FlowCounter estimates the number of distinct five-tuples presented to it
// via a HyperLogLog sketch. Per §4.8, the exact estimator is not
// prescribed; this one is O(1) per insertion and scales its estimate by n
// (the inverse of the sampling probability the owning action applied) to
// approximate the full-population distinct-flow count.
type FlowCounter struct {
	n         uint64
	registers []uint8
}

// NewFlowCounter builds an estimator that will scale its raw estimate by n.
func NewFlowCounter(n uint64) *FlowCounter {
	return &FlowCounter{
		n:         n,
		registers: make([]uint8, flowCounterRegisters),
	}
}

// NewPacket presents a five-tuple to the estimator. Called once per
// admitted (sampled) packet.
func (c *FlowCounter) NewPacket(tuple FiveTuple) {
	h := fnvHash(tuple)
	idx := h >> (64 - flowCounterPrecision)
	rest := h<<flowCounterPrecision | (1 << (flowCounterPrecision - 1))
	rank := uint8(bits.LeadingZeros64(rest) + 1)
	if rank > c.registers[idx] {
		c.registers[idx] = rank
	}
}

// fnvHash hashes a five-tuple independently of FiveTuple.hash, so that the
// weighted-selection hash and the distinct-flow estimator do not share
// collision structure.
func fnvHash(tuple FiveTuple) uint64 {
	h := fnv.New64a()
	var buf [13]byte
	buf[0] = byte(tuple.IPSrc)
	buf[1] = byte(tuple.IPSrc >> 8)
	buf[2] = byte(tuple.IPSrc >> 16)
	buf[3] = byte(tuple.IPSrc >> 24)
	buf[4] = byte(tuple.IPDst)
	buf[5] = byte(tuple.IPDst >> 8)
	buf[6] = byte(tuple.IPDst >> 16)
	buf[7] = byte(tuple.IPDst >> 24)
	buf[8] = tuple.IPProto
	buf[9] = byte(tuple.SrcPort)
	buf[10] = byte(tuple.SrcPort >> 8)
	buf[11] = byte(tuple.DstPort)
	buf[12] = byte(tuple.DstPort >> 8)
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

// EstimateCount returns the estimated number of distinct five-tuples seen
// by the full (unsampled) population, i.e. the raw HyperLogLog estimate
// scaled by n.
func (c *FlowCounter) EstimateCount() uint64 {
	m := float64(flowCounterRegisters)

	// The canonical HLL estimator is alpha * m^2 / harmonic-sum(2^-M[j]).
	// gonum/stat.HarmonicMean computes n / sum(1/x_i) in closed form, so
	// harmonic-sum(2^-M[j]) == m / HarmonicMean(2^M[j]).
	weights := make([]float64, len(c.registers))
	x := make([]float64, len(c.registers))
	zeros := 0
	for i, r := range c.registers {
		x[i] = math.Pow(2, float64(r))
		weights[i] = 1
		if r == 0 {
			zeros++
		}
	}

	hMean := stat.HarmonicMean(x, weights)
	harmonicSum := m / hMean

	alpha := 0.7213 / (1 + 1.079/m)
	raw := alpha * m * m / harmonicSum

	// small-range correction (linear counting) when many registers are
	// still at zero.
	if raw <= 2.5*m && zeros > 0 {
		raw = m * math.Log(m/float64(zeros))
	}

	return uint64(raw * float64(c.n))
}
