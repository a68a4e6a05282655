package simnet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowCounterEstimatesDistinctFlows(t *testing.T) {
	const distinctFlows = 5000
	const n = 1 // no sub-sampling, so the estimate should track the true count directly

	fc := NewFlowCounter(n)
	for i := 0; i < distinctFlows; i++ {
		tuple := FiveTuple{IPSrc: uint32(i), IPDst: 1, IPProto: ProtoUDP, SrcPort: uint16(i % 65536), DstPort: 80}
		fc.NewPacket(tuple)
	}

	est := fc.EstimateCount()
	errRatio := math.Abs(float64(est)-distinctFlows) / distinctFlows
	assert.Lessf(t, errRatio, 0.1, "HLL estimate %d should be within 10%% of the true count %d", est, distinctFlows)
}

func TestFlowCounterRepeatsDoNotInflateEstimate(t *testing.T) {
	fc := NewFlowCounter(1)
	tuple := FiveTuple{IPSrc: 1, IPDst: 2, IPProto: ProtoTCP, SrcPort: 10, DstPort: 20}
	for i := 0; i < 1000; i++ {
		fc.NewPacket(tuple)
	}
	assert.LessOrEqual(t, fc.EstimateCount(), uint64(2), "seeing the same five-tuple repeatedly should not inflate the distinct count")
}

func TestFlowCounterScalesBySamplingRate(t *testing.T) {
	const n = 10
	fc := NewFlowCounter(n)
	for i := 0; i < 200; i++ {
		tuple := FiveTuple{IPSrc: uint32(i), IPDst: 9, IPProto: ProtoUDP, SrcPort: uint16(i), DstPort: 53}
		fc.NewPacket(tuple)
	}
	// with n=10, the estimator assumes only 1/10 of the population was
	// sampled, so its estimate should land near 10x the number of distinct
	// tuples actually admitted.
	est := fc.EstimateCount()
	assert.Greater(t, est, uint64(200*5))
}

func TestFnvHashIndependentOfFiveTupleHash(t *testing.T) {
	tuple := FiveTuple{IPSrc: 7, IPDst: 8, IPProto: ProtoTCP, SrcPort: 1, DstPort: 2}
	h1 := fnvHash(tuple)
	h2 := tuple.hash()
	assert.NotEqual(t, h1, h2, "flow estimator hash and action-selection hash must not be the same mixing function")
}
