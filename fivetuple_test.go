package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiveTupleReverse(t *testing.T) {
	tuple := FiveTuple{IPSrc: 1, IPDst: 2, IPProto: ProtoTCP, SrcPort: 100, DstPort: 200}
	rev := tuple.Reverse()
	assert.Equal(t, tuple.IPSrc, rev.IPDst)
	assert.Equal(t, tuple.IPDst, rev.IPSrc)
	assert.Equal(t, tuple.SrcPort, rev.DstPort)
	assert.Equal(t, tuple.DstPort, rev.SrcPort)
	assert.Equal(t, tuple.IPProto, rev.IPProto)
	assert.Equal(t, tuple, rev.Reverse())
}

func TestFiveTupleHashStable(t *testing.T) {
	tuple := FiveTuple{IPSrc: 10, IPDst: 20, IPProto: ProtoUDP, SrcPort: 5, DstPort: 6}
	h1 := tuple.hash()
	h2 := tuple.hash()
	require.Equal(t, h1, h2)

	other := tuple
	other.SrcPort++
	assert.NotEqual(t, h1, other.hash())
}

func TestMatchesWild(t *testing.T) {
	assert.True(t, matchesWild(WildIPAddress, uint32(9), WildIPAddress), "wildcard field matches anything")
	assert.True(t, matchesWild(uint32(5), uint32(5), uint32(0)), "equal fields match even with a different wildcard")
	assert.False(t, matchesWild(uint32(5), uint32(9), uint32(0)), "unequal, non-wildcard fields do not match")
}
