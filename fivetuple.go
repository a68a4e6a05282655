package simnet

import "fmt"

// Wildcard sentinels. Each field of a FiveTuple (and the input port and
// tag fields carried alongside it in a MatchRuleKey) has one reserved value
// meaning "match any". Device port numbers use the maximum representable
// value, which doubles as the loopback port identifier.
const (
	WildIPAddress        uint32 = 0
	WildIPProto          uint8  = 0
	WildAccessLayerPort  uint16 = 0
	WildPacketTag        uint32 = 0
	WildDevicePortNumber uint32 = ^uint32(0)
)

// LoopbackPortNum is the distinguished port every device uses to identify
// locally-produced packets and to address local sinks/sources. It is
// numerically identical to the wildcard device port number, so it can never
// itself be used as a matcher input port (MatchOrNil rejects the wildcard
// sentinel by construction).
const LoopbackPortNum = WildDevicePortNumber

// NullPacketTag marks a MatchRuleAction whose tag performs no rewrite: the
// packet keeps whatever tag it already carries. It is distinct from
// WildPacketTag, which wildcards the tag field of a MatchRuleKey's own
// match criteria -- a different field with a different "matches anything"
// meaning than "rewrites to nothing".
const NullPacketTag uint32 = ^uint32(0)

// GeneratorPortNum is the concrete, reserved port number a device uses as
// the matcher input port for packets a locally-attached source re-injects
// into the forwarding path. It is distinct from LoopbackPortNum precisely
// so generator traffic can be classified by the matcher like any other
// ingress packet; NextAvailablePort never hands it out.
const GeneratorPortNum uint32 = 0

// IP protocol numbers relevant to endpoint auto-creation. Other values are
// accepted in FiveTuple fields but only these two may appear as a data
// packet's protocol when Device.handleLocalPacket needs to instantiate a sink.
const (
	ProtoUDP uint8 = 17
	ProtoTCP uint8 = 6
)

// FiveTuple is the immutable flow identifier used throughout the forwarding
// plane: source/destination IP, IP protocol, source/destination port. Any
// field may carry its wildcard sentinel.
type FiveTuple struct {
	IPSrc   uint32
	IPDst   uint32
	IPProto uint8
	SrcPort uint16
	DstPort uint16
}

// hash combines the five fields into a single value used by weighted
// action selection (MatchRule.chooseOrNil); the flow counter uses its own
// fnvHash instead. The specific mixing function is not prescribed by the
// wire format, but it must be stable across a run so that identical tuples
// always choose the same action.
func (t FiveTuple) hash() uint64 {
	h := uint64(14695981039346656037) // FNV-1a offset basis
	mix := func(v uint64) {
		h ^= v
		h *= 1099511628211 // FNV-1a prime
	}
	mix(uint64(t.IPSrc))
	mix(uint64(t.IPDst))
	mix(uint64(t.IPProto))
	mix(uint64(t.SrcPort))
	mix(uint64(t.DstPort))
	// Multiplication only carries low bits upward, so fold the high bits
	// back down; chooseOrNil takes the hash modulo a small total weight.
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// Reverse swaps source and destination fields, used to look up the
// connection handling the return direction of a flow.
func (t FiveTuple) Reverse() FiveTuple {
	return FiveTuple{
		IPSrc:   t.IPDst,
		IPDst:   t.IPSrc,
		IPProto: t.IPProto,
		SrcPort: t.DstPort,
		DstPort: t.SrcPort,
	}
}

// String renders the tuple for trace output and panic messages.
func (t FiveTuple) String() string {
	return fmt.Sprintf("%d:%d->%d:%d/%d", t.IPSrc, t.SrcPort, t.IPDst, t.DstPort, t.IPProto)
}

// matchesWild reports whether value matches field, honoring field's
// wildcard sentinel.
func matchesWild[T comparable](field, value, wild T) bool {
	return field == wild || field == value
}
