package simnet

import "fmt"

// SSCP control message opcodes, carried as the IP-protocol byte of a
// zero-size packet per §6. This piggybacks the control plane on the data
// path using the same on-wire convention as the traces this core must
// interoperate with.
const (
	SSCPAddOrUpdate  uint8 = 1
	SSCPAck          uint8 = 2
	SSCPStatsRequest uint8 = 3
	SSCPStatsReplyOp uint8 = 4
)

// NoTxID marks an SSCPAddOrUpdate message that carries no transaction id
// and therefore expects no acknowledgement.
const NoTxID uint64 = 0

// controlPacket is the BasePacket specialization every SSCP message
// embeds: its SizeBytes is always zero, which is how Device recognizes a
// control message in the data path.
type controlPacket struct {
	BasePacket
	Opcode uint8
}

func (p *controlPacket) SizeBytes() uint32 { return 0 }

// SSCPAddOrUpdateMsg carries a rule to install (or, if Rule has no
// actions, to delete) and an optional transaction id.
type SSCPAddOrUpdateMsg struct {
	controlPacket
	Rule  *MatchRule
	TxID  uint64 // NoTxID if this update expects no acknowledgement
}

// NewSSCPAddOrUpdate builds an add-or-update message addressed from src to
// dst, five-tupled per the convention that only IP src/dst matter for
// control traffic (ports and protocol carry no meaning beyond the opcode).
func NewSSCPAddOrUpdate(ipSrc, ipDst uint32, rule *MatchRule, txID uint64) *SSCPAddOrUpdateMsg {
	return &SSCPAddOrUpdateMsg{
		controlPacket: controlPacket{
			BasePacket: BasePacket{Tuple: FiveTuple{IPSrc: ipSrc, IPDst: ipDst, IPProto: SSCPAddOrUpdate}, TTL: DefaultTTL},
			Opcode:     SSCPAddOrUpdate,
		},
		Rule: rule,
		TxID: txID,
	}
}

// SSCPAckMsg acknowledges an SSCPAddOrUpdateMsg by echoing its TxID.
type SSCPAckMsg struct {
	controlPacket
	TxID uint64
}

func NewSSCPAck(ipSrc, ipDst uint32, txID uint64) *SSCPAckMsg {
	return &SSCPAckMsg{
		controlPacket: controlPacket{
			BasePacket: BasePacket{Tuple: FiveTuple{IPSrc: ipSrc, IPDst: ipDst, IPProto: SSCPAck}, TTL: DefaultTTL},
			Opcode:     SSCPAck,
		},
		TxID: txID,
	}
}

// SSCPStatsRequestMsg asks a device's matcher for a stats snapshot.
type SSCPStatsRequestMsg struct {
	controlPacket
	IncludeFlowCounts bool
}

func NewSSCPStatsRequest(ipSrc, ipDst uint32, includeFlowCounts bool) *SSCPStatsRequestMsg {
	return &SSCPStatsRequestMsg{
		controlPacket: controlPacket{
			BasePacket: BasePacket{Tuple: FiveTuple{IPSrc: ipSrc, IPDst: ipDst, IPProto: SSCPStatsRequest}, TTL: DefaultTTL},
			Opcode:     SSCPStatsRequest,
		},
		IncludeFlowCounts: includeFlowCounts,
	}
}

// ruleKeyStats pairs a rule key with the per-action stats snapshotted for
// it, in the order the Matcher populated them.
type ruleKeyStats struct {
	Key   MatchRuleKey
	Stats []ActionStats
}

// SSCPStatsReply carries a list of (rule key, per-action stats) pairs, in
// the order the remote matcher populated them (its rule key order).
type SSCPStatsReply struct {
	controlPacket
	entries []ruleKeyStats
}

func NewSSCPStatsReply(ipSrc, ipDst uint32) *SSCPStatsReply {
	return &SSCPStatsReply{
		controlPacket: controlPacket{
			BasePacket: BasePacket{Tuple: FiveTuple{IPSrc: ipSrc, IPDst: ipDst, IPProto: SSCPStatsReplyOp}, TTL: DefaultTTL},
			Opcode:     SSCPStatsReplyOp,
		},
	}
}

// AddStats appends one rule's stats to the reply, in the order Matcher
// iterates its owned rules.
func (r *SSCPStatsReply) AddStats(key MatchRuleKey, stats []ActionStats) {
	r.entries = append(r.entries, ruleKeyStats{Key: key, Stats: stats})
}

// Entries returns the accumulated (rule key, stats) pairs.
func (r *SSCPStatsReply) Entries() []ruleKeyStats {
	return r.entries
}

func (r *SSCPStatsReply) String() string {
	return fmt.Sprintf("SSCPStatsReply(%d rules)", len(r.entries))
}

// RepliesHandler is whatever the device hands SSCP acknowledgements and
// stats replies to; typically the control-plane client connected to the
// device's loopback port.
type RepliesHandler interface {
	HandlePacket(pkt Packet)
}
