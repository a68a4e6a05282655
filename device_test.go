package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceForwardsTransitPacketAndRewritesTag(t *testing.T) {
	dev := NewDevice("router", 100)
	in := dev.FindOrCreatePort(1)
	out := dev.FindOrCreatePort(2)

	sink := &capturingHandler{}
	out.Connect(sink)

	tup := FiveTuple{IPSrc: 5, IPDst: 6, IPProto: ProtoTCP, SrcPort: 10, DstPort: 20}
	rule := NewMatchRule(NewMatchRuleKey(1, 0, []FiveTuple{tup}))
	rule.AddAction(NewMatchRuleAction(2, 99, 1))
	dev.Matcher().AddRule(rule)

	pkt := NewDataPacket(tup, 128)
	in.HandlePacket(pkt)

	require.Len(t, sink.received, 1)
	assert.Equal(t, uint32(99), sink.received[0].Tag())
	assert.Equal(t, uint64(1), dev.PacketsSeen())
}

func TestDeviceNullTagActionLeavesExistingTagUntouched(t *testing.T) {
	dev := NewDevice("router", 100)
	in := dev.FindOrCreatePort(1)
	out := dev.FindOrCreatePort(2)

	sink := &capturingHandler{}
	out.Connect(sink)

	tup := FiveTuple{IPSrc: 5, IPDst: 6, IPProto: ProtoTCP, SrcPort: 10, DstPort: 20}
	rule := NewMatchRule(NewMatchRuleKey(1, 0, []FiveTuple{tup}))
	rule.AddAction(NewMatchRuleAction(2, NullPacketTag, 1))
	dev.Matcher().AddRule(rule)

	pkt := NewDataPacket(tup, 128)
	pkt.SetTag(42)
	in.HandlePacket(pkt)

	require.Len(t, sink.received, 1)
	assert.Equal(t, uint32(42), sink.received[0].Tag(), "a null-tag action must not rewrite the packet's existing tag")
}

func TestDeviceFailToMatchDropsByDefault(t *testing.T) {
	dev := NewDevice("router", 100)
	in := dev.FindOrCreatePort(1)

	in.HandlePacket(NewDataPacket(FiveTuple{IPSrc: 1, IPDst: 2, IPProto: ProtoUDP, SrcPort: 1, DstPort: 2}, 10))
	assert.Equal(t, uint64(1), dev.PacketsFailedToMatch())
}

func TestDeviceFailToMatchPanicsWhenConfigured(t *testing.T) {
	dev := NewDevice("router", 100)
	dev.SetDieOnFailToMatch(true)
	in := dev.FindOrCreatePort(1)

	assert.Panics(t, func() {
		in.HandlePacket(NewDataPacket(FiveTuple{IPSrc: 1, IPDst: 2, IPProto: ProtoUDP, SrcPort: 1, DstPort: 2}, 10))
	})
}

func TestDeviceLocalDeliveryAutoCreatesSink(t *testing.T) {
	dev := NewDevice("host", 0x0a000005) // 10.0.0.5
	in := dev.FindOrCreatePort(1)
	tup := FiveTuple{IPSrc: 0x0a000006, IPDst: 0x0a000005, IPProto: ProtoTCP, SrcPort: 1234, DstPort: 80}

	in.HandlePacket(NewDataPacket(tup, 40))

	// the sink is keyed by the reversed tuple (10.0.0.5:80, 10.0.0.6:1234,
	// TCP): this device's own view of the flow, not the sender's.
	key := tup.Reverse()
	conn, ok := dev.connections[key]
	require.True(t, ok)
	sink, ok := conn.(*TCPSink)
	require.True(t, ok)
	assert.Len(t, sink.Received(), 1)
	assert.Equal(t, uint64(1), dev.PacketsForLocalhost())

	in.HandlePacket(NewDataPacket(tup, 40))
	reusedConn, ok := dev.connections[key]
	require.True(t, ok)
	assert.Same(t, conn, reusedConn, "a second packet on the same five-tuple must reuse the existing sink")
	assert.Len(t, sink.Received(), 2)
	assert.Equal(t, uint64(2), dev.PacketsForLocalhost())
}

func TestDeviceSSCPAddOrUpdateSilentWithoutTxID(t *testing.T) {
	dev := NewDevice("router", 100)
	in := dev.FindOrCreatePort(1)

	rule := NewMatchRule(NewMatchRuleKey(1, 0, []FiveTuple{tuple(1)}))
	rule.AddAction(NewMatchRuleAction(2, 0, 1))
	msg := NewSSCPAddOrUpdate(1, 100, rule, NoTxID)

	in.HandlePacket(msg)
	assert.Equal(t, 1, dev.Matcher().RuleCount())
}

func TestDeviceSSCPAddOrUpdateAcksWhenTxIDSet(t *testing.T) {
	dev := NewDevice("router", 100)
	replies := &capturingHandler{}
	dev.SetRepliesHandler(replies)
	in := dev.FindOrCreatePort(1)

	rule := NewMatchRule(NewMatchRuleKey(1, 0, []FiveTuple{tuple(1)}))
	rule.AddAction(NewMatchRuleAction(2, 0, 1))
	msg := NewSSCPAddOrUpdate(1, 100, rule, 42)

	in.HandlePacket(msg)

	require.Len(t, replies.received, 1)
	ack, ok := replies.received[0].(*SSCPAckMsg)
	require.True(t, ok)
	assert.Equal(t, uint64(42), ack.TxID)
}

func TestDeviceSSCPAddOrUpdateWithTxIDAndNoRepliesHandlerPanics(t *testing.T) {
	dev := NewDevice("router", 100)
	in := dev.FindOrCreatePort(1)
	rule := NewMatchRule(NewMatchRuleKey(1, 0, []FiveTuple{tuple(1)}))
	rule.AddAction(NewMatchRuleAction(2, 0, 1))
	msg := NewSSCPAddOrUpdate(1, 100, rule, 42)
	assert.Panics(t, func() { in.HandlePacket(msg) })
}

func TestDeviceSSCPStatsRequestWithoutRepliesHandlerPanics(t *testing.T) {
	dev := NewDevice("router", 100)
	in := dev.FindOrCreatePort(1)
	assert.Panics(t, func() { in.HandlePacket(NewSSCPStatsRequest(1, 100, false)) })
}

func TestDeviceSSCPStatsRequestRepliesWithSnapshot(t *testing.T) {
	dev := NewDevice("router", 100)
	replies := &capturingHandler{}
	dev.SetRepliesHandler(replies)
	in := dev.FindOrCreatePort(1)

	rule := NewMatchRule(NewMatchRuleKey(1, 0, []FiveTuple{tuple(1)}))
	rule.AddAction(NewMatchRuleAction(2, 0, 1))
	dev.Matcher().AddRule(rule)
	dev.Matcher().MatchOrNil(NewDataPacket(tuple(1), 10), 1)

	in.HandlePacket(NewSSCPStatsRequest(1, 100, false))

	require.Len(t, replies.received, 1)
	reply, ok := replies.received[0].(*SSCPStatsReply)
	require.True(t, ok)
	assert.Len(t, reply.Entries(), 1)
}

// capturingHandler satisfies OutgoingHandler, Connection and RepliesHandler,
// recording every packet it's given for later assertion.
type capturingHandler struct {
	received []Packet
}

func (h *capturingHandler) HandlePacket(pkt Packet) {
	h.received = append(h.received, pkt)
}
