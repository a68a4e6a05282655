package simnet

import "fmt"

// Connection is the minimal interface the device needs from whatever
// endpoint owns a flow's receive- or send-side state. Per §1, the
// TCP/UDP state machines themselves (retransmission, congestion control,
// reassembly) are out of scope; this core only ever calls HandlePacket.
type Connection interface {
	HandlePacket(pkt Packet)
}

// endpointBase carries the fields every sink/source needs: an identifying
// label (used in panic and trace output), the five-tuple it was created
// for, and the loopback port it uses to hand packets back into the owning
// device for local delivery.
type endpointBase struct {
	id       string
	tuple    FiveTuple
	loopback *Port
}

// UDPSink is the simplest receive-side endpoint for a UDP flow: it accepts
// packets with no reassembly or acknowledgement of any kind.
type UDPSink struct {
	endpointBase
	received []Packet
}

// NewUDPSink constructs a UDP sink for tuple, delivering into loopback.
func NewUDPSink(id string, tuple FiveTuple, loopback *Port) *UDPSink {
	return &UDPSink{endpointBase: endpointBase{id: id, tuple: tuple, loopback: loopback}}
}

func (s *UDPSink) HandlePacket(pkt Packet) {
	s.received = append(s.received, pkt)
}

// Received returns every packet the sink has accepted, in arrival order.
func (s *UDPSink) Received() []Packet { return s.received }

// TCPSink is the receive-side endpoint for a TCP flow. Retransmission and
// reordering are explicitly out of scope; it records arrivals the same way
// UDPSink does, with its own type so Device can tell the two apart in
// traces and so a fuller TCP receiver could later be substituted without
// changing Device's contract.
type TCPSink struct {
	endpointBase
	received []Packet
}

func NewTCPSink(id string, tuple FiveTuple, loopback *Port) *TCPSink {
	return &TCPSink{endpointBase: endpointBase{id: id, tuple: tuple, loopback: loopback}}
}

func (s *TCPSink) HandlePacket(pkt Packet) {
	s.received = append(s.received, pkt)
}

func (s *TCPSink) Received() []Packet { return s.received }

// UDPSource is the simplest send-side endpoint for a UDP flow.
type UDPSource struct {
	endpointBase
}

func NewUDPSource(id string, tuple FiveTuple, loopback *Port) *UDPSource {
	return &UDPSource{endpointBase: endpointBase{id: id, tuple: tuple, loopback: loopback}}
}

// HandlePacket on a source handles packets routed back to it (e.g. an
// ICMP-style signal); a bare UDP source otherwise has nothing to do with
// arriving traffic.
func (s *UDPSource) HandlePacket(pkt Packet) {}

// Send emits a data packet of sz bytes over the source's tuple, re-entering
// the owning device's forwarding path at GeneratorPortNum -- the reserved,
// concrete ingress port for locally-originated traffic -- so the packet is
// classified by the matcher exactly like any other arrival (the loopback
// port itself cannot be used for this: it shares the wildcard sentinel
// value, which MatchOrNil refuses as an input port).
func (s *UDPSource) Send(sz uint32) {
	s.loopback.device.FindOrCreatePort(GeneratorPortNum).HandlePacket(NewDataPacket(s.tuple, sz))
}

// TCPSourceConfig configures a TCPSource. It exists so a fuller TCP state
// machine can be swapped in later without changing the Device/Network call
// sites that build one; this minimal source does not interpret any of it
// beyond recording the requested initial window for inspection in tests.
type TCPSourceConfig struct {
	InitialWindow uint32
}

// TCPSource is the send-side endpoint for a TCP flow. It does not register
// itself with the network's retransmit timer, and neither does
// Device.AddTCPGenerator; registration is a separate
// Network.RegisterTCPSourceWithRetxTimer call. It implements no
// retransmission itself: Scan is a no-op hook.
type TCPSource struct {
	endpointBase
	Config TCPSourceConfig
}

func NewTCPSource(id string, tuple FiveTuple, cfg TCPSourceConfig, loopback *Port) *TCPSource {
	return &TCPSource{endpointBase: endpointBase{id: id, tuple: tuple, loopback: loopback}, Config: cfg}
}

func (s *TCPSource) HandlePacket(pkt Packet) {}

// Send emits a data packet of sz bytes, as UDPSource.Send does.
func (s *TCPSource) Send(sz uint32) {
	s.loopback.device.FindOrCreatePort(GeneratorPortNum).HandlePacket(NewDataPacket(s.tuple, sz))
}

// Scan is called by the network's RetransmitTimer on every scan tick. It
// is a no-op here; retransmission logic belongs to whatever fuller TCP
// implementation replaces this minimal source.
func (s *TCPSource) Scan() {}

// newConnectionForProto instantiates the sink appropriate for ipProto. Any
// other protocol is a programmer error: the device has no sink to offer it.
func newConnectionForProto(ipProto uint8, id string, tuple FiveTuple, loopback *Port) Connection {
	switch ipProto {
	case ProtoUDP:
		return NewUDPSink(id, tuple, loopback)
	case ProtoTCP:
		return NewTCPSink(id, tuple, loopback)
	default:
		panic(fmt.Errorf("simnet: don't know how to create a connection for IP proto %d", ipProto))
	}
}
