package simnet

import "fmt"

// OutgoingHandler is whatever a Port hands a packet to once the device has
// decided to forward it -- typically a Queue at the near end of a
// pipe/queue link (out of scope here; modeled only by this interface).
type OutgoingHandler interface {
	HandlePacket(pkt Packet)
}

// Port is a named attach point owned by its device. It holds a single
// non-owning outgoing handler, bound once by Connect and only replaceable
// via an explicit Reconnect. The Internal flag controls observer routing
// in Device.handlePacketWithAction.
type Port struct {
	Number       uint32
	device       *Device
	outHandler   OutgoingHandler
	Internal     bool
}

// newPort constructs a port owned by device. Ports are never constructed
// directly by callers outside Device.
func newPort(number uint32, device *Device) *Port {
	return &Port{Number: number, device: device}
}

// HandlePacket forwards an arriving packet to the parent device's ingress
// path.
func (p *Port) HandlePacket(pkt Packet) {
	p.device.handlePacketFromPort(p, pkt)
}

// SendPacketOut invokes the bound outgoing handler.
func (p *Port) SendPacketOut(pkt Packet) {
	p.outHandler.HandlePacket(pkt)
}

// Connect binds the outgoing handler. Calling Connect twice with a
// different handler is a programmer error. Calling it twice with the same
// handler is a harmless no-op.
func (p *Port) Connect(h OutgoingHandler) {
	if h == p.outHandler {
		return
	}
	if p.outHandler != nil {
		panic(fmt.Errorf("simnet: tried to connect port %d twice on %s", p.Number, p.device.ID()))
	}
	p.outHandler = h
}

// Reconnect replaces an existing outgoing handler. Calling it on a port
// that was never connected is a programmer error.
func (p *Port) Reconnect(h OutgoingHandler) {
	if p.outHandler == nil {
		panic(fmt.Errorf("simnet: tried to reconnect an unconnected port %d on %s", p.Number, p.device.ID()))
	}
	p.outHandler = h
}
