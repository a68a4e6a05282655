package simnet

// Packet is the interface the forwarding plane requires of whatever
// transport-layer packet type rides over it. The core is opaque to payload
// content; it only ever reads or mutates the fields declared here. Ownership
// of a Packet is unique and is transferred at every hop -- once handed to a
// Port or a Connection, the caller must not touch it again.
type Packet interface {
	// FiveTuple returns the packet's flow identifier.
	FiveTuple() FiveTuple

	// SizeBytes returns the packet size. A size of zero marks the packet as
	// an SSCP control message (see sscp.go), per the on-wire convention
	// required for interop with existing traces.
	SizeBytes() uint32

	// DecrementTTL reduces the hop count by one and reports whether the
	// packet may still be forwarded (false means the TTL has expired).
	DecrementTTL() bool

	// Tag returns the packet's current tag.
	Tag() uint32

	// SetTag rewrites the packet's tag.
	SetTag(tag uint32)

	// PreferentialDrop reports whether the packet is marked for
	// preferential dropping under congestion.
	PreferentialDrop() bool

	// SetPreferentialDrop marks the packet for preferential dropping.
	SetPreferentialDrop(v bool)
}

// BasePacket is an embeddable implementation of the mutable packet fields
// that DataPacket and the SSCP control message types build on.
type BasePacket struct {
	Tuple    FiveTuple
	TTL      int
	tag      uint32
	prefDrop bool
}

func (p *BasePacket) FiveTuple() FiveTuple { return p.Tuple }

func (p *BasePacket) DecrementTTL() bool {
	p.TTL--
	return p.TTL > 0
}

func (p *BasePacket) Tag() uint32 { return p.tag }

func (p *BasePacket) SetTag(tag uint32) { p.tag = tag }

func (p *BasePacket) PreferentialDrop() bool { return p.prefDrop }

func (p *BasePacket) SetPreferentialDrop(v bool) { p.prefDrop = v }

// DefaultTTL mirrors the conventional IP default used when a generator does
// not specify one.
const DefaultTTL = 64

// DataPacket is an ordinary data-carrying packet: a five-tuple, byte size,
// and the mutable fields every packet carries.
type DataPacket struct {
	BasePacket
	Bytes uint32
}

// NewDataPacket builds a DataPacket with DefaultTTL and zero tag.
func NewDataPacket(tuple FiveTuple, sizeBytes uint32) *DataPacket {
	return &DataPacket{
		BasePacket: BasePacket{Tuple: tuple, TTL: DefaultTTL},
		Bytes:      sizeBytes,
	}
}

func (p *DataPacket) SizeBytes() uint32 { return p.Bytes }
