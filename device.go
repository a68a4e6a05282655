package simnet

import (
	"fmt"

	"github.com/iti/evt/vrtime"
)

// Observer is notified when a packet crosses between an internal and an
// external port on the same device, in either direction. It never sees
// packets that stay on one side (internal-to-internal or external-to-
// external), matching the two dedicated hooks a Device accepts.
type Observer interface {
	Observe(pkt Packet, in, out *Port)
}

// Device is the forwarding-plane unit of the simulated network: a set of
// ports, one Matcher, a table of endpoints for locally-terminated flows,
// and the counters an operator would read off a real switch or router.
// Every packet a device sees enters through handlePacketFromPort, called
// by a Port's HandlePacket, and never any other way.
type Device struct {
	id string
	ip uint32

	ports map[uint32]*Port

	matcher *Matcher

	connections map[FiveTuple]Connection

	dieOnFailToMatch bool
	repliesHandler   RepliesHandler

	internalExternalObserver Observer
	externalInternalObserver Observer

	logMgr *LogManager
	clock  func() vrtime.Time

	packetsSeen          uint64
	bytesSeen            uint64
	packetsForLocalhost  uint64
	bytesForLocalhost    uint64
	packetsFailedToMatch uint64
	bytesFailedToMatch   uint64
	packetsDroppedTTL    uint64
	bytesDroppedTTL      uint64
}

// NewDevice constructs a device identified by id, addressed at ip, with an
// empty ruleset and no ports.
func NewDevice(id string, ip uint32) *Device {
	return &Device{
		id:          id,
		ip:          ip,
		ports:       make(map[uint32]*Port),
		matcher:     NewMatcher(id),
		connections: make(map[FiveTuple]Connection),
	}
}

func (d *Device) ID() string { return d.id }
func (d *Device) IP() uint32 { return d.ip }

// Matcher returns the device's ruleset, for installing rules directly
// (bypassing the SSCP control path) or for diagnostics.
func (d *Device) Matcher() *Matcher { return d.matcher }

// SetDieOnFailToMatch controls whether a packet that matches no rule is a
// fatal error (true, for a strict deployment) or a silently counted drop
// (false, the value a new device starts with).
func (d *Device) SetDieOnFailToMatch(v bool) { d.dieOnFailToMatch = v }

// SetRepliesHandler designates where SSCP acknowledgements and stats
// replies are delivered.
func (d *Device) SetRepliesHandler(h RepliesHandler) { d.repliesHandler = h }

// SetLogManager attaches lm, and clock as the source of the simulation time
// stamped on every event recorded against this device. Callers driving the
// device from event-manager handlers typically pass evtMgr.CurrentTime as
// clock; a device with no clock set logs against vrtime's zero time.
func (d *Device) SetLogManager(lm *LogManager, clock func() vrtime.Time) {
	d.logMgr = lm
	d.clock = clock
}

func (d *Device) now() vrtime.Time {
	if d.clock == nil {
		return vrtime.Time{}
	}
	return d.clock()
}

// AddInternalExternalObserver installs the hook fired when a packet moves
// from an internal port to an external one.
func (d *Device) AddInternalExternalObserver(o Observer) { d.internalExternalObserver = o }

// AddExternalInternalObserver installs the hook fired when a packet moves
// from an external port to an internal one.
func (d *Device) AddExternalInternalObserver(o Observer) { d.externalInternalObserver = o }

// FindOrCreatePort returns the port numbered number, creating it if this is
// the first reference to it.
func (d *Device) FindOrCreatePort(number uint32) *Port {
	if p, ok := d.ports[number]; ok {
		return p
	}
	p := newPort(number, d)
	d.ports[number] = p
	return p
}

// NextAvailablePort scans upward from 1 for the first port number not yet
// in use and creates it. Port 0 is left free for callers with their own
// numbering convention; LoopbackPortNum is never returned.
func (d *Device) NextAvailablePort() *Port {
	for n := uint32(1); n != LoopbackPortNum; n++ {
		if _, ok := d.ports[n]; !ok {
			return d.FindOrCreatePort(n)
		}
	}
	panic(fmt.Errorf("simnet: device %s has exhausted its port number space", d.id))
}

// handlePacketFromPort is the sole entry point for a packet arriving at the
// device, invoked by Port.HandlePacket. It classifies the packet as local
// (destination IP is this device's) or transit, updating the aggregate
// counters either way.
func (d *Device) handlePacketFromPort(in *Port, pkt Packet) {
	d.packetsSeen++
	d.bytesSeen += uint64(pkt.SizeBytes())
	if d.logMgr != nil {
		d.logMgr.AddEvent(d.now(), d.id, IngressEvent, fmt.Sprintf("port %d: %s", in.Number, pkt.FiveTuple()))
	}

	if pkt.FiveTuple().IPDst == d.ip {
		d.packetsForLocalhost++
		d.bytesForLocalhost += uint64(pkt.SizeBytes())
		d.handleLocalPacket(pkt)
		return
	}

	d.handlePacketWithAction(in, pkt)
}

// handlePacketWithAction runs a transit packet through the matcher, applies
// the chosen action's TTL and tag effects, and forwards it out the chosen
// port, firing whichever cross-boundary observer applies.
func (d *Device) handlePacketWithAction(in *Port, pkt Packet) {
	rule := d.matcher.MatchOrNil(pkt, in.Number)
	if rule == nil {
		d.packetsFailedToMatch++
		d.bytesFailedToMatch += uint64(pkt.SizeBytes())
		if d.dieOnFailToMatch {
			panic(fmt.Errorf("simnet: %s failed to match %s arriving on port %d", d.id, pkt.FiveTuple(), in.Number))
		}
		if d.logMgr != nil {
			d.logMgr.AddEvent(d.now(), d.id, DropEvent, fmt.Sprintf("no match: %s", pkt.FiveTuple()))
		}
		return
	}

	action := rule.Choose(pkt)
	if action == nil {
		panic(fmt.Errorf("simnet: rule %s at %s has no actions to choose from", rule.Key(), d.id))
	}

	if !pkt.DecrementTTL() {
		d.packetsDroppedTTL++
		d.bytesDroppedTTL += uint64(pkt.SizeBytes())
		if d.logMgr != nil {
			d.logMgr.AddEvent(d.now(), d.id, DropEvent, fmt.Sprintf("ttl expired: %s", pkt.FiveTuple()))
		}
		return
	}
	if action.Tag() != NullPacketTag {
		pkt.SetTag(action.Tag())
	}

	out := d.FindOrCreatePort(action.OutputPort())

	if in.Internal && !out.Internal && d.internalExternalObserver != nil {
		d.internalExternalObserver.Observe(pkt, in, out)
	} else if !in.Internal && out.Internal && d.externalInternalObserver != nil {
		d.externalInternalObserver.Observe(pkt, in, out)
	}

	if d.logMgr != nil {
		d.logMgr.AddEvent(d.now(), d.id, EgressEvent, fmt.Sprintf("port %d: %s", out.Number, pkt.FiveTuple()))
	}
	out.SendPacketOut(pkt)
}

// handleLocalPacket dispatches a packet addressed to this device: SSCP
// control messages go through their opcode-specific handling, everything
// else is handed to (or used to lazily create) the connection endpoint
// owning its flow key -- the incoming five-tuple reversed, so the sink ends
// up keyed the same way a locally-created source or sink would be: from
// this device's own point of view, not the sender's.
func (d *Device) handleLocalPacket(pkt Packet) {
	if pkt.SizeBytes() == 0 {
		d.handleControlPacket(pkt)
		return
	}

	tuple := pkt.FiveTuple().Reverse()
	conn, ok := d.connections[tuple]
	if !ok {
		conn = newConnectionForProto(tuple.IPProto, fmt.Sprintf("%s-%s", d.id, tuple), tuple, d.FindOrCreatePort(LoopbackPortNum))
		d.connections[tuple] = conn
	}
	conn.HandlePacket(pkt)
}

// handleControlPacket implements the SSCP opcode rules from §6: an
// add-or-update with no transaction id is applied silently; one with a
// transaction id requires a repliesHandler to acknowledge through, and its
// absence is a fatal configuration error, as is a stats request with no
// repliesHandler to answer through. An ack or stats reply arriving here
// means this device is itself acting as a controller; it is simply handed
// to the repliesHandler, or dropped if none is registered.
func (d *Device) handleControlPacket(pkt Packet) {
	switch msg := pkt.(type) {
	case *SSCPAddOrUpdateMsg:
		if d.logMgr != nil {
			kind := RuleInstallEvent
			if len(msg.Rule.Actions()) == 0 {
				kind = RuleDeleteEvent
			}
			d.logMgr.AddEvent(d.now(), d.id, kind, msg.Rule.Key().String())
		}
		d.matcher.AddRule(msg.Rule)
		if msg.TxID == NoTxID {
			return
		}
		if d.repliesHandler == nil {
			panic(fmt.Errorf("simnet: %s received an acked add-or-update (tx %d) with no repliesHandler", d.id, msg.TxID))
		}
		tuple := msg.FiveTuple()
		d.repliesHandler.HandlePacket(NewSSCPAck(tuple.IPDst, tuple.IPSrc, msg.TxID))

	case *SSCPStatsRequestMsg:
		if d.repliesHandler == nil {
			panic(fmt.Errorf("simnet: %s received a stats request with no repliesHandler", d.id))
		}
		tuple := msg.FiveTuple()
		reply := NewSSCPStatsReply(tuple.IPDst, tuple.IPSrc)
		d.matcher.PopulateStats(msg.IncludeFlowCounts, reply)
		d.repliesHandler.HandlePacket(reply)

	case *SSCPAckMsg, *SSCPStatsReply:
		if d.repliesHandler != nil {
			d.repliesHandler.HandlePacket(pkt)
		}

	default:
		panic(fmt.Errorf("simnet: %s received a zero-size packet of unrecognized type %T", d.id, pkt))
	}
}

// AddUDPGenerator creates a UDP source at the device for tuple, built on
// the device's loopback port; its Send re-enters at GeneratorPortNum.
func (d *Device) AddUDPGenerator(id string, tuple FiveTuple) *UDPSource {
	return NewUDPSource(id, tuple, d.FindOrCreatePort(LoopbackPortNum))
}

// AddTCPGenerator creates a TCP source at the device for tuple. The caller
// is responsible for registering it with a RetransmitTimer if it needs
// periodic scanning.
func (d *Device) AddTCPGenerator(id string, tuple FiveTuple, cfg TCPSourceConfig) *TCPSource {
	return NewTCPSource(id, tuple, cfg, d.FindOrCreatePort(LoopbackPortNum))
}

// PacketsSeen, BytesSeen and the rest below report the device's aggregate
// counters, for tests and for diagnostics that don't warrant a full SSCP
// round trip.
func (d *Device) PacketsSeen() uint64          { return d.packetsSeen }
func (d *Device) BytesSeen() uint64            { return d.bytesSeen }
func (d *Device) PacketsForLocalhost() uint64  { return d.packetsForLocalhost }
func (d *Device) BytesForLocalhost() uint64    { return d.bytesForLocalhost }
func (d *Device) PacketsFailedToMatch() uint64 { return d.packetsFailedToMatch }
func (d *Device) BytesFailedToMatch() uint64   { return d.bytesFailedToMatch }
func (d *Device) PacketsDroppedTTL() uint64    { return d.packetsDroppedTTL }
func (d *Device) BytesDroppedTTL() uint64      { return d.bytesDroppedTTL }
