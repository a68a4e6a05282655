package simnet

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Network owns a set of devices by id and the single RetransmitTimer shared
// by every TCP source created within it, mirroring the teacher's pattern of
// one scheduling resource shared across every device in a network rather
// than one per device.
type Network struct {
	id      string
	devices map[string]*Device
	retx    *RetransmitTimer

	links map[string][]string // device id -> ids of directly connected devices, for CheckConnections
}

// NewNetwork constructs an empty network identified by id, with its
// retransmit timer scanning every retxPeriod seconds.
func NewNetwork(id string, retxPeriod float64) *Network {
	return &Network{
		id:      id,
		devices: make(map[string]*Device),
		retx:    NewRetransmitTimer(retxPeriod),
		links:   make(map[string][]string),
	}
}

// AddDevice registers dev under its own id. Registering two devices with
// the same id is a programmer error.
func (n *Network) AddDevice(dev *Device) {
	if _, ok := n.devices[dev.ID()]; ok {
		panic(fmt.Errorf("simnet: device id %s already registered on network %s", dev.ID(), n.id))
	}
	n.devices[dev.ID()] = dev
}

// Device looks up a registered device by id, returning nil if absent.
func (n *Network) Device(id string) *Device { return n.devices[id] }

// AddLink connects an output port on src to an input port on dst by
// binding src's port's outgoing handler directly to dst's port -- the
// queue/pipe transport in between is out of scope here and is represented
// as a zero-latency pass-through. internalOnSrc and internalOnDst mark
// each endpoint's port as internal or external for observer routing
// purposes. Linking a device to itself is a programmer error.
func (n *Network) AddLink(srcID string, srcPort uint32, internalOnSrc bool, dstID string, dstPort uint32, internalOnDst bool) {
	if srcID == dstID {
		panic(fmt.Errorf("simnet: AddLink requires distinct devices, got %s twice", srcID))
	}
	src, ok := n.devices[srcID]
	if !ok {
		panic(fmt.Errorf("simnet: AddLink: unknown device %s", srcID))
	}
	dst, ok := n.devices[dstID]
	if !ok {
		panic(fmt.Errorf("simnet: AddLink: unknown device %s", dstID))
	}

	srcP := src.FindOrCreatePort(srcPort)
	dstP := dst.FindOrCreatePort(dstPort)
	srcP.Internal = internalOnSrc
	dstP.Internal = internalOnDst

	srcP.Connect(dstP)

	n.links[srcID] = append(n.links[srcID], dstID)
}

// RegisterTCPSourceWithRetxTimer registers src with the network's shared
// retransmit timer.
func (n *Network) RegisterTCPSourceWithRetxTimer(src *TCPSource) {
	n.retx.RegisterTCPSource(src)
}

// StartRetransmitTimer begins the network's retransmit scanning.
func (n *Network) StartRetransmitTimer(evtMgr *evtm.EventManager) {
	n.retx.Start(evtMgr)
}

// CheckConnections is a diagnostic, not a fatal check: it reports every
// device that cannot reach every other device through the links AddLink
// has recorded, using a Dijkstra shortest-path tree exactly as the
// teacher's route-discovery code does, but asking only reachability
// rather than path identity. A clean network returns an empty slice.
func (n *Network) CheckConnections() []string {
	ids := make([]string, 0, len(n.devices))
	for id := range n.devices {
		ids = append(ids, id)
	}

	nodes := make(map[string]simple.Node, len(ids))
	idx := int64(0)
	for _, id := range ids {
		nodes[id] = simple.Node(idx)
		idx++
	}

	g := simple.NewUndirectedGraph()
	for _, id := range ids {
		g.AddNode(nodes[id])
	}
	for srcID, dstIDs := range n.links {
		for _, dstID := range dstIDs {
			g.SetEdge(g.NewEdge(nodes[srcID], nodes[dstID]))
		}
	}

	var unreachable []string
	for _, rootID := range ids {
		tree := path.DijkstraFrom(nodes[rootID], g)
		for _, id := range ids {
			if id == rootID {
				continue
			}
			if seq, _ := tree.To(nodes[id].ID()); len(seq) == 0 {
				unreachable = append(unreachable, fmt.Sprintf("%s cannot reach %s", rootID, id))
			}
		}
	}
	return unreachable
}
