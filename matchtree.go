package simnet

// matchTree is the multi-dimensional wildcard lookup structure backing the
// Matcher (§4.3). A packet's identity for lookup purposes is 7 independent
// fields, queried in the order chosen to maximize early pruning for
// typical SDN rule sets (most selective first): input port, tag,
// destination IP, source IP, protocol, source port, destination port.
//
// The tree has a fixed depth of 7, one level per field. Each node holds a
// map keyed by concrete field value plus a single child reached via the
// field's wildcard sentinel. Lookup tries the concrete child first at every
// level, falling back to the wildcard child if the concrete child is
// absent or its recursive descent found nothing -- so a rule concrete at
// level k and wildcard at level k+1 beats a rule wildcard at level k and
// concrete at level k+1, independently at each level.
type matchTree struct {
	root *matchNode
}

type matchNode struct {
	children map[uint32]*matchNode
	wild     *matchNode
	rule     *MatchRule // only meaningful at a leaf (depth 7)
}

func newMatchTree() *matchTree {
	return &matchTree{root: &matchNode{}}
}

func newMatchNode() *matchNode {
	return &matchNode{children: make(map[uint32]*matchNode)}
}

// fieldKeys returns the 7 level keys and their wildcard sentinels, in
// lookup order, for the given tuple/input-port/tag triple.
func fieldKeys(tuple FiveTuple, inputPort, tag uint32) ([7]uint32, [7]uint32) {
	keys := [7]uint32{
		inputPort,
		tag,
		tuple.IPDst,
		tuple.IPSrc,
		uint32(tuple.IPProto),
		uint32(tuple.SrcPort),
		uint32(tuple.DstPort),
	}
	wilds := [7]uint32{
		WildDevicePortNumber,
		WildPacketTag,
		WildIPAddress,
		WildIPAddress,
		uint32(WildIPProto),
		uint32(WildAccessLayerPort),
		uint32(WildAccessLayerPort),
	}
	return keys, wilds
}

// insert walks the 7-level path for tuple/inputPort/tag, creating nodes on
// demand, and places rule at the leaf (overwriting whatever was there).
func (t *matchTree) insert(tuple FiveTuple, inputPort, tag uint32, rule *MatchRule) {
	keys, wilds := fieldKeys(tuple, inputPort, tag)

	node := t.root
	for level := 0; level < 7; level++ {
		key := keys[level]
		wild := wilds[level]

		if node.children == nil {
			node.children = make(map[uint32]*matchNode)
		}

		if key == wild {
			if node.wild == nil {
				node.wild = newMatchNode()
			}
			node = node.wild
			continue
		}

		child, ok := node.children[key]
		if !ok {
			child = newMatchNode()
			node.children[key] = child
		}
		node = child
	}
	node.rule = rule
}

// lookup finds the most specific rule matching tuple/inputPort/tag,
// preferring concrete matches over wildcard matches at each level
// independently, per the invariant in §4.3.
func (t *matchTree) lookup(tuple FiveTuple, inputPort, tag uint32) *MatchRule {
	keys, _ := fieldKeys(tuple, inputPort, tag)
	return t.lookupFrom(t.root, keys, 0)
}

func (t *matchTree) lookupFrom(node *matchNode, keys [7]uint32, level int) *MatchRule {
	if node == nil {
		return nil
	}
	if level == 7 {
		return node.rule
	}

	if child, ok := node.children[keys[level]]; ok {
		if rule := t.lookupFrom(child, keys, level+1); rule != nil {
			return rule
		}
	}
	return t.lookupFrom(node.wild, keys, level+1)
}

// clearPath removes the leaf reference to rule for one tuple. Because a
// rule may have been installed at several five-tuples within its key, the
// caller (Matcher) calls it for each of the rule's own tuples rather than
// scanning the whole tree; each call handles exactly one path, pruning the
// leaf entry without pruning now-empty intermediate nodes (they are
// harmless dead weight the next insert may reuse).
func (t *matchTree) clearPath(tuple FiveTuple, inputPort, tag uint32, rule *MatchRule) {
	keys, wilds := fieldKeys(tuple, inputPort, tag)
	node := t.root
	for level := 0; level < 7; level++ {
		key := keys[level]
		wild := wilds[level]

		var next *matchNode
		if key == wild {
			next = node.wild
		} else if node.children != nil {
			next = node.children[key]
		}
		if next == nil {
			return
		}
		node = next
	}
	if node.rule == rule {
		node.rule = nil
	}
}
