package simnet

import (
	"fmt"
	"sort"
)

// Matcher owns the full ruleset for one device: a key -> rule map (for
// deterministic iteration, in key order) and the match tree lookup index.
// Rules enter and leave atomically from the simulator's point of view --
// AddRule installs the new rule's tree entries first (overwriting the
// prior rule's leaves for the same key) and then clears whatever leaves
// still point at the prior rule; a delete only clears. No intermediate
// state is observable between the two.
type Matcher struct {
	id    string
	rules map[string]*MatchRule
	tree  *matchTree
}

// NewMatcher constructs an empty matcher identified by id (used in panic
// messages and rule ToString output).
func NewMatcher(id string) *Matcher {
	return &Matcher{
		id:    id,
		rules: make(map[string]*MatchRule),
		tree:  newMatchTree(),
	}
}

func (m *Matcher) ID() string { return m.id }

// AddRule installs rule, replacing whatever rule previously had the same
// key. A rule with no actions is interpreted as a delete: any existing
// rule under the same key is removed from both the map and the tree, and
// no new rule is installed. Deleting a key with no existing rule is a
// no-op.
func (m *Matcher) AddRule(rule *MatchRule) {
	key := rule.Key()
	mapKey := key.mapKey()
	deleteOnly := len(rule.actions) == 0

	rule.setParentMatcher(m)

	if !deleteOnly {
		for _, tuple := range key.Tuples {
			m.tree.insert(tuple, key.InputPort, key.Tag, rule)
		}
	}

	prior, hadPrior := m.rules[mapKey]
	if hadPrior {
		for _, tuple := range prior.key.Tuples {
			m.tree.clearPath(tuple, prior.key.InputPort, prior.key.Tag, prior)
		}
	}

	if deleteOnly {
		delete(m.rules, mapKey)
		return
	}
	m.rules[mapKey] = rule
}

// MatchOrNil performs a tree lookup for pkt arriving on inputPort. It is a
// programmer error to call this with the wildcard input port.
func (m *Matcher) MatchOrNil(pkt Packet, inputPort uint32) *MatchRule {
	if inputPort == WildDevicePortNumber {
		panic(fmt.Errorf("simnet: bad input port in MatchOrNil at %s", m.id))
	}
	return m.tree.lookup(pkt.FiveTuple(), inputPort, pkt.Tag())
}

// RuleCount returns the number of installed rules, for diagnostics.
func (m *Matcher) RuleCount() int { return len(m.rules) }

// PopulateStats snapshots every owned rule's per-action stats, in key
// order, honoring includeFlowCounts.
func (m *Matcher) PopulateStats(includeFlowCounts bool, reply *SSCPStatsReply) {
	keys := make([]string, 0, len(m.rules))
	for k := range m.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		rule := m.rules[k]
		reply.AddStats(rule.key, rule.Stats(includeFlowCounts))
	}
}
