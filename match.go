package simnet

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/iti/rngstream"
)

// MatchRuleKey is the immutable triple a rule is installed under: the
// input port it applies to, the packet tag it applies to, and the set of
// five-tuples (each possibly wildcarded in any field) it matches. Two keys
// are equal iff all three components match; the tuple set is canonicalized
// on construction so that set comparison reduces to slice comparison.
type MatchRuleKey struct {
	InputPort uint32
	Tag       uint32
	Tuples    []FiveTuple
}

// NewMatchRuleKey canonicalizes tuples (sorted, for a stable comparison and
// stable iteration order in the Matcher's rule map) and returns the key.
func NewMatchRuleKey(inputPort, tag uint32, tuples []FiveTuple) MatchRuleKey {
	sorted := append([]FiveTuple(nil), tuples...)
	sort.Slice(sorted, func(i, j int) bool { return tupleLess(sorted[i], sorted[j]) })
	return MatchRuleKey{InputPort: inputPort, Tag: tag, Tuples: sorted}
}

func tupleLess(a, b FiveTuple) bool {
	if a.IPSrc != b.IPSrc {
		return a.IPSrc < b.IPSrc
	}
	if a.IPDst != b.IPDst {
		return a.IPDst < b.IPDst
	}
	if a.IPProto != b.IPProto {
		return a.IPProto < b.IPProto
	}
	if a.SrcPort != b.SrcPort {
		return a.SrcPort < b.SrcPort
	}
	return a.DstPort < b.DstPort
}

// Equal reports whether k and other have identical input port, tag and
// tuple set.
func (k MatchRuleKey) Equal(other MatchRuleKey) bool {
	if k.InputPort != other.InputPort || k.Tag != other.Tag {
		return false
	}
	if len(k.Tuples) != len(other.Tuples) {
		return false
	}
	for i := range k.Tuples {
		if k.Tuples[i] != other.Tuples[i] {
			return false
		}
	}
	return true
}

// mapKey renders a MatchRuleKey into a comparable Go value suitable for use
// as a map key, preserving the canonical tuple ordering NewMatchRuleKey
// establishes.
func (k MatchRuleKey) mapKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|", k.InputPort, k.Tag)
	for _, t := range k.Tuples {
		fmt.Fprintf(&b, "%d.%d.%d.%d.%d;", t.IPSrc, t.IPDst, t.IPProto, t.SrcPort, t.DstPort)
	}
	return b.String()
}

func (k MatchRuleKey) String() string {
	parts := make([]string, len(k.Tuples))
	for i, t := range k.Tuples {
		parts[i] = t.String()
	}
	return fmt.Sprintf("sp: %d, tag: %d, tuples: [%s]", k.InputPort, k.Tag, strings.Join(parts, ","))
}

// ActionStats is a point-in-time snapshot of a MatchRuleAction's counters,
// the payload carried in an SSCP stats reply.
type ActionStats struct {
	OutputPort        uint32
	Tag               uint32
	TotalPktsMatched  uint64
	TotalBytesMatched uint64
	FlowCount         *uint64 // nil unless flow counting was requested and enabled
}

// MatchRuleAction is one weighted forwarding decision within a MatchRule:
// an output port, an optional tag rewrite, an integer weight used for
// hash-based load splitting, an optional preferential-drop mark, and
// per-action packet/byte counters with an optional probabilistic
// flow-count estimator.
type MatchRuleAction struct {
	parentRule *MatchRule // non-owning back-pointer, set by MatchRule.AddAction

	outputPort uint32
	tag        uint32
	weight     uint32
	prefDrop   bool

	totalPkts  uint64
	totalBytes uint64

	sampleProb  float64
	flowCounter *FlowCounter
	rng         *rngstream.RngStream
}

// NewMatchRuleAction constructs an action with no flow counter and
// preferential-drop unset. weight must be >= 1.
func NewMatchRuleAction(outputPort, tag uint32, weight uint32) *MatchRuleAction {
	if weight < 1 {
		panic(fmt.Errorf("simnet: match rule action weight must be >= 1, got %d", weight))
	}
	return &MatchRuleAction{
		outputPort: outputPort,
		tag:        tag,
		weight:     weight,
		rng:        rngstream.New(fmt.Sprintf("action-%d-%d", outputPort, weight)),
	}
}

// EnableFlowCounter attaches a flow counter to the action and sets the
// sample probability to 1/n: roughly one in every n matched packets is fed
// to the estimator, which later scales its estimate by n.
func (a *MatchRuleAction) EnableFlowCounter(n uint64) {
	if n == 0 {
		panic(fmt.Errorf("simnet: EnableFlowCounter requires n != 0"))
	}
	a.sampleProb = 1.0 / float64(n)
	a.flowCounter = NewFlowCounter(n)
}

// Clone duplicates port/tag/weight/preferential-drop and, if the source had
// a flow counter, attaches a fresh one at the same rate. Stats never clone.
func (a *MatchRuleAction) Clone() *MatchRuleAction {
	clone := NewMatchRuleAction(a.outputPort, a.tag, a.weight)
	clone.prefDrop = a.prefDrop
	if a.flowCounter != nil {
		clone.EnableFlowCounter(a.flowCounter.n)
	}
	return clone
}

func (a *MatchRuleAction) OutputPort() uint32         { return a.outputPort }
func (a *MatchRuleAction) Tag() uint32                { return a.tag }
func (a *MatchRuleAction) Weight() uint32             { return a.weight }
func (a *MatchRuleAction) PreferentialDrop() bool     { return a.prefDrop }
func (a *MatchRuleAction) SetPreferentialDrop(v bool) { a.prefDrop = v }

// FractionOfTraffic returns weight / parent.totalWeight. Panics if no
// parent rule has been set (the action has not yet been added to a rule).
func (a *MatchRuleAction) FractionOfTraffic() float64 {
	if a.parentRule == nil {
		panic(fmt.Errorf("simnet: FractionOfTraffic called before action has a parent rule"))
	}
	return float64(a.weight) / float64(a.parentRule.totalWeight)
}

// UpdateStats records that packet matched this action: increments the
// packet and byte counters (asserting they remain monotone), and if sample
// probability is non-zero, draws a uniform random value and on success
// feeds the packet's five-tuple to the flow counter.
func (a *MatchRuleAction) UpdateStats(pkt Packet) {
	prevBytes := a.totalBytes
	a.totalBytes += uint64(pkt.SizeBytes())
	a.totalPkts++
	if a.totalBytes < prevBytes {
		panic(fmt.Errorf("simnet: byte counter overflow on action %d/%d", a.outputPort, a.tag))
	}

	if a.sampleProb != 0 && a.flowCounter != nil {
		if a.rng.RandU01() <= a.sampleProb {
			a.flowCounter.NewPacket(pkt.FiveTuple())
		}
	}
}

// Stats returns a snapshot of the action's counters. If includeFlowCount is
// true and a flow counter is attached, the estimate is computed and
// included.
func (a *MatchRuleAction) Stats(includeFlowCount bool) ActionStats {
	stats := ActionStats{
		OutputPort:        a.outputPort,
		Tag:               a.tag,
		TotalPktsMatched:  a.totalPkts,
		TotalBytesMatched: a.totalBytes,
	}
	if includeFlowCount && a.flowCounter != nil {
		est := a.flowCounter.EstimateCount()
		stats.FlowCount = &est
	}
	return stats
}

// MergeStats adds another snapshot's packet/byte counters into this
// action's running totals, asserting the result remains monotone.
func (a *MatchRuleAction) MergeStats(stats ActionStats) {
	prevBytes := a.totalBytes
	prevPkts := a.totalPkts
	a.totalBytes += stats.TotalBytesMatched
	a.totalPkts += stats.TotalPktsMatched
	if a.totalBytes < prevBytes || a.totalPkts < prevPkts {
		panic(fmt.Errorf("simnet: MergeStats would make counters non-monotone"))
	}
}

// MatchRule owns its key and an ordered sequence of actions. No two actions
// may share the same (output port, tag) pair. The sum of action weights is
// cached and recomputed on every mutation.
type MatchRule struct {
	key           MatchRuleKey
	actions       []*MatchRuleAction
	totalWeight   uint64
	parentMatcher *Matcher // non-owning; set once by Matcher.AddRule
}

// NewMatchRule constructs a rule with no actions and no parent matcher.
func NewMatchRule(key MatchRuleKey) *MatchRule {
	return &MatchRule{key: key}
}

func (r *MatchRule) Key() MatchRuleKey { return r.key }

// Actions returns the rule's actions in insertion order.
func (r *MatchRule) Actions() []*MatchRuleAction {
	out := make([]*MatchRuleAction, len(r.actions))
	copy(out, r.actions)
	return out
}

// setParentMatcher is called exactly once, when the rule is installed.
func (r *MatchRule) setParentMatcher(m *Matcher) {
	if r.parentMatcher != nil {
		panic(fmt.Errorf("simnet: rule %s already has a parent matcher", r.key))
	}
	r.parentMatcher = m
}

// AddAction appends action to the rule, setting its parent back-pointer,
// and recomputes the cached total weight. Installing two actions with the
// same (output port, tag) pair is a programmer error and is fatal.
func (r *MatchRule) AddAction(action *MatchRuleAction) {
	action.parentRule = r
	if slices.ContainsFunc(r.actions, func(existing *MatchRuleAction) bool {
		return existing.outputPort == action.outputPort && existing.tag == action.tag
	}) {
		loc := "UNKNOWN"
		if r.parentMatcher != nil {
			loc = r.parentMatcher.id
		}
		panic(fmt.Errorf("simnet: duplicate output port %d and tag %d at %s",
			action.outputPort, action.tag, loc))
	}

	r.actions = append(r.actions, action)
	var total uint64
	for _, a := range r.actions {
		total += uint64(a.weight)
	}
	r.totalWeight = total
}

// Choose selects an action for pkt using its five-tuple hash and the
// actions' weights, and updates the chosen action's stats. Returns nil if
// the rule has no actions.
func (r *MatchRule) Choose(pkt Packet) *MatchRuleAction {
	action := r.chooseOrNil(pkt.FiveTuple())
	if action != nil {
		action.UpdateStats(pkt)
	}
	return action
}

// chooseOrNil implements the consistent hash-based weighted selection
// described in §4.2: with a single action it is always chosen; otherwise
// the five-tuple hash modulo the total weight selects a position, and the
// first action whose cumulative weight exceeds that position wins. Ties
// are broken by insertion order, which must be preserved across clones so
// that repeated lookups of the same tuple are reproducible.
func (r *MatchRule) chooseOrNil(tuple FiveTuple) *MatchRuleAction {
	if len(r.actions) == 1 {
		return r.actions[0]
	}
	if r.totalWeight == 0 {
		return nil
	}

	h := tuple.hash() % r.totalWeight
	for _, action := range r.actions {
		w := uint64(action.weight)
		if h < w {
			return action
		}
		h -= w
	}
	panic(fmt.Errorf("simnet: weighted selection fell through for rule %s", r.key))
}

// ExplicitChooseOrDie selects action i directly, bypassing the hash, for
// diagnostic use. It updates stats as Choose does.
func (r *MatchRule) ExplicitChooseOrDie(pkt Packet, i int) *MatchRuleAction {
	if i < 0 || i >= len(r.actions) {
		panic(fmt.Errorf("simnet: action index %d out of range for rule %s", i, r.key))
	}
	action := r.actions[i]
	action.UpdateStats(pkt)
	return action
}

// Stats returns a snapshot of every action's stats, in action order.
func (r *MatchRule) Stats(includeFlowCount bool) []ActionStats {
	out := make([]ActionStats, len(r.actions))
	for i, a := range r.actions {
		out[i] = a.Stats(includeFlowCount)
	}
	return out
}

// MergeStats folds another rule's per-action stats into this rule's,
// matching actions by (output port, tag).
func (r *MatchRule) MergeStats(other *MatchRule) {
	for _, action := range r.actions {
		for _, otherAction := range other.actions {
			if action.tag == otherAction.tag && action.outputPort == otherAction.outputPort {
				action.MergeStats(otherAction.Stats(false))
			}
		}
	}
}

// Clone returns a deep copy of the rule (fresh stats, fresh flow counters),
// used when duplicating a rule for testing or for building a delta update.
func (r *MatchRule) Clone() *MatchRule {
	clone := NewMatchRule(r.key)
	for _, action := range r.actions {
		clone.AddAction(action.Clone())
	}
	return clone
}

func (r *MatchRule) String() string {
	parts := make([]string, len(r.actions))
	for i, a := range r.actions {
		parts[i] = fmt.Sprintf("(out: %d, tag: %d, w: %d)", a.outputPort, a.tag, a.weight)
	}
	out := fmt.Sprintf("%s -> [%s]", r.key, strings.Join(parts, ","))
	if r.parentMatcher != nil {
		out += " at " + r.parentMatcher.id
	}
	return out
}
