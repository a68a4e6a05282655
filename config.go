package simnet

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// RuleActionDesc is the serializable description of one MatchRuleAction: an
// output port, tag, weight, optional flow-count sampling rate and
// preferential-drop mark. It exists as a separate type from
// MatchRuleAction because the action's runtime fields (rng, counters,
// parent back-pointer) have no business being described in a config file.
type RuleActionDesc struct {
	OutputPort       uint32 `json:"outputport" yaml:"outputport"`
	Tag              uint32 `json:"tag" yaml:"tag"`
	Weight           uint32 `json:"weight" yaml:"weight"`
	FlowCounterN     uint64 `json:"flowcountern,omitempty" yaml:"flowcountern,omitempty"`
	PreferentialDrop bool   `json:"preferentialdrop,omitempty" yaml:"preferentialdrop,omitempty"`
}

// ToAction builds a fresh MatchRuleAction from its description.
func (d RuleActionDesc) ToAction() *MatchRuleAction {
	a := NewMatchRuleAction(d.OutputPort, d.Tag, d.Weight)
	if d.FlowCounterN != 0 {
		a.EnableFlowCounter(d.FlowCounterN)
	}
	a.SetPreferentialDrop(d.PreferentialDrop)
	return a
}

// RuleDesc is the serializable description of one MatchRule: its key and
// the list of actions it installs.
type RuleDesc struct {
	InputPort uint32           `json:"inputport" yaml:"inputport"`
	Tag       uint32           `json:"tag" yaml:"tag"`
	Tuples    []FiveTuple      `json:"tuples" yaml:"tuples"`
	Actions   []RuleActionDesc `json:"actions" yaml:"actions"`
}

// ToRule builds a fresh MatchRule from its description. A description with
// no actions builds a delete-only rule, matching Matcher.AddRule's
// convention.
func (d RuleDesc) ToRule() *MatchRule {
	rule := NewMatchRule(NewMatchRuleKey(d.InputPort, d.Tag, d.Tuples))
	for _, ad := range d.Actions {
		rule.AddAction(ad.ToAction())
	}
	return rule
}

// RuleSetDesc is the top-level serializable ruleset for one device,
// following the teacher's {ListName, contents} shape used for timing
// tables and routing descriptions alike.
type RuleSetDesc struct {
	ListName string     `json:"listname" yaml:"listname"`
	DeviceID string     `json:"deviceid" yaml:"deviceid"`
	Rules    []RuleDesc `json:"rules" yaml:"rules"`
}

// CreateRuleSetDesc is an initialization constructor.
func CreateRuleSetDesc(listName, deviceID string) *RuleSetDesc {
	return &RuleSetDesc{ListName: listName, DeviceID: deviceID}
}

// AddRule appends a rule description to the set.
func (rs *RuleSetDesc) AddRule(d RuleDesc) {
	rs.Rules = append(rs.Rules, d)
}

// Install installs every described rule into dev's matcher.
func (rs *RuleSetDesc) Install(dev *Device) {
	for _, rd := range rs.Rules {
		dev.Matcher().AddRule(rd.ToRule())
	}
}

// WriteToFile serializes the ruleset to filename, choosing YAML or JSON by
// its extension, mirroring DevExecList.WriteToFile.
func (rs *RuleSetDesc) WriteToFile(filename string) error {
	var bytes []byte
	var err error

	switch path.Ext(filename) {
	case ".yaml", ".yml", ".YAML":
		bytes, err = yaml.Marshal(*rs)
	default:
		bytes, err = json.MarshalIndent(*rs, "", "\t")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadRuleSetDesc deserializes a RuleSetDesc from dict, or from the named
// file if dict is empty, exactly as ReadDevExecList does for timing tables.
func ReadRuleSetDesc(filename string, useYAML bool, dict []byte) (*RuleSetDesc, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	rs := RuleSetDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &rs)
	} else {
		err = json.Unmarshal(dict, &rs)
	}
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

// LinkDesc describes one AddLink call for a topology file.
type LinkDesc struct {
	SrcID       string `json:"srcid" yaml:"srcid"`
	SrcPort     uint32 `json:"srcport" yaml:"srcport"`
	SrcInternal bool   `json:"srcinternal" yaml:"srcinternal"`
	DstID       string `json:"dstid" yaml:"dstid"`
	DstPort     uint32 `json:"dstport" yaml:"dstport"`
	DstInternal bool   `json:"dstinternal" yaml:"dstinternal"`
}

// DeviceDesc describes one device to create within a topology.
type DeviceDesc struct {
	ID               string `json:"id" yaml:"id"`
	IP               uint32 `json:"ip" yaml:"ip"`
	DieOnFailToMatch bool   `json:"dieonfailtomatch" yaml:"dieonfailtomatch"`
}

// TopoDesc is the top-level serializable description of a network: its
// devices and the links between them, following the same
// {ListName, contents} shape as the teacher's topology and timing files.
type TopoDesc struct {
	ListName   string       `json:"listname" yaml:"listname"`
	RetxPeriod float64      `json:"retxperiod" yaml:"retxperiod"`
	Devices    []DeviceDesc `json:"devices" yaml:"devices"`
	Links      []LinkDesc   `json:"links" yaml:"links"`
}

// Build constructs a Network from the description: every device is created
// first, then every link, so link order in the file never matters.
func (td *TopoDesc) Build() *Network {
	net := NewNetwork(td.ListName, td.RetxPeriod)
	for _, dd := range td.Devices {
		dev := NewDevice(dd.ID, dd.IP)
		dev.SetDieOnFailToMatch(dd.DieOnFailToMatch)
		net.AddDevice(dev)
	}
	for _, ld := range td.Links {
		net.AddLink(ld.SrcID, ld.SrcPort, ld.SrcInternal, ld.DstID, ld.DstPort, ld.DstInternal)
	}
	return net
}

// ReadTopoDesc deserializes a TopoDesc from dict, or from the named file if
// dict is empty.
func ReadTopoDesc(filename string, useYAML bool, dict []byte) (*TopoDesc, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	td := TopoDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &td)
	} else {
		err = json.Unmarshal(dict, &td)
	}
	if err != nil {
		return nil, err
	}
	return &td, nil
}
