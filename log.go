package simnet

import (
	"encoding/json"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// EventKind distinguishes the record types a LogManager accepts, the way
// TraceRecordType distinguished network from computation-pattern traces.
type EventKind int

const (
	IngressEvent EventKind = iota
	EgressEvent
	RuleInstallEvent
	RuleDeleteEvent
	DropEvent
)

var eventKindToStr = map[EventKind]string{
	IngressEvent:     "ingress",
	EgressEvent:      "egress",
	RuleInstallEvent: "rule-install",
	RuleDeleteEvent:  "rule-delete",
	DropEvent:        "drop",
}

// EventInst is one serialized log record, analogous to TraceInst.
type EventInst struct {
	Time   string `json:"time" yaml:"time"`
	Kind   string `json:"kind" yaml:"kind"`
	Detail string `json:"detail" yaml:"detail"`
}

// LogManager gathers device-level events for post-run analysis, keyed by
// device id the way TraceManager keys by execution id. Testing InUse before
// doing any work lets every call site embed logging calls unconditionally
// without a logging implementation ever slowing down a run that doesn't
// want it.
type LogManager struct {
	InUse   bool                    `json:"inuse" yaml:"inuse"`
	ExpName string                  `json:"expname" yaml:"expname"`
	Events  map[string][]EventInst `json:"events" yaml:"events"`
}

// CreateLogManager is a constructor; active controls whether AddEvent does
// any work.
func CreateLogManager(expName string, active bool) *LogManager {
	return &LogManager{
		InUse:   active,
		ExpName: expName,
		Events:  make(map[string][]EventInst),
	}
}

func (lm *LogManager) Active() bool { return lm.InUse }

// AddEvent records one event for deviceID, doing nothing if the manager is
// inactive.
func (lm *LogManager) AddEvent(vrt vrtime.Time, deviceID string, kind EventKind, detail string) {
	if !lm.InUse {
		return
	}
	inst := EventInst{
		Time:   strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64),
		Kind:   eventKindToStr[kind],
		Detail: detail,
	}
	lm.Events[deviceID] = append(lm.Events[deviceID], inst)
}

// WriteToFile serializes the accumulated log to filename, choosing YAML or
// JSON by extension, as TraceManager.WriteToFile does. It is a no-op
// (returning false) when the manager is inactive.
func (lm *LogManager) WriteToFile(filename string) bool {
	if !lm.InUse {
		return false
	}

	var bytes []byte
	var err error
	switch path.Ext(filename) {
	case ".yaml", ".yml", ".YAML":
		bytes, err = yaml.Marshal(*lm)
	default:
		bytes, err = json.MarshalIndent(*lm, "", "\t")
	}
	if err != nil {
		panic(err)
	}

	if werr := os.WriteFile(filename, bytes, 0o644); werr != nil {
		panic(werr)
	}
	return true
}
