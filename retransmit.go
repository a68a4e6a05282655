package simnet

import (
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// scannable is whatever a RetransmitTimer drives on every tick. TCPSource
// satisfies it; a fuller TCP implementation would too.
type scannable interface {
	Scan()
}

// RetransmitTimer periodically calls Scan on every registered TCP source,
// rescheduling itself through the event manager the way TaskScheduler's
// timeSliceComplete reschedules the next timeslice: one event handler, one
// self-requeue, no goroutine or wall-clock timer involved.
type RetransmitTimer struct {
	period  float64 // seconds between scans
	sources []scannable
	running bool
}

// NewRetransmitTimer constructs a timer that scans every period seconds.
func NewRetransmitTimer(period float64) *RetransmitTimer {
	return &RetransmitTimer{period: period}
}

// RegisterTCPSource adds src to the set scanned on every tick. Registering
// the same source twice scans it twice per tick; callers are expected to
// register each source exactly once.
func (t *RetransmitTimer) RegisterTCPSource(src *TCPSource) {
	t.sources = append(t.sources, src)
}

// Start schedules the first scan. Calling Start on an already-running timer
// is a no-op.
func (t *RetransmitTimer) Start(evtMgr *evtm.EventManager) {
	if t.running {
		return
	}
	t.running = true
	evtMgr.Schedule(t, nil, retransmitScan, vrtime.SecondsToTime(t.period))
}

// Stop halts further rescheduling; the in-flight scan, if any, still runs.
func (t *RetransmitTimer) Stop() {
	t.running = false
}

// retransmitScan is the event handler driving one tick: it calls Scan on
// every registered source, then reschedules itself if still running.
func retransmitScan(evtMgr *evtm.EventManager, context any, data any) any {
	t := context.(*RetransmitTimer)
	for _, src := range t.sources {
		src.Scan()
	}
	if t.running {
		evtMgr.Schedule(t, nil, retransmitScan, vrtime.SecondsToTime(t.period))
	}
	return nil
}
