package simnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetransmitTimerRegistersScannableSources(t *testing.T) {
	timer := NewRetransmitTimer(1.0)
	dev := NewDevice("host", 1)
	src := dev.AddTCPGenerator("gen", tuple(1), TCPSourceConfig{InitialWindow: 4096})

	var _ scannable = src // TCPSource must satisfy the timer's scan contract

	timer.RegisterTCPSource(src)
	assert.Len(t, timer.sources, 1)
}

func TestRetransmitTimerStopPreventsRunningFlag(t *testing.T) {
	timer := NewRetransmitTimer(1.0)
	assert.False(t, timer.running)
	timer.running = true
	timer.Stop()
	assert.False(t, timer.running)
}
