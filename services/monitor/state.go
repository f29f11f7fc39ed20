package monitor

import (
	"time"

	"github.com/customeros/ticketstack/internal/enum"
)

// State is the monitor's mode and its count of consecutive IDLE failures.
// Transitions are pure; the monitor stores the returned value.
type State struct {
	Mode     enum.MonitorMode
	Failures int
}

func NewState() State {
	return State{Mode: enum.MonitorIdle}
}

// OnIdleFailure counts a failed IDLE cycle. Reaching max switches to polling
// for good.
func (s State) OnIdleFailure(max int) State {
	s.Failures++
	if s.Mode == enum.MonitorIdle && s.Failures >= max {
		s.Mode = enum.MonitorPolling
	}
	return s
}

func (s State) OnIdleSuccess() State {
	if s.Mode == enum.MonitorIdle {
		s.Failures = 0
	}
	return s
}

func (s State) OnIdleUnsupported() State {
	s.Mode = enum.MonitorPolling
	return s
}

// IdleBackoff is base doubled per consecutive failure, capped at max.
func IdleBackoff(base, max time.Duration, failures int) time.Duration {
	if failures <= 0 || base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
