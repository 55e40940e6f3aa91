package procmetrics

import (
	"fmt"
	"time"
)

// ModeKind names the scheduling model of an observation session
type ModeKind string

const (
	// ModePush sessions run their own loop, sleeping between ticks
	ModePush ModeKind = "push"
	// ModePull sessions register a callback that the metrics reader invokes on its own schedule
	ModePull ModeKind = "pull"
)

// ObservationMode is resolved once when a session is built and never changes afterwards.
type ObservationMode struct {
	kind     ModeKind
	interval time.Duration
}

// Push returns a mode where the session samples the process every interval.
func Push(interval time.Duration) ObservationMode {
	return ObservationMode{kind: ModePush, interval: interval}
}

// Pull returns a mode where the session samples the process each time the metrics are collected.
func Pull() ObservationMode {
	return ObservationMode{kind: ModePull}
}

// Kind of mode: push or pull
func (m ObservationMode) Kind() ModeKind { return m.kind }

// Interval between ticks. Zero in pull mode.
func (m ObservationMode) Interval() time.Duration { return m.interval }

func (m ObservationMode) String() string {
	if m.kind == ModePush {
		return fmt.Sprintf("push(%s)", m.interval)
	}
	return string(m.kind)
}

func (m ObservationMode) validate() error {
	switch m.kind {
	case ModePush:
		if m.interval <= 0 {
			return fmt.Errorf("push mode requires a positive interval. Got: %s", m.interval)
		}
	case ModePull:
	default:
		return fmt.Errorf("invalid observation mode %q. Accepted values are: %s, %s", m.kind, ModePush, ModePull)
	}
	return nil
}
