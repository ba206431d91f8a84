package hub

import (
	"fmt"
	"time"
)

// StreamState is the broadcast lifecycle:
//
//	Idle -> Starting -> Live -> Ended -> Idle
//
// The hub passes through Ended in the same step that tells viewers the
// stream stopped, so Ended is never observed from outside.
type StreamState int

const (
	StateIdle StreamState = iota
	StateStarting
	StateLive
	StateEnded
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateLive:
		return "live"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type streamEvent int

const (
	eventStart streamEvent = iota
	eventGoLive
	eventEnd
	eventReset
)

func (e streamEvent) String() string {
	switch e {
	case eventStart:
		return "start"
	case eventGoLive:
		return "go_live"
	case eventEnd:
		return "end"
	case eventReset:
		return "reset"
	default:
		return fmt.Sprintf("streamEvent(%d)", int(e))
	}
}

// transition is the only place stream state changes are decided.
func transition(from StreamState, ev streamEvent) (StreamState, bool) {
	switch ev {
	case eventStart:
		if from == StateIdle || from == StateEnded {
			return StateStarting, true
		}
	case eventGoLive:
		if from == StateStarting {
			return StateLive, true
		}
	case eventEnd:
		if from == StateStarting || from == StateLive {
			return StateEnded, true
		}
	case eventReset:
		if from == StateEnded {
			return StateIdle, true
		}
	}
	return from, false
}

type streamState struct {
	state StreamState
	title string
	since time.Time
	// epoch increments on every start so a stale live timer can tell it has
	// been superseded.
	epoch uint64
}

func (s *streamState) streaming() bool {
	return s.state == StateStarting || s.state == StateLive
}

func (s *streamState) fire(ev streamEvent, now time.Time) bool {
	next, ok := transition(s.state, ev)
	if !ok {
		return false
	}
	s.state = next
	s.since = now
	if ev == eventStart {
		s.epoch++
	}
	return true
}
