package session

import (
	"fmt"
	"strings"
)

type State uint

const (
	StateIdle = State(iota)
	StateStarting
	StateRecording
	StateStopping
	StateStopped
	StateFailed
	EndOfState
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("unexpected_state_%d", uint(s))
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *State) UnmarshalJSON(b []byte) error {
	if s == nil {
		return fmt.Errorf("State is nil")
	}
	str := strings.ToLower(strings.Trim(string(b), `"`))
	for cmp := StateIdle; cmp < EndOfState; cmp++ {
		if cmp.String() == str {
			*s = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the State: '%s'", str)
}

// IsActive reports whether the state occupies the single active-session slot.
func (s State) IsActive() bool {
	switch s {
	case StateStarting, StateRecording, StateStopping:
		return true
	}
	return false
}

func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// canTransitionTo lists the edges of the session state machine.
func (s State) canTransitionTo(next State) bool {
	switch s {
	case StateIdle:
		return next == StateStarting
	case StateStarting:
		return next == StateRecording || next == StateFailed
	case StateRecording:
		return next == StateStopping
	case StateStopping:
		return next == StateStopped
	}
	return false
}
