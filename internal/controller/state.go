package controller

import "fmt"

// State is the lifecycle position of a controller.
type State int

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
	StateRedundant
	StateTerminated // precache failed; never activated
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateInstalling, StateWaiting, StateActive, StateRedundant, StateTerminated} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown controller state %q", text)
}
