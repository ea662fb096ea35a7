package plugin

import "fmt"

// State is the load state of a discovered plugin.
type State int

const (
	StateDiscovered State = iota
	StateLoaded
	StateFailed
	StateUnloaded
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateDiscovered; st <= StateUnloaded; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown plugin state %q", text)
}

// canTransition reports whether from -> to is a valid descriptor move:
// discovered -> loaded|failed at startup, loaded -> unloaded at shutdown.
func (s State) canTransition(to State) bool {
	switch s {
	case StateDiscovered:
		return to == StateLoaded || to == StateFailed
	case StateLoaded:
		return to == StateUnloaded
	default:
		return false
	}
}

// Descriptor tracks one discoverable plugin unit.
type Descriptor struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	State     State  `json:"state"`
	LastError string `json:"lastError,omitempty"`
}

// transition moves the descriptor to the given state, recording err as the
// last error when non-nil. Invalid transitions leave it unchanged.
func (d *Descriptor) transition(to State, err error) error {
	if !d.State.canTransition(to) {
		return fmt.Errorf("plugin %s: invalid state transition %s -> %s", d.Name, d.State, to)
	}
	d.State = to
	if err != nil {
		d.LastError = err.Error()
	}
	return nil
}
