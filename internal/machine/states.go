package machine

// ActiveState is the controller's operating mode as reported by Grbl.
type ActiveState int

const (
	StateUndefined ActiveState = iota
	StateIdle
	StateRun
	StateJog
	StateHold
	StateCheck
	StateHome
)

func (s ActiveState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRun:
		return "Run"
	case StateJog:
		return "Jog"
	case StateHold:
		return "Hold"
	case StateCheck:
		return "Check"
	case StateHome:
		return "Home"
	default:
		return "Undefined"
	}
}

// MarshalText renders the state word in JSON ("Idle").
func (s ActiveState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ActiveState) UnmarshalText(text []byte) error {
	*s = ParseActiveState(string(text))
	return nil
}

// ParseActiveState maps a Grbl state word to ActiveState.
// Grbl reports sub-states as "Hold:0"; only the word before the colon counts.
func ParseActiveState(s string) ActiveState {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			s = s[:i]
			break
		}
	}

	switch s {
	case "Idle":
		return StateIdle
	case "Run":
		return StateRun
	case "Jog":
		return StateJog
	case "Hold":
		return StateHold
	case "Check":
		return StateCheck
	case "Home":
		return StateHome
	default:
		return StateUndefined
	}
}

// StateSet is an allowed-set of active states for a gated action.
type StateSet uint16

func NewStateSet(states ...ActiveState) StateSet {
	var set StateSet
	for _, s := range states {
		set |= 1 << uint(s)
	}
	return set
}

// Contains reports whether s is in the set.
func (set StateSet) Contains(s ActiveState) bool {
	return set&(1<<uint(s)) != 0
}

// Position holds the axis values in X, Y, Z order. Missing axes shorten it.
type Position []float64

// MachineState is one complete controller status notification.
type MachineState struct {
	ActiveState     ActiveState `json:"active_state"`
	MachinePosition Position    `json:"machine_position"`
	WorkPosition    Position    `json:"work_position"`
	SpindleSpeed    float64     `json:"spindle_speed"`
}

// Clone returns a copy that shares no slices with s.
func (s MachineState) Clone() MachineState {
	c := s
	c.MachinePosition = append(Position(nil), s.MachinePosition...)
	c.WorkPosition = append(Position(nil), s.WorkPosition...)
	return c
}

// Settings maps Grbl setting keys ("$110") to numeric values.
// A Settings value is never mutated after it is installed in a Store.
type Settings map[string]float64

// Lookup returns the value for key and whether it is present.
func (s Settings) Lookup(key string) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

// Transition is emitted when the active state changes.
type Transition struct {
	From ActiveState `json:"from"`
	To   ActiveState `json:"to"`
}
