package quiesce

// State is a detector state.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateSampled
	StateStable
	StateForcedFinalize
	StateAbandoned
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateWaiting:        "waiting",
	StateSampled:        "sampled",
	StateStable:         "stable",
	StateForcedFinalize: "forced_finalize",
	StateAbandoned:      "abandoned",
	StateCancelled:      "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateStable, StateForcedFinalize, StateAbandoned, StateCancelled:
		return true
	}
	return false
}
