package tracker

// State is a tracker lifecycle state.
type State int

const (
	StateLoading State = iota
	StateStabilizing
	StateClean
	StateDirty
	StateSaved
	StateUntracked
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateStabilizing:
		return "stabilizing"
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateSaved:
		return "saved"
	case StateUntracked:
		return "untracked"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}
