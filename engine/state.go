package engine

// State is the phase of one run.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateAwaitingWorkers
	StateMerging
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingWorkers:
		return "awaiting_workers"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
