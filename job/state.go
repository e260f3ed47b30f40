package job

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle            State = "idle"
	StateInitializing    State = "initializing"
	StatePlanning        State = "planning"
	StateProcessingPages State = "processing_pages"
	StateFinalizing      State = "finalizing"
	StateDone            State = "done"
	StateError           State = "error"
	StateTerminated      State = "terminated"
)

// isRunning checks if a state represents an active job.
func isRunning(s State) bool {
	switch s {
	case StateInitializing, StatePlanning, StateProcessingPages, StateFinalizing:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateInitializing
	case StateInitializing:
		return to == StatePlanning || to == StateError || to == StateTerminated
	case StatePlanning:
		return to == StateProcessingPages || to == StateError || to == StateTerminated
	case StateProcessingPages:
		return to == StateFinalizing || to == StateError || to == StateTerminated
	case StateFinalizing:
		return to == StateDone || to == StateError || to == StateTerminated
	case StateDone, StateError, StateTerminated:
		return to == StateInitializing || to == StateIdle
	default:
		return false
	}
}
