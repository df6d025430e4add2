// internal/orchestrator/state.go
package orchestrator

// State is a step of the command pipeline.
type State int32

const (
	StateIdle State = iota
	StateInterpreting
	StateShortCircuitExecuting
	StatePlanning
	StateValidating
	StateConfirming
	StateExecuting
	StateCompleted
	StateFailed
	StateBlocked
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:                  "idle",
	StateInterpreting:          "interpreting",
	StateShortCircuitExecuting: "short_circuit_executing",
	StatePlanning:              "planning",
	StateValidating:            "validating",
	StateConfirming:            "confirming",
	StateExecuting:             "executing",
	StateCompleted:             "completed",
	StateFailed:                "failed",
	StateBlocked:               "blocked",
	StateCancelled:             "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
