package pipeline

import "fmt"

type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProbing    State = "probing"
	StateVersioning State = "versioning"
	StateDone       State = "done"
	StateAborted    State = "aborted"

	StatePending          State = "pending"
	StatePlanning         State = "planning"
	StateRendering        State = "rendering"
	StatePublishing       State = "publishing"
	StateNotifying        State = "notifying"
	StateVersionSucceeded State = "version_succeeded"
	StateVersionFailed    State = "version_failed"
	StateVersionSkipped   State = "version_skipped"
)

var transitions = map[State][]State{
	StateIdle:       {StateFetching, StateAborted},
	StateFetching:   {StateProbing, StateAborted},
	StateProbing:    {StateVersioning, StateAborted},
	StateVersioning: {StateDone},

	StatePending:    {StatePlanning, StateVersionSkipped, StateVersionFailed},
	StatePlanning:   {StateRendering, StateVersionFailed},
	StateRendering:  {StatePublishing, StateVersionFailed},
	StatePublishing: {StateNotifying, StateVersionSucceeded, StateVersionFailed},
	StateNotifying:  {StateVersionSucceeded, StateVersionFailed},
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s State) bool {
	switch s {
	case StateDone, StateAborted, StateVersionSucceeded, StateVersionFailed, StateVersionSkipped:
		return true
	default:
		return false
	}
}

// machine tracks one state and rejects transitions outside the table.
type machine struct {
	state State
}

func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("disallowed transition: %s -> %s", m.state, next)
}

// fail moves to the failure state for the current level without consulting
// the table, so a failure can always be recorded.
func (m *machine) fail(failed State) {
	m.state = failed
}
