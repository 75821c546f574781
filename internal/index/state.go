package index

import (
	"fmt"

	pxerrors "github.com/pxtools/pxindex/internal/errors"
)

// State is a step of building one index file.
type State int

const (
	StateInit State = iota
	StateSchemaBuilt
	StateFileCreated
	StateSecondaryPopulated
	StatePrimaryDelegated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSchemaBuilt:
		return "schema-built"
	case StateFileCreated:
		return "file-created"
	case StateSecondaryPopulated:
		return "secondary-populated"
	case StatePrimaryDelegated:
		return "primary-delegated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateInit:               {StateSchemaBuilt},
	StateSchemaBuilt:        {StateFileCreated},
	StateFileCreated:        {StateSecondaryPopulated, StatePrimaryDelegated, StateClosed},
	StateSecondaryPopulated: {StateClosed},
	StatePrimaryDelegated:   {StateClosed},
}

// stateMachine records the path a build takes and rejects illegal steps.
// FileCreated may go straight to Closed when population fails.
type stateMachine struct {
	current State
	history []State
}

func (m *stateMachine) advance(to State) error {
	for _, next := range transitions[m.current] {
		if next == to {
			m.current = to
			m.history = append(m.history, to)
			return nil
		}
	}
	return pxerrors.NewInternalError(fmt.Sprintf("illegal build transition %s -> %s", m.current, to), nil)
}
