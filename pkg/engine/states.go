package engine

import (
	"fmt"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
)

// Transition is an action that can change an execution's status.
type Transition string

const (
	TransitionAdvance  Transition = "advance"
	TransitionComplete Transition = "complete"
	TransitionTransfer Transition = "transfer"
	TransitionFail     Transition = "fail"
)

type statusTransitionKey struct {
	status     models.ExecutionStatus
	transition Transition
}

// StatusMachine enforces the execution lifecycle:
//
//	initiated ──advance──► in_progress ◄──advance──┐
//	    │                      │  └────────────────┘
//	    └──────────┬───────────┘
//	               ├──complete──► completed
//	               ├──transfer──► transfered
//	               └──fail──────► failed
//
// Terminal statuses accept no transition.
type StatusMachine struct {
	transitions map[statusTransitionKey]models.ExecutionStatus
}

func NewStatusMachine() *StatusMachine {
	sm := &StatusMachine{transitions: make(map[statusTransitionKey]models.ExecutionStatus)}

	for _, from := range models.ActiveExecutionStatuses {
		sm.add(from, TransitionAdvance, models.ExecutionStatusInProgress)
		sm.add(from, TransitionComplete, models.ExecutionStatusCompleted)
		sm.add(from, TransitionTransfer, models.ExecutionStatusTransfered)
		sm.add(from, TransitionFail, models.ExecutionStatusFailed)
	}

	return sm
}

func (sm *StatusMachine) add(from models.ExecutionStatus, via Transition, to models.ExecutionStatus) {
	sm.transitions[statusTransitionKey{status: from, transition: via}] = to
}

// Next returns the status reached from current through the transition.
func (sm *StatusMachine) Next(current models.ExecutionStatus, via Transition) (models.ExecutionStatus, error) {
	next, ok := sm.transitions[statusTransitionKey{status: current, transition: via}]
	if !ok {
		if current.IsTerminal() {
			return current, ErrExecutionTerminal
		}

		return current, fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, via, current)
	}

	return next, nil
}

// CanTransition checks a transition without performing it.
func (sm *StatusMachine) CanTransition(current models.ExecutionStatus, via Transition) bool {
	_, ok := sm.transitions[statusTransitionKey{status: current, transition: via}]

	return ok
}
