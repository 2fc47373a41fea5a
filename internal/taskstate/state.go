// Package taskstate defines the task lifecycle states and the fixed
// transition table that gates every status change.
//
// The table is exhaustive: any (from, to) pair absent from it is invalid,
// including self transitions.
//
//	pending     -> in_progress, completed
//	in_progress -> blocked, completed
//	blocked     -> in_progress, completed
//	completed   -> (terminal)
//
// The validator is used in two places: gating local status change
// requests before the transition endpoint is called, and filtering inbound
// task_update events before they mutate the local collection.
package taskstate

import (
	"fmt"
	"slices"

	"github.com/Iron-Ham/taskscope/internal/errors"
)

// State is a task lifecycle state.
type State string

const (
	// Pending indicates the task has not been started.
	Pending State = "pending"

	// InProgress indicates the task is actively being worked on.
	InProgress State = "in_progress"

	// Blocked indicates the task is waiting on something else.
	Blocked State = "blocked"

	// Completed indicates the task is finished. Completed is terminal.
	Completed State = "completed"
)

// transitions is the fixed adjacency list of allowed status changes.
var transitions = map[State][]State{
	Pending:    {InProgress, Completed},
	InProgress: {Blocked, Completed},
	Blocked:    {InProgress, Completed},
	Completed:  {},
}

// States returns every task state in lifecycle order.
func States() []State {
	return []State{Pending, InProgress, Blocked, Completed}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsValid reports whether s is one of the four lifecycle states.
func (s State) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == Completed
}

// ParseState converts a status string into a State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.IsValid() {
		return "", errors.NewValidationError(fmt.Sprintf("%q is not a task state", s)).
			WithField("status").
			WithCause(errors.ErrUnknownState)
	}
	return st, nil
}

// AllowedTransitions returns the states reachable from `from` in one step.
// The returned slice is a copy and may be modified by the caller.
func AllowedTransitions(from State) []State {
	return slices.Clone(transitions[from])
}

// CanTransition reports whether from -> to is listed in the transition table.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// ValidateTransition returns nil if from -> to is allowed and a
// *errors.TransitionError otherwise. Unknown states are always rejected.
func ValidateTransition(from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return errors.NewTransitionError(string(from), string(to))
}

// ValidateTaskTransition is ValidateTransition with the task ID attached to
// the returned error.
func ValidateTaskTransition(taskID string, from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return errors.NewTransitionError(string(from), string(to)).WithTaskID(taskID)
}
