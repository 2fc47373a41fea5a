// Package task holds the task model and the canonical in-memory task
// collection that realtime updates and confirmed transitions are merged
// into.
package task

import (
	"maps"
	"slices"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// Task is a unit of work as reported by the task service.
type Task struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Type      string          `json:"type"`
	Status    taskstate.State `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Metadata  map[string]any  `json:"metadata"`

	// Assignee is the user or agent responsible for the task, if any.
	Assignee string `json:"assignee,omitempty"`

	// Priority is a free-form priority label such as "high".
	Priority string `json:"priority,omitempty"`

	// BlockedBy lists the IDs of tasks this task is waiting on.
	BlockedBy []string `json:"blocked_by,omitempty"`
}

// Clone returns a deep copy of t. Metadata values are copied shallowly.
func (t Task) Clone() Task {
	cp := t
	cp.Metadata = maps.Clone(t.Metadata)
	cp.BlockedBy = slices.Clone(t.BlockedBy)
	return cp
}

// Validate checks the structural fields every task payload must carry.
func (t Task) Validate() error {
	if t.ID == "" {
		return errors.NewValidationError("task id is required").WithField("id")
	}
	if !t.Status.IsValid() {
		return errors.NewValidationError("unknown task status").
			WithField("status").
			WithValue(string(t.Status)).
			WithCause(errors.ErrUnknownState)
	}
	return nil
}

// Change describes one mutation of the collection.
type Change struct {
	TaskID   string
	Previous Task // zero value when Inserted is true
	Current  Task
	Inserted bool
	Source   string
}

// From returns the status before the change, or "" for an insert.
func (c Change) From() taskstate.State {
	if c.Inserted {
		return ""
	}
	return c.Previous.Status
}

// To returns the status after the change.
func (c Change) To() taskstate.State {
	return c.Current.Status
}

// StatusChanged reports whether the change moved the task to a new status.
func (c Change) StatusChanged() bool {
	return c.Inserted || c.Previous.Status != c.Current.Status
}

// Update sources.
const (
	SourceRealtime = "realtime"
	SourceLocal    = "local"
	SourceSnapshot = "snapshot"
)
