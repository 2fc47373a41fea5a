package tui

import (
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// searchResultMsg carries the outcome of one debounced search.
type searchResultMsg struct {
	result search.Result
	err    error
}

// transitionDoneMsg carries the outcome of a requested transition.
type transitionDoneMsg struct {
	taskID  string
	to      taskstate.State
	changes []task.Change
	err     error
}

// Bus events forwarded into the program.
type (
	cacheInvalidatedMsg struct{ event event.CacheInvalidatedEvent }
	taskUpdatedMsg      struct{ event event.TaskUpdatedEvent }
	taskRejectedMsg     struct{ event event.TaskRejectedEvent }
	connectionMsg       struct{ event event.ConnectionChangedEvent }
)

type flashKind int

const (
	flashInfo flashKind = iota
	flashWarn
	flashError
)
