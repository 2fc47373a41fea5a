package task

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// Transitioner sends a status change to the task service and returns the
// task as the service now sees it.
type Transitioner interface {
	Transition(ctx context.Context, taskID string, to taskstate.State) (Task, error)
}

// Option configures a Collection.
type Option func(*Collection)

// WithBus sets the event bus that receives task events.
func WithBus(bus *event.Bus) Option {
	return func(c *Collection) {
		c.bus = bus
	}
}

// WithLogger sets the collection's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Collection is the canonical set of known tasks. Tasks are added and
// updated but never deleted. Every status change goes through the
// transition table.
//
// All accessors return copies; callers never share memory with the
// collection. Collection is safe for concurrent use.
type Collection struct {
	mu    sync.RWMutex
	tasks map[string]Task
	order []string // insertion order

	bus    *event.Bus
	logger *logging.Logger
}

// NewCollection creates an empty collection.
func NewCollection(opts ...Option) *Collection {
	c := &Collection{
		tasks:  make(map[string]Task),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("tasks")
	return c
}

// Get returns a copy of the task with the given ID.
func (c *Collection) Get(id string) (Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// List returns copies of all tasks in insertion order.
func (c *Collection) List() []Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Task, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tasks[id].Clone())
	}
	return out
}

// Len returns the number of known tasks.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

// CountByStatus returns the number of tasks in each status.
func (c *Collection) CountByStatus() map[taskstate.State]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[taskstate.State]int, len(taskstate.States()))
	for _, t := range c.tasks {
		counts[t.Status]++
	}
	return counts
}

// Seed stores tasks returned by a search as authoritative snapshots. Known
// tasks are overwritten without transition validation since the service,
// not the client, produced the state.
func (c *Collection) Seed(tasks []Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range tasks {
		if t.Validate() != nil {
			continue
		}
		if _, ok := c.tasks[t.ID]; !ok {
			c.order = append(c.order, t.ID)
		}
		c.tasks[t.ID] = t.Clone()
	}
}

// Apply merges an inbound update. An unknown task is inserted. A status
// change must be listed in the transition table; otherwise the update is
// rejected with a *errors.TransitionError and the stored task is left
// untouched. An update that keeps the status is merged as-is.
func (c *Collection) Apply(update Task, source string) (Change, error) {
	if err := update.Validate(); err != nil {
		return Change{}, err
	}

	c.mu.Lock()
	prev, known := c.tasks[update.ID]
	if known && prev.Status != update.Status {
		if err := taskstate.ValidateTaskTransition(update.ID, prev.Status, update.Status); err != nil {
			c.mu.Unlock()
			c.logger.Warn("rejected status transition",
				"task_id", update.ID,
				"from", prev.Status,
				"to", update.Status,
				"source", source)
			c.publish(event.NewTaskRejectedEvent(update.ID, string(prev.Status), string(update.Status), source))
			return Change{}, err
		}
	}
	if !known {
		c.order = append(c.order, update.ID)
	}
	c.tasks[update.ID] = update.Clone()
	c.mu.Unlock()

	change := Change{
		TaskID:   update.ID,
		Previous: prev,
		Current:  update.Clone(),
		Inserted: !known,
		Source:   source,
	}
	c.logger.Debug("task merged",
		"task_id", update.ID,
		"from", change.From(),
		"to", change.To(),
		"source", source)
	c.publish(event.NewTaskUpdatedEvent(update.ID, string(change.From()), string(change.To()), source))
	return change, nil
}

// RequestTransition requests a status change from the task service. The
// transition is validated against the local version first; a rejected
// transition is neither sent nor applied. The collection is only updated
// once tr confirms the change, so a failed call leaves the task and every
// cached result that holds it untouched.
//
// The confirmed version is merged only while the task still holds the
// status the request started from (or already holds the target status);
// a newer realtime version that arrived during the call wins. The returned
// slice holds the merged change, or is empty when nothing was merged.
func (c *Collection) RequestTransition(ctx context.Context, id string, to taskstate.State, tr Transitioner) ([]Change, error) {
	c.mu.RLock()
	prev, ok := c.tasks[id]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	if err := taskstate.ValidateTaskTransition(id, prev.Status, to); err != nil {
		c.logger.Warn("rejected local transition", "task_id", id, "from", prev.Status, "to", to)
		c.publish(event.NewTaskRejectedEvent(id, string(prev.Status), string(to), SourceLocal))
		return nil, err
	}

	confirmed, err := tr.Transition(ctx, id, to)
	if err != nil {
		c.logger.Warn("transition failed",
			"task_id", id,
			"from", prev.Status,
			"to", to,
			"error", err.Error(),
			"retryable", errors.IsRetryable(err))
		return nil, err
	}
	if confirmed.ID != id || confirmed.Status != to || confirmed.Validate() != nil {
		confirmed = prev.Clone()
		confirmed.Status = to
		confirmed.UpdatedAt = time.Now().UTC()
	}

	c.mu.Lock()
	cur, ok := c.tasks[id]
	if !ok || (cur.Status != prev.Status && cur.Status != to) {
		c.mu.Unlock()
		c.logger.Debug("confirmed transition superseded",
			"task_id", id,
			"to", to,
			"current", cur.Status)
		return nil, nil
	}
	c.tasks[id] = confirmed.Clone()
	c.mu.Unlock()

	change := Change{TaskID: id, Previous: cur, Current: confirmed.Clone(), Source: SourceLocal}
	c.logger.Debug("transition confirmed", "task_id", id, "from", cur.Status, "to", to)
	c.publish(event.NewTaskUpdatedEvent(id, string(cur.Status), string(to), SourceLocal))
	return []Change{change}, nil
}

func (c *Collection) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
