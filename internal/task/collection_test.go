package task

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

func newTask(id string, status taskstate.State) Task {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return Task{
		ID:        id,
		Label:     "Task " + id,
		Type:      "agent",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{"domain": "default"},
	}
}

type fakeTransitioner struct {
	mu    sync.Mutex
	calls []string
	err   error
	reply func(id string, to taskstate.State) Task
}

func (f *fakeTransitioner) Transition(_ context.Context, id string, to taskstate.State) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%s", id, to))
	if f.err != nil {
		return Task{}, f.err
	}
	if f.reply != nil {
		return f.reply(id, to), nil
	}
	return Task{}, nil
}

type transitionerFunc func(ctx context.Context, id string, to taskstate.State) (Task, error)

func (f transitionerFunc) Transition(ctx context.Context, id string, to taskstate.State) (Task, error) {
	return f(ctx, id, to)
}

func TestCollection_ApplyInsertsUnknownTask(t *testing.T) {
	c := NewCollection()
	change, err := c.Apply(newTask("t1", taskstate.InProgress), SourceRealtime)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !change.Inserted || change.From() != "" || change.To() != taskstate.InProgress {
		t.Errorf("change = %+v, want insert to in_progress", change)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCollection_ApplyValidatesTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    taskstate.State
		to      taskstate.State
		wantErr bool
	}{
		{"pending to in_progress", taskstate.Pending, taskstate.InProgress, false},
		{"in_progress to blocked", taskstate.InProgress, taskstate.Blocked, false},
		{"blocked to completed", taskstate.Blocked, taskstate.Completed, false},
		{"pending to blocked", taskstate.Pending, taskstate.Blocked, true},
		{"completed to pending", taskstate.Completed, taskstate.Pending, true},
		{"same status merges", taskstate.Blocked, taskstate.Blocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := event.NewBus()
			var rejected []event.TaskRejectedEvent
			bus.Subscribe(event.TypeTaskRejected, func(e event.Event) {
				rejected = append(rejected, e.(event.TaskRejectedEvent))
			})

			c := NewCollection(WithBus(bus))
			c.Seed([]Task{newTask("t1", tt.from)})

			update := newTask("t1", tt.to)
			update.Label = "renamed"
			_, err := c.Apply(update, SourceRealtime)

			got, _ := c.Get("t1")
			if tt.wantErr {
				if !errors.Is(err, errors.ErrInvalidTransition) {
					t.Fatalf("Apply() error = %v, want ErrInvalidTransition", err)
				}
				if got.Status != tt.from || got.Label != "Task t1" {
					t.Errorf("rejected update mutated task: %+v", got)
				}
				if len(rejected) != 1 {
					t.Errorf("rejected events = %d, want 1", len(rejected))
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got.Status != tt.to || got.Label != "renamed" {
				t.Errorf("task = %+v, want merged update", got)
			}
		})
	}
}

func TestCollection_ApplyRejectsMalformed(t *testing.T) {
	c := NewCollection()
	if _, err := c.Apply(Task{Status: taskstate.Pending}, SourceRealtime); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("missing id: err = %v, want validation error", err)
	}
	if _, err := c.Apply(Task{ID: "t1", Status: "archived"}, SourceRealtime); !errors.Is(err, errors.ErrUnknownState) {
		t.Errorf("unknown status: err = %v, want ErrUnknownState", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCollection_ReturnsCopies(t *testing.T) {
	c := NewCollection()
	c.Seed([]Task{newTask("t1", taskstate.Pending)})

	got, _ := c.Get("t1")
	got.Metadata["domain"] = "mutated"
	got.Status = taskstate.Completed

	again, _ := c.Get("t1")
	if again.Metadata["domain"] != "default" || again.Status != taskstate.Pending {
		t.Errorf("stored task was mutated through a returned copy: %+v", again)
	}

	list := c.List()
	list[0].Label = "mutated"
	if again, _ := c.Get("t1"); again.Label != "Task t1" {
		t.Error("stored task was mutated through List()")
	}
}

func TestCollection_ListPreservesInsertionOrder(t *testing.T) {
	c := NewCollection()
	for _, id := range []string{"c", "a", "b"} {
		if _, err := c.Apply(newTask(id, taskstate.Pending), SourceRealtime); err != nil {
			t.Fatalf("Apply(%s) error = %v", id, err)
		}
	}
	var ids []string
	for _, tk := range c.List() {
		ids = append(ids, tk.ID)
	}
	if fmt.Sprint(ids) != "[c a b]" {
		t.Errorf("List() order = %v, want [c a b]", ids)
	}
	if counts := c.CountByStatus(); counts[taskstate.Pending] != 3 {
		t.Errorf("CountByStatus()[pending] = %d, want 3", counts[taskstate.Pending])
	}
}

func TestCollection_RequestTransition(t *testing.T) {
	t.Run("rejected transition is not sent", func(t *testing.T) {
		c := NewCollection()
		c.Seed([]Task{newTask("t1", taskstate.Pending)})
		tr := &fakeTransitioner{}

		_, err := c.RequestTransition(context.Background(), "t1", taskstate.Blocked, tr)
		if !errors.Is(err, errors.ErrInvalidTransition) {
			t.Fatalf("err = %v, want ErrInvalidTransition", err)
		}
		if len(tr.calls) != 0 {
			t.Errorf("endpoint calls = %v, want none", tr.calls)
		}
		if got, _ := c.Get("t1"); got.Status != taskstate.Pending {
			t.Errorf("status = %s, want pending", got.Status)
		}
	})

	t.Run("accepted transition applies and confirms", func(t *testing.T) {
		c := NewCollection()
		c.Seed([]Task{newTask("t1", taskstate.Pending)})
		tr := &fakeTransitioner{reply: func(id string, to taskstate.State) Task {
			tk := newTask(id, to)
			tk.Assignee = "server"
			return tk
		}}

		changes, err := c.RequestTransition(context.Background(), "t1", taskstate.InProgress, tr)
		if err != nil {
			t.Fatalf("RequestTransition() error = %v", err)
		}
		if len(changes) != 1 || changes[0].From() != taskstate.Pending || changes[0].To() != taskstate.InProgress {
			t.Errorf("changes = %+v", changes)
		}
		got, _ := c.Get("t1")
		if got.Status != taskstate.InProgress || got.Assignee != "server" {
			t.Errorf("task = %+v, want confirmed server version", got)
		}
		if fmt.Sprint(tr.calls) != "[t1:in_progress]" {
			t.Errorf("endpoint calls = %v", tr.calls)
		}
	})

	t.Run("failed call leaves the task untouched", func(t *testing.T) {
		bus := event.NewBus()
		var edges []string
		bus.Subscribe(event.TypeTaskUpdated, func(e event.Event) {
			u := e.(event.TaskUpdatedEvent)
			edges = append(edges, u.From+"->"+u.To)
		})

		c := NewCollection(WithBus(bus))
		c.Seed([]Task{newTask("t1", taskstate.Pending)})
		tr := &fakeTransitioner{err: errors.NewConnectionError("transition", "/api/tasks/t1/transition", fmt.Errorf("refused"))}

		changes, err := c.RequestTransition(context.Background(), "t1", taskstate.InProgress, tr)
		if !errors.IsRetryable(err) {
			t.Fatalf("err = %v, want retryable connection error", err)
		}
		if len(changes) != 0 {
			t.Errorf("changes = %+v, want none", changes)
		}
		if got, _ := c.Get("t1"); got.Status != taskstate.Pending {
			t.Errorf("status = %s, want pending", got.Status)
		}
		if len(edges) != 0 {
			t.Errorf("published edges = %v, want none", edges)
		}
	})

	t.Run("not applied while the call is in flight", func(t *testing.T) {
		c := NewCollection()
		c.Seed([]Task{newTask("t1", taskstate.Pending)})

		entered := make(chan struct{})
		release := make(chan struct{})
		tr := transitionerFunc(func(ctx context.Context, id string, to taskstate.State) (Task, error) {
			close(entered)
			<-release
			return newTask(id, to), nil
		})

		done := make(chan error, 1)
		go func() {
			_, err := c.RequestTransition(context.Background(), "t1", taskstate.InProgress, tr)
			done <- err
		}()

		<-entered
		if got, _ := c.Get("t1"); got.Status != taskstate.Pending {
			t.Errorf("status during call = %s, want pending", got.Status)
		}
		close(release)
		if err := <-done; err != nil {
			t.Fatalf("RequestTransition() error = %v", err)
		}
		if got, _ := c.Get("t1"); got.Status != taskstate.InProgress {
			t.Errorf("status after call = %s, want in_progress", got.Status)
		}
	})

	t.Run("newer realtime version wins", func(t *testing.T) {
		c := NewCollection()
		c.Seed([]Task{newTask("t1", taskstate.Pending)})
		tr := transitionerFunc(func(ctx context.Context, id string, to taskstate.State) (Task, error) {
			if _, err := c.Apply(newTask(id, taskstate.Completed), SourceRealtime); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
			return newTask(id, to), nil
		})

		changes, err := c.RequestTransition(context.Background(), "t1", taskstate.InProgress, tr)
		if err != nil {
			t.Fatalf("RequestTransition() error = %v", err)
		}
		if len(changes) != 0 {
			t.Errorf("changes = %+v, want none", changes)
		}
		if got, _ := c.Get("t1"); got.Status != taskstate.Completed {
			t.Errorf("status = %s, want completed", got.Status)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		c := NewCollection()
		_, err := c.RequestTransition(context.Background(), "missing", taskstate.Completed, &fakeTransitioner{})
		if !errors.Is(err, errors.ErrTaskNotFound) {
			t.Errorf("err = %v, want ErrTaskNotFound", err)
		}
	})
}

func TestTask_Clone(t *testing.T) {
	orig := newTask("t1", taskstate.Blocked)
	orig.BlockedBy = []string{"t0"}

	cp := orig.Clone()
	cp.BlockedBy[0] = "other"
	cp.Metadata["domain"] = "other"

	if orig.BlockedBy[0] != "t0" || orig.Metadata["domain"] != "default" {
		t.Errorf("Clone() shares memory with the original: %+v", orig)
	}
}
