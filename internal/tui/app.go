// Package tui implements the interactive task search view.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/tracker"
)

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	model   Model
	bus     *event.Bus
	opts    []tracker.Option
}

// New creates the interactive search application. Events published on bus
// are forwarded into the program while it runs.
func New(deps Deps, bus *event.Bus, opts ...tracker.Option) *App {
	return &App{
		model: NewModel(deps),
		bus:   bus,
		opts:  opts,
	}
}

// Run starts the program and blocks until the user quits or ctx is done.
// Every bus subscription made for the program is released on return.
func (a *App) Run(ctx context.Context) error {
	return tracker.Run("tui", func(scope *tracker.Scope) error {
		a.program = tea.NewProgram(
			a.model,
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)

		if a.bus != nil {
			if err := a.forward(scope); err != nil {
				return err
			}
		}

		_, err := a.program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}, a.opts...)
}

// forward subscribes to the events the view reacts to. Handlers run on the
// publisher's goroutine, which may be the program's own event loop, so
// messages are sent asynchronously.
func (a *App) forward(scope *tracker.Scope) error {
	routes := map[string]func(event.Event) tea.Msg{
		event.TypeCacheInvalidated: func(e event.Event) tea.Msg {
			return cacheInvalidatedMsg{event: e.(event.CacheInvalidatedEvent)}
		},
		event.TypeTaskUpdated: func(e event.Event) tea.Msg {
			return taskUpdatedMsg{event: e.(event.TaskUpdatedEvent)}
		},
		event.TypeTaskRejected: func(e event.Event) tea.Msg {
			return taskRejectedMsg{event: e.(event.TaskRejectedEvent)}
		},
		event.TypeConnectionChanged: func(e event.Event) tea.Msg {
			return connectionMsg{event: e.(event.ConnectionChangedEvent)}
		},
	}

	for eventType, toMsg := range routes {
		_, err := scope.TrackSubscription(func() (func(), error) {
			id := a.bus.Subscribe(eventType, func(e event.Event) {
				msg := toMsg(e)
				go a.program.Send(msg)
			})
			return func() { a.bus.Unsubscribe(id) }, nil
		}, tracker.Metadata{"event_type": eventType})
		if err != nil {
			return err
		}
	}
	return nil
}
