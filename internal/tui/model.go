package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/taskscope/internal/debounce"
	"github.com/Iron-Ham/taskscope/internal/errors"
	"github.com/Iron-Ham/taskscope/internal/event"
	"github.com/Iron-Ham/taskscope/internal/logging"
	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// transitionTimeout bounds one call to the transition endpoint.
const transitionTimeout = 15 * time.Second

// Deps are the collaborators the search view drives.
type Deps struct {
	Controller *search.Controller
	Tasks      *task.Collection
	// Transitioner sends status changes. Nil disables the transition keys.
	Transitioner task.Transitioner
	Logger       *logging.Logger
}

type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

// Model is the Bubbletea model for the interactive search view
type Model struct {
	ctrl   *search.Controller
	tasks  *task.Collection
	tr     task.Transitioner
	logger *logging.Logger

	input     textinput.Model
	focus     focusArea
	rows      []task.Task
	selected  int
	loading   bool
	fromCache bool
	conn      string
	flash     string
	flashKind flashKind
	width     int
	height    int
	quitting  bool
}

// NewModel creates the search view. It panics if the controller or task
// collection is missing.
func NewModel(deps Deps) Model {
	if deps.Controller == nil {
		panic("tui: Controller must not be nil")
	}
	if deps.Tasks == nil {
		panic("tui: Tasks must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	ti := textinput.New()
	ti.Placeholder = "search tasks"
	ti.Prompt = "/ "
	ti.CharLimit = 200
	ti.Width = 60
	ti.SetValue(deps.Controller.Store().Text())
	ti.Focus()

	return Model{
		ctrl:   deps.Controller,
		tasks:  deps.Tasks,
		tr:     deps.Transitioner,
		logger: logger.WithComponent("tui"),
		input:  ti,
		focus:  focusInput,
		conn:   "offline",
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(textinput.Blink, waitFor(m.ctrl.Trigger()))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case searchResultMsg:
		return m.handleSearchResult(msg)

	case transitionDoneMsg:
		return m.handleTransitionDone(msg)

	case cacheInvalidatedMsg:
		m.loading = true
		return m, waitFor(m.ctrl.Trigger())

	case taskUpdatedMsg:
		if msg.event.Source == task.SourceRealtime {
			m.setFlash(flashInfo, fmt.Sprintf("%s: %s → %s", msg.event.TaskID, orNew(msg.event.From), msg.event.To))
		}
		return m, nil

	case taskRejectedMsg:
		if msg.event.Source == task.SourceRealtime {
			m.setFlash(flashWarn, fmt.Sprintf("ignored update for %s: %s → %s is not allowed",
				msg.event.TaskID, msg.event.From, msg.event.To))
		}
		return m, nil

	case connectionMsg:
		m.conn = string(msg.event.State)
		if msg.event.State == event.ConnectionFailed {
			m.setFlash(flashError, "connection lost: "+msg.event.Error)
		}
		return m, nil
	}

	if m.focus == focusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.quitting = true
		return m, tea.Quit
	}

	if m.focus == focusInput {
		switch msg.Type {
		case tea.KeyEsc, tea.KeyTab, tea.KeyDown:
			m.blurInput()
			return m, nil
		case tea.KeyEnter:
			m.blurInput()
			m.loading = true
			return m, m.refresh()
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() == before {
			return m, cmd
		}
		m.loading = true
		return m, tea.Batch(cmd, waitFor(m.ctrl.SetText(m.input.Value())))
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "/", "tab":
		m.focus = focusInput
		return m, m.input.Focus()
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}
	case "1", "2", "3", "4":
		s := taskstate.States()[int(msg.Runes[0]-'1')]
		m.loading = true
		return m, waitFor(m.ctrl.ToggleStatus(s))
	case "n", "right":
		p := m.ctrl.Store().Pagination()
		if p.Page < p.TotalPages {
			m.loading = true
			return m, waitFor(m.ctrl.SetPage(p.Page + 1))
		}
	case "p", "left":
		p := m.ctrl.Store().Pagination()
		if p.Page > 1 {
			m.loading = true
			return m, waitFor(m.ctrl.SetPage(p.Page - 1))
		}
	case "o":
		sc := m.ctrl.Store().Sort()
		if sc.Direction == search.Desc {
			sc.Direction = search.Asc
		} else {
			sc.Direction = search.Desc
		}
		m.loading = true
		return m, waitFor(m.ctrl.SetSort(sc))
	case "r":
		m.loading = true
		return m, m.refresh()
	case "x":
		m.input.SetValue("")
		m.loading = true
		return m, waitFor(m.ctrl.Reset())
	case "s":
		return m, m.transition(taskstate.InProgress)
	case "b":
		return m, m.transition(taskstate.Blocked)
	case "c":
		return m, m.transition(taskstate.Completed)
	}
	return m, nil
}

func (m *Model) blurInput() {
	m.focus = focusList
	m.input.Blur()
}

func (m Model) handleSearchResult(msg searchResultMsg) (tea.Model, tea.Cmd) {
	if errors.Is(msg.err, errors.ErrStaleResult) || errors.Is(msg.err, errors.ErrCanceled) {
		// A newer search is on its way.
		return m, nil
	}
	m.loading = false
	if msg.err != nil {
		m.logger.Warn("search failed", "error", msg.err.Error())
		kind, text := errorFlash("search failed", msg.err)
		if errors.IsRetryable(msg.err) {
			text += " (press r to retry)"
		}
		m.setFlash(kind, text)
		return m, nil
	}

	m.rows = append([]task.Task(nil), msg.result.Response.Tasks...)
	m.fromCache = msg.result.FromCache
	m.selected = min(m.selected, max(len(m.rows)-1, 0))
	return m, nil
}

func (m Model) handleTransitionDone(msg transitionDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		m.setFlash(flashInfo, fmt.Sprintf("%s moved to %s", msg.taskID, msg.to))
	case errors.IsExpected(msg.err):
		m.setFlash(errorFlash("", msg.err))
		return m, nil
	default:
		m.logger.Warn("transition failed", "task_id", msg.taskID, "to", msg.to, "error", msg.err.Error())
		m.setFlash(errorFlash(fmt.Sprintf("could not move %s to %s", msg.taskID, msg.to), msg.err))
	}

	if len(msg.changes) == 0 {
		return m, nil
	}
	m.loading = true
	return m, waitFor(m.ctrl.Trigger())
}

// transition returns a command that requests a status change for the
// selected task and drops cached pages the change affects.
func (m Model) transition(to taskstate.State) tea.Cmd {
	if m.tr == nil || len(m.rows) == 0 {
		return nil
	}
	t := m.current(m.rows[m.selected])
	tasks, tr, store := m.tasks, m.tr, m.ctrl.Store()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), transitionTimeout)
		defer cancel()
		changes, err := tasks.RequestTransition(ctx, t.ID, to, tr)
		for _, ch := range changes {
			store.InvalidateTask(ch)
		}
		return transitionDoneMsg{taskID: t.ID, to: to, changes: changes, err: err}
	}
}

// refresh runs the current query without waiting for the debounce window.
func (m Model) refresh() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		res, err := ctrl.Refresh(context.Background())
		return searchResultMsg{result: res, err: err}
	}
}

// current returns the live version of t from the task collection.
func (m Model) current(t task.Task) task.Task {
	if live, ok := m.tasks.Get(t.ID); ok {
		return live
	}
	return t
}

// errorFlash picks the flash kind from err's severity. Messages that are not
// safe to show are replaced with a pointer to the log.
func errorFlash(prefix string, err error) (flashKind, string) {
	kind := flashError
	if errors.GetSeverity(err) < errors.SeverityError {
		kind = flashWarn
	}
	text := err.Error()
	if !errors.IsUserFacing(err) {
		text = "unexpected error (see taskscope logs)"
	}
	if prefix != "" {
		text = prefix + ": " + text
	}
	return kind, text
}

func (m *Model) setFlash(kind flashKind, text string) {
	m.flashKind = kind
	m.flash = text
	if kind != flashInfo {
		m.logger.Debug("flash", "kind", int(kind), "message", text)
	}
}

// waitFor turns a debounced search handle into a command.
func waitFor(h *debounce.Handle[search.Result]) tea.Cmd {
	return func() tea.Msg {
		res, err := h.Wait(context.Background())
		return searchResultMsg{result: res, err: err}
	}
}

func orNew(from string) string {
	if from == "" {
		return "new"
	}
	return from
}
