package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/taskscope/internal/search"
	"github.com/Iron-Ham/taskscope/internal/task"
	"github.com/Iron-Ham/taskscope/internal/taskstate"
	"github.com/Iron-Ham/taskscope/internal/tui/styles"
)

const (
	idWidth       = 12
	statusWidth   = 12
	priorityWidth = 8
	assigneeWidth = 14
	updatedWidth  = 16
	minLabelWidth = 16
	defaultWidth  = 100
	timeLayout    = "2006-01-02 15:04"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	var b strings.Builder
	b.WriteString(m.renderHeader(width))
	b.WriteString("\n")

	box := styles.InputBox
	if m.focus == focusInput {
		box = styles.InputBoxFocused
	}
	b.WriteString(box.Width(max(width-2, 20)).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderChips())
	b.WriteString("\n\n")
	b.WriteString(m.renderRows(width))
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	if m.flash != "" {
		b.WriteString("\n")
		b.WriteString(m.renderFlash(width))
	}
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader(width int) string {
	title := styles.Title.Render("taskscope")
	conn := styles.Muted.Render("● " + m.conn)
	switch m.conn {
	case "connected":
		conn = styles.Secondary.Render("● connected")
	case "failed":
		conn = styles.Error.Render("● failed")
	}
	gap := max(width-lipgloss.Width(title)-lipgloss.Width(conn), 1)
	return title + strings.Repeat(" ", gap) + conn
}

func (m Model) renderChips() string {
	active := m.ctrl.Store().Filter().Status
	chips := make([]string, 0, len(taskstate.States()))
	for i, s := range taskstate.States() {
		label := fmt.Sprintf("%d %s", i+1, s)
		if slices.Contains(active, s) {
			chips = append(chips, styles.ChipActive.Background(styles.StatusColor(s)).Render(label))
		} else {
			chips = append(chips, styles.ChipInactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chips...)
}

func (m Model) renderRows(width int) string {
	if len(m.rows) == 0 {
		if m.loading {
			return styles.Muted.Render("  searching…")
		}
		return styles.Muted.Render("  no tasks match")
	}

	labelWidth := max(width-idWidth-statusWidth-priorityWidth-assigneeWidth-updatedWidth-6, minLabelWidth)
	lines := make([]string, 0, len(m.rows)+1)
	lines = append(lines, styles.TableHeader.Render(formatRow(labelWidth,
		"ID", "LABEL", "STATUS", "PRIORITY", "ASSIGNEE", "UPDATED")))

	for i, row := range m.rows {
		t := m.current(row)
		if i == m.selected && m.focus == focusList {
			line := formatRow(labelWidth,
				t.ID, t.Label, string(t.Status), t.Priority, t.Assignee, formatTime(t))
			lines = append(lines, styles.SelectedRow.Render(line))
			continue
		}
		lines = append(lines, formatRow(labelWidth,
			t.ID, t.Label, styles.Status(t.Status), t.Priority, t.Assignee, formatTime(t)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatusLine() string {
	p := m.ctrl.Store().Pagination()
	sc := m.ctrl.Store().Sort()
	parts := []string{
		fmt.Sprintf("page %d/%d", p.Page, max(p.TotalPages, 1)),
		fmt.Sprintf("%d tasks", p.TotalItems),
		fmt.Sprintf("sort %s %s", sc.Field, sc.Direction),
	}
	if m.fromCache {
		parts = append(parts, "cached")
	}
	if m.loading {
		parts = append(parts, "loading")
	}
	return styles.Muted.Render(strings.Join(parts, " · "))
}

func (m Model) renderFlash(width int) string {
	text := ansi.Truncate(m.flash, max(width, 20), "…")
	switch m.flashKind {
	case flashWarn:
		return styles.Warning.Render(text)
	case flashError:
		return styles.Error.Render(text)
	default:
		return styles.Secondary.Render(text)
	}
}

func (m Model) renderHelp() string {
	var keys [][2]string
	if m.focus == focusInput {
		keys = [][2]string{{"enter", "search"}, {"esc", "results"}, {"ctrl+c", "quit"}}
	} else {
		keys = [][2]string{
			{"/", "search"}, {"j/k", "move"}, {"1-4", "status"}, {"n/p", "page"},
			{"o", "order"}, {"s/b/c", "start/block/complete"}, {"r", "refresh"},
			{"x", "reset"}, {"q", "quit"},
		}
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = styles.HelpKey.Render(k[0]) + " " + k[1]
	}
	return styles.HelpBar.Render(strings.Join(parts, "  "))
}

func formatRow(labelWidth int, id, label, status, priority, assignee, updated string) string {
	return strings.Join([]string{
		pad(id, idWidth),
		pad(label, labelWidth),
		pad(status, statusWidth),
		pad(priority, priorityWidth),
		pad(assignee, assigneeWidth),
		pad(updated, updatedWidth),
	}, " ")
}

// pad truncates s to width cells and right-pads it with spaces.
func pad(s string, width int) string {
	s = ansi.Truncate(s, width, "…")
	if w := ansi.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}

func formatTime(t task.Task) string {
	if t.UpdatedAt.IsZero() {
		return "-"
	}
	return t.UpdatedAt.Local().Format(timeLayout)
}

// RenderTable renders one page of search results as a bordered table for
// non-interactive output.
func RenderTable(resp search.Response, q search.Query, width int) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.BorderColor)).
		Headers("ID", "LABEL", "STATUS", "PRIORITY", "ASSIGNEE", "UPDATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(styles.MutedColor).Padding(0, 1)
			}
			s := lipgloss.NewStyle().Padding(0, 1)
			if col == 2 && row >= 0 && row < len(resp.Tasks) {
				s = s.Foreground(styles.StatusColor(resp.Tasks[row].Status))
			}
			return s
		})
	if width > 0 {
		tbl = tbl.Width(width)
	}
	for _, t := range resp.Tasks {
		tbl.Row(t.ID, t.Label, string(t.Status), t.Priority, t.Assignee, formatTime(t))
	}

	summary := styles.Muted.Render(fmt.Sprintf("page %d/%d · %d tasks",
		q.Pagination.Page, max(resp.TotalPages, 1), resp.TotalItems))
	if len(resp.Tasks) == 0 {
		return styles.Muted.Render("no tasks match") + "\n" + summary
	}
	return tbl.Render() + "\n" + summary
}
