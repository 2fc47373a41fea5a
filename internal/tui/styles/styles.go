// Package styles defines the lipgloss styles shared by the terminal views.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Task status colors
	StatusPending    = lipgloss.Color("#9CA3AF") // Gray
	StatusInProgress = lipgloss.Color("#10B981") // Green
	StatusBlocked    = lipgloss.Color("#FB923C") // Orange
	StatusCompleted  = lipgloss.Color("#A78BFA") // Purple

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Filter chips
	ChipActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor).
			Background(PrimaryColor).
			Padding(0, 1)

	ChipInactive = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 1)

	// Search input box
	InputBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	InputBoxFocused = InputBox.
			BorderForeground(PrimaryColor)

	// Result table
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(MutedColor).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(BorderColor)

	SelectedRow = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(SurfaceColor).
			Bold(true)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true)
)

// StatusColor returns the color for a task status.
func StatusColor(s taskstate.State) lipgloss.Color {
	switch s {
	case taskstate.InProgress:
		return StatusInProgress
	case taskstate.Blocked:
		return StatusBlocked
	case taskstate.Completed:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// Status renders a status label in its color.
func Status(s taskstate.State) string {
	return lipgloss.NewStyle().Foreground(StatusColor(s)).Render(string(s))
}
