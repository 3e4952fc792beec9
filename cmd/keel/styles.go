package main

import "github.com/charmbracelet/lipgloss"

// Styles for human-readable output. lipgloss degrades to plain text on
// its own when stdout isn't a color terminal, so callers never need to
// branch on jsonOutput here.
var (
	idStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// statusStyle colors a status/state name by its rough lifecycle stage.
// It's a best-effort convenience, not a template-aware lookup: it only
// recognizes a fixed handful of category and state names, and renders
// every other status (e.g. "verifying", "planned") muted.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "done", "closed", "resolved":
		return okStyle
	case "wip", "in_progress", "in_review":
		return warnStyle
	default:
		return mutedStyle
	}
}
