package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/lodestar-dev/lodestar/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(0, 1)

	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))

	statusStyles = map[session.Status]lipgloss.Style{
		session.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		session.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("#5A9BD4")),
		session.StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
		session.StatusTimeout:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
		session.StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")),
	}
)

// renderStatus colors a status for display
func renderStatus(s session.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}
