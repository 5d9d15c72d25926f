package tui

import "github.com/charmbracelet/lipgloss"

// Palette for the timer screen.
const (
	ColorPrimaryText   = "#E8EDF5"
	ColorSecondaryText = "#9AA4B8"
	ColorHelpText      = "240"
	ColorFocus         = "#F97316"
	ColorBreak         = "#22C55E"
	ColorPaused        = "#EAB308"
	ColorError         = "#EF4444"
	ColorBorder        = "#3A3F55"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorPrimaryText))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(1, 3)
)

func stateColor(s string) lipgloss.Color {
	switch s {
	case "break":
		return lipgloss.Color(ColorBreak)
	case "paused":
		return lipgloss.Color(ColorPaused)
	default:
		return lipgloss.Color(ColorFocus)
	}
}
