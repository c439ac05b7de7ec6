package dashboard

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	// ErrorStyle for error messages.
	ErrorStyle = lipgloss.NewStyle().Bold(true)

	// HaltedStyle marks a halted fleet or agent.
	HaltedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// FormatPnL formats a profit or loss with a direction marker.
func FormatPnL(pnl float64) string {
	s := fmt.Sprintf("%.2f", pnl)

	switch {
	case pnl > 0:
		return s + " ▲"
	case pnl < 0:
		return s + " ▼"
	default:
		return s
	}
}
