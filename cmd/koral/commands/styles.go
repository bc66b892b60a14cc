package commands

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#bae6fd"))

	// Playback transitions, soft mint.
	playStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	// Focus transitions, light zinc.
	focusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	// Outgoing events and metadata, dimmed zinc.
	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	// Failures and exceptions, soft coral.
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))
)
