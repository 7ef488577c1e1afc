package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	dimColor    = lipgloss.Color("7")
	accentColor = lipgloss.Color("12")
	userColor   = lipgloss.Color("10")
	dangerColor = lipgloss.Color("9")

	userStyle = lipgloss.NewStyle().
			Foreground(userColor).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	modeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Reverse(true)
)

// DisableColor renders everything without ANSI colors.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
