package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF5F5F")
	colorGreen  = lipgloss.Color("#5FD75F")
	colorYellow = lipgloss.Color("#FFD75F")
	colorCyan   = lipgloss.Color("#5FD7FF")
	colorGray   = lipgloss.Color("#808080")
	colorDim    = lipgloss.Color("#4E4E4E")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	promptStyle = lipgloss.NewStyle().
			Italic(true).
			PaddingLeft(2).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(colorDim)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	recordingStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	busyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	barFullStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)
