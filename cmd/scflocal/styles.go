package main

import "github.com/charmbracelet/lipgloss"

var (
	colorSuccess = lipgloss.Color("#00FF00")
	colorError   = lipgloss.Color("#FF0000")
	colorWarning = lipgloss.Color("#FFAA00")
	colorMuted   = lipgloss.Color("#666666")
	colorAccent  = lipgloss.Color("#7D56F4")

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleHeader  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Padding(0, 1)
	styleCell    = lipgloss.NewStyle().Padding(0, 1)
)

// statusStyle colours a history status the way the invoke messages do.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "succeeded":
		return styleSuccess
	case "cancelled":
		return styleMuted
	case "timed_out":
		return styleWarning
	default:
		return styleError
	}
}
