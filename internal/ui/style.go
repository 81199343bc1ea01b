package ui

import "github.com/charmbracelet/lipgloss"

var (
	Accent = lipgloss.Color("#6ea4ff")
	Gray   = lipgloss.Color("241")
)

var Title = lipgloss.NewStyle().Inline(true).Bold(true).Foreground(lipgloss.Color("252")).Render
var Help = lipgloss.NewStyle().Inline(true).Foreground(Gray).Render
var Warning = lipgloss.NewStyle().Inline(true).Foreground(lipgloss.Color("203")).Render

// Clock frames the countdown readout.
var Clock = lipgloss.NewStyle().
	Bold(true).
	Foreground(Accent).
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(Gray).
	Padding(1, 4).
	Render
