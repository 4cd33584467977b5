package main

import "github.com/charmbracelet/lipgloss"

var (
	speechStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	displayStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
)
