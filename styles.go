package main

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	stageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// statusLabel renders ok or failed in color
func statusLabel(success bool) string {
	if success {
		return okStyle.Render("ok")
	}
	return failStyle.Render("failed")
}
