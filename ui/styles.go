package ui

import "github.com/charmbracelet/lipgloss"

var (
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	recordingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	agentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("231"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	savedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	disabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)
