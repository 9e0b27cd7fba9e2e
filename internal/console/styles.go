// Package console renders the chat surface in a terminal.
package console

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/giziai/digital-human/domain/entities"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#16A34A") // Green
	accentColor  = lipgloss.Color("#F59E0B") // Amber
	recordColor  = lipgloss.Color("#EF4444") // Red
	dimColor     = lipgloss.Color("#6B7280") // Gray
	textColor    = lipgloss.Color("#F9FAFB") // Light
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	sessionStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(textColor)

	recordingStyle = lipgloss.NewStyle().
			Foreground(recordColor).
			Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Italic(true)

	bubbleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	avatarStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	disabledInputStyle = inputStyle.
				BorderForeground(dimColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor)
)

// mouths draws each rhubarb viseme
var mouths = map[entities.Viseme]string{
	entities.VisemeA: "(-)",
	entities.VisemeB: "(=)",
	entities.VisemeC: "(o)",
	entities.VisemeD: "(O)",
	entities.VisemeE: "(0)",
	entities.VisemeF: "(u)",
	entities.VisemeG: "(v)",
	entities.VisemeH: "(L)",
	entities.VisemeX: "(_)",
}

func mouth(v entities.Viseme) string {
	if m, ok := mouths[v]; ok {
		return m
	}
	return mouths[entities.VisemeX]
}
