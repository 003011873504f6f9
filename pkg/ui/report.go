package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(neonMagenta).
			Bold(true)
)

// Row is one label/value line of a panel
type Row struct {
	Label string
	Value string
}

// RenderPanel renders rows as an aligned key/value panel under title
func RenderPanel(title string, rows []Row) string {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r.Label); w > width {
			width = w
		}
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, titleStyle.Render(title))
	for _, r := range rows {
		label := labelStyle.Width(width + 1).Render(r.Label)
		lines = append(lines, label+" "+valueStyle.Render(r.Value))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// PrintPanel prints a panel built by RenderPanel
func PrintPanel(title string, rows []Row) {
	write(false, RenderPanel(title, rows))
}

// PrintList prints a dimmed bullet list, limited to max entries when max > 0
func PrintList(items []string, max int) {
	for i, item := range items {
		if max > 0 && i == max {
			write(false, dimStyle.Render("  ... "+strconv.Itoa(len(items)-max)+" more"))
			return
		}
		write(false, dimStyle.Render("  - "+item))
	}
}
