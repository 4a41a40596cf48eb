package ux

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	plainStyle  = lipgloss.NewStyle().Padding(0, 1)
)

// Table renders rows under headers with a rounded border. With NoColor the
// header is not styled.
func Table(opts *FormatterOptions, headers []string, rows [][]string) string {
	noColor := opts != nil && opts.NoColor

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case noColor:
				return plainStyle
			case row == table.HeaderRow:
				return headerStyle
			default:
				return cellStyle
			}
		})
	if noColor {
		t = t.BorderStyle(lipgloss.NewStyle())
	}
	return t.String()
}

// KeyValues renders label/value pairs as an aligned two-column list.
func KeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if w := lipgloss.Width(p[0]); w > width {
			width = w
		}
	}

	label := lipgloss.NewStyle().Width(width + 2)
	out := ""
	for _, p := range pairs {
		out += label.Render(p[0]+":") + p[1] + "\n"
	}
	return out
}
