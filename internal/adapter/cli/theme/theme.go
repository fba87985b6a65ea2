// Package theme holds the colors, styles and symbols of the command line output.
// Colors adapt to light and dark terminals; NO_COLOR is honored by lipgloss.
package theme

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)

	Title      = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Padding(0, 0, 1, 0)
	Card       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorBorder).Padding(0, 1)
	HeaderCell = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
	Cell       = lipgloss.NewStyle()
)

// MaxContentWidth is the widest text block the CLI prints.
const MaxContentWidth = 100

// Confidence colors a routing confidence: green from 0.6, amber from 0.3, red below.
func Confidence(c float64) string {
	s := fmt.Sprintf("%.2f", c)
	switch {
	case c >= 0.6:
		return TextSuccess.Render(s)
	case c >= 0.3:
		return TextWarning.Render(s)
	default:
		return TextError.Render(s)
	}
}

// Table lays out rows under a header with columns sized to their widest cell.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range header {
			if i < len(row) {
				widths[i] = max(widths[i], lipgloss.Width(row[i]))
			}
		}
	}

	var b strings.Builder
	b.WriteString(line(header, widths, HeaderCell))
	for _, row := range rows {
		b.WriteByte('\n')
		b.WriteString(line(row, widths, Cell))
	}
	return b.String()
}

func line(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		var c string
		if i < len(cells) {
			c = cells[i]
		}
		parts[i] = style.Width(w + 2).Render(c)
	}
	return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
}
