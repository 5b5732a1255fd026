package report

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorIce   = lipgloss.Color("#A8D8EA") // Cyan/Blueish for accents
	ColorDeep  = lipgloss.Color("#596E79") // Muted Blue/Grey for secondary text
	ColorAlert = lipgloss.Color("#FF6B6B") // Red for critical findings
	ColorGood  = lipgloss.Color("#4ECDC4") // Green for good scores
	ColorWarn  = lipgloss.Color("#FFE66D") // Yellow for warnings
	ColorMuted = lipgloss.Color("#6c757d") // Muted text
)

// styles are bound to one renderer so color output follows the writer
// (plain text when it is not a terminal).
type styles struct {
	Header      lipgloss.Style
	Section     lipgloss.Style
	Muted       lipgloss.Style
	Good        lipgloss.Style
	Bad         lipgloss.Style
	Warn        lipgloss.Style
	TableHeader lipgloss.Style
	Cell        lipgloss.Style
	Indent      lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		Header: r.NewStyle().
			Foreground(ColorIce).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDeep),
		Section:     r.NewStyle().Foreground(ColorIce).Bold(true).MarginTop(1),
		Muted:       r.NewStyle().Foreground(ColorMuted),
		Good:        r.NewStyle().Foreground(ColorGood).Bold(true),
		Bad:         r.NewStyle().Foreground(ColorAlert).Bold(true),
		Warn:        r.NewStyle().Foreground(ColorWarn).Bold(true),
		TableHeader: r.NewStyle().Foreground(ColorDeep).Bold(true).Padding(0, 1),
		Cell:        r.NewStyle().Padding(0, 1),
		Indent:      r.NewStyle().PaddingLeft(2),
	}
}

// score colors a 0..100 score.
func (s styles) score(v int) lipgloss.Style {
	switch {
	case v >= 80:
		return s.Good
	case v >= 50:
		return s.Warn
	default:
		return s.Bad
	}
}

// severity colors a severity label.
func (s styles) severity(name string) lipgloss.Style {
	switch name {
	case "critical", "high":
		return s.Bad
	case "medium":
		return s.Warn
	default:
		return s.Muted
	}
}
