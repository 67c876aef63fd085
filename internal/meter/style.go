package meter

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styler decorates the cells of a bar for display.
type Styler interface {
	Style(bar Bar) string
}

// PlainStyler returns the bar text unchanged.
type PlainStyler struct{}

func (PlainStyler) Style(bar Bar) string { return bar.Text }

// Band colors.
var (
	ColorLow  = lipgloss.Color("#22c55e")
	ColorMid  = lipgloss.Color("#d97706")
	ColorHigh = lipgloss.Color("#dc2626")
)

// ColorStyler colors each glyph run by band. Color output follows the
// capabilities of the writer the styler was created for.
type ColorStyler struct {
	low  lipgloss.Style
	mid  lipgloss.Style
	high lipgloss.Style
}

// NewColorStyler creates a styler whose color profile is detected from w.
func NewColorStyler(w io.Writer) *ColorStyler {
	r := lipgloss.NewRenderer(w)
	return &ColorStyler{
		low:  r.NewStyle().Foreground(ColorLow),
		mid:  r.NewStyle().Foreground(ColorMid),
		high: r.NewStyle().Foreground(ColorHigh),
	}
}

func (s *ColorStyler) Style(bar Bar) string {
	var out strings.Builder
	runes := []rune(bar.Text)
	for start := 0; start < len(runes); {
		end := start + 1
		for end < len(runes) && runes[end] == runes[start] {
			end++
		}
		run := string(runes[start:end])
		switch runes[start] {
		case GlyphLow:
			out.WriteString(s.low.Render(run))
		case GlyphMid:
			out.WriteString(s.mid.Render(run))
		case GlyphHigh:
			out.WriteString(s.high.Render(run))
		default:
			out.WriteString(run)
		}
		start = end
	}
	return out.String()
}
