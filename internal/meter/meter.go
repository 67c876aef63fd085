// Package meter renders audio peak levels as a fixed-width text bar.
//
// The bar maps a peak in dB onto [lower, upper] linearly. Glyphs encode the
// band each cell falls into: '-' for the low half, '=' for the third quarter
// and '#' for the top quarter.
package meter

import (
	"fmt"
	"math"
	"strings"
)

// DefaultWidth is the number of cells in a rendered bar.
const DefaultWidth = 40

const (
	GlyphLow   = '-'
	GlyphMid   = '='
	GlyphHigh  = '#'
	GlyphEmpty = ' '
)

// Bar is a rendered meter.
type Bar struct {
	Peak     float64
	Position int
	Width    int
	Text     string
}

// Position maps peak onto [0, width]. A non-positive span, NaN input or a
// non-finite span maps to 0. The result never leaves [0, width].
func Position(peak, lower, upper float64, width int) int {
	if width <= 0 {
		return 0
	}
	span := upper - lower
	if math.IsNaN(peak) || math.IsNaN(span) || math.IsInf(span, 0) || span <= 0 {
		return 0
	}
	pos := math.Round(float64(width) * (peak - lower) / span)
	switch {
	case math.IsNaN(pos) || pos < 0:
		return 0
	case pos > float64(width):
		return width
	}
	return int(pos)
}

// Glyph returns the filled glyph for cell i of a bar of the given width.
func Glyph(i, width int) rune {
	switch {
	case i > width*3/4:
		return GlyphHigh
	case i > width/2:
		return GlyphMid
	default:
		return GlyphLow
	}
}

// Render builds the bar for peak against the [lower, upper] range.
func Render(peak, lower, upper float64, width int) Bar {
	if width < 0 {
		width = 0
	}
	pos := Position(peak, lower, upper, width)

	var b strings.Builder
	b.Grow(width)
	for i := 0; i < width; i++ {
		if i < pos {
			b.WriteRune(Glyph(i, width))
		} else {
			b.WriteRune(GlyphEmpty)
		}
	}
	return Bar{Peak: peak, Position: pos, Width: width, Text: b.String()}
}

// Line formats bar as a single display line without the leading carriage return.
func Line(bar Bar, styler Styler) string {
	if styler == nil {
		styler = PlainStyler{}
	}
	return fmt.Sprintf("Audio Level [%s] %.2f dB", styler.Style(bar), bar.Peak)
}
