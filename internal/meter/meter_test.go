package meter

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"testing/quick"
)

// TestMeter_Property1_PositionBounds verifies the position never leaves [0, width].
func TestMeter_Property1_PositionBounds(t *testing.T) {
	property := func(peak, lower, upper float64, w uint8) bool {
		width := int(w)
		pos := Position(peak, lower, upper, width)
		return pos >= 0 && pos <= width
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

// TestMeter_Property2_Monotonic verifies a louder peak never yields a shorter bar.
func TestMeter_Property2_Monotonic(t *testing.T) {
	property := func(a, b float64) bool {
		p1 := math.Mod(a, 80) - 70
		p2 := math.Mod(b, 80) - 70
		if p1 > p2 {
			p1, p2 = p2, p1
		}
		return Position(p1, -60, 0, DefaultWidth) <= Position(p2, -60, 0, DefaultWidth)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

// TestMeter_Property3_DegenerateRange verifies that an empty or inverted range renders empty.
func TestMeter_Property3_DegenerateRange(t *testing.T) {
	tests := []struct {
		name         string
		peak         float64
		lower, upper float64
	}{
		{"equal bounds", -60, -60, -60},
		{"inverted bounds", -10, 0, -60},
		{"nan peak", math.NaN(), -60, 0},
		{"infinite upper", -10, -60, math.Inf(1)},
		{"infinite lower", -10, math.Inf(-1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := Render(tt.peak, tt.lower, tt.upper, DefaultWidth)
			if bar.Position != 0 {
				t.Errorf("Position = %d, want 0", bar.Position)
			}
			if strings.TrimSpace(bar.Text) != "" {
				t.Errorf("Text = %q, want blanks", bar.Text)
			}
			if len(bar.Text) != DefaultWidth {
				t.Errorf("len(Text) = %d, want %d", len(bar.Text), DefaultWidth)
			}
		})
	}
}

// TestMeter_Property4_GlyphBands verifies the glyph thresholds at width 40.
func TestMeter_Property4_GlyphBands(t *testing.T) {
	bar := Render(0, -60, 0, DefaultWidth)
	if bar.Position != DefaultWidth {
		t.Fatalf("Position = %d, want %d", bar.Position, DefaultWidth)
	}
	want := strings.Repeat("-", 21) + strings.Repeat("=", 10) + strings.Repeat("#", 9)
	if bar.Text != want {
		t.Errorf("Text = %q, want %q", bar.Text, want)
	}
}

func TestRenderScenario(t *testing.T) {
	tests := []struct {
		name     string
		peak     float64
		lower    float64
		upper    float64
		wantPos  int
		wantText string
	}{
		{
			name:     "first sample at floor",
			peak:     -60,
			lower:    -60,
			upper:    -60,
			wantPos:  0,
			wantText: strings.Repeat(" ", 40),
		},
		{
			name:     "new maximum fills the bar",
			peak:     -20,
			lower:    -60,
			upper:    -20,
			wantPos:  40,
			wantText: strings.Repeat("-", 21) + strings.Repeat("=", 10) + strings.Repeat("#", 9),
		},
		{
			name:     "halfway",
			peak:     -40,
			lower:    -60,
			upper:    -20,
			wantPos:  20,
			wantText: strings.Repeat("-", 20) + strings.Repeat(" ", 20),
		},
		{
			name:     "below floor clamps",
			peak:     -90,
			lower:    -60,
			upper:    -20,
			wantPos:  0,
			wantText: strings.Repeat(" ", 40),
		},
		{
			name:     "above max clamps",
			peak:     5,
			lower:    -60,
			upper:    -20,
			wantPos:  40,
			wantText: strings.Repeat("-", 21) + strings.Repeat("=", 10) + strings.Repeat("#", 9),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := Render(tt.peak, tt.lower, tt.upper, DefaultWidth)
			if bar.Position != tt.wantPos {
				t.Errorf("Position = %d, want %d", bar.Position, tt.wantPos)
			}
			if bar.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", bar.Text, tt.wantText)
			}
		})
	}
}

func TestLine(t *testing.T) {
	bar := Render(-40, -60, -20, DefaultWidth)
	got := Line(bar, nil)
	want := "Audio Level [" + strings.Repeat("-", 20) + strings.Repeat(" ", 20) + "] -40.00 dB"
	if got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestColorStylerKeepsCells(t *testing.T) {
	var buf bytes.Buffer
	styler := NewColorStyler(&buf)

	bar := Render(0, -60, 0, DefaultWidth)
	styled := styler.Style(bar)

	// A non-terminal writer gets no escape sequences; the cells must survive either way.
	for _, glyph := range []string{"-", "=", "#"} {
		if !strings.Contains(styled, glyph) {
			t.Errorf("styled bar missing %q: %q", glyph, styled)
		}
	}
	if plain := (PlainStyler{}).Style(bar); plain != bar.Text {
		t.Errorf("PlainStyler changed text: %q", plain)
	}
}
