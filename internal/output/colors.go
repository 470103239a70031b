package output

import (
	"github.com/fatih/color"

	"github.com/wesleyorama2/formload/internal/transaction"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Border       *color.Color
	Title        *color.Color
	Label        *color.Color
	Value        *color.Color
	Latency      *color.Color
	Phase        *color.Color
	Dim          *color.Color
	Pass         *color.Color
	Warn         *color.Color
	Fail         *color.Color
	Inconclusive *color.Color
}

// DefaultColorScheme returns the default color scheme. Colors follow the
// global color.NoColor switch of fatih/color.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Border:       color.New(color.FgCyan),
		Title:        color.New(color.Bold),
		Label:        color.New(color.Bold),
		Value:        color.New(color.FgCyan),
		Latency:      color.New(color.FgBlue),
		Phase:        color.New(color.FgMagenta),
		Dim:          color.New(color.Faint),
		Pass:         color.New(color.FgGreen),
		Warn:         color.New(color.FgYellow),
		Fail:         color.New(color.FgRed),
		Inconclusive: color.New(color.FgYellow, color.Bold),
	}
}

// ForcedColorScheme returns the default scheme with colors on regardless of
// the terminal.
func ForcedColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Border, s.Title, s.Label, s.Value, s.Latency, s.Phase,
		s.Dim, s.Pass, s.Warn, s.Fail, s.Inconclusive,
	}
}

// Outcome returns the color of an outcome.
func (s *ColorScheme) Outcome(o transaction.Outcome) *color.Color {
	switch o {
	case transaction.OutcomePass:
		return s.Pass
	case transaction.OutcomeInconclusive:
		return s.Inconclusive
	default:
		return s.Fail
	}
}

// Rate colors a failure rate: green up to 1%, yellow up to 5%, red above.
func (s *ColorScheme) Rate(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Fail
	case rate > 0.01:
		return s.Warn
	default:
		return s.Pass
	}
}

// OutcomeIcon returns the symbol of an outcome.
func OutcomeIcon(o transaction.Outcome) string {
	switch o {
	case transaction.OutcomePass:
		return "✓"
	case transaction.OutcomeInconclusive:
		return "?"
	default:
		return "✗"
	}
}
