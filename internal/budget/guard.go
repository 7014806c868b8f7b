package budget

import (
	"fmt"
	"unicode/utf8"
)

// DefaultThreshold is the minimum accepted ratio of rewritten to original length.
const DefaultThreshold = 0.85

// Guard rejects rewrites that lost too much text.
type Guard struct {
	Threshold float64
}

// Preserve returns the text to keep. When the rewrite is shorter than
// Threshold of the original, the original is returned and kept is false.
// rate is rewritten/original measured in runes.
func (g Guard) Preserve(original, rewritten string) (text string, kept bool, rate float64) {
	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	in := utf8.RuneCountInString(original)
	out := utf8.RuneCountInString(rewritten)
	if in == 0 {
		return original, false, 1
	}
	rate = float64(out) / float64(in)
	if rate < threshold {
		return original, false, rate
	}
	return rewritten, true, rate
}

// FormatRate renders a ratio as a percentage with one decimal, e.g. "97.3%".
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

// Rate returns out/in, or 1 when nothing was processed.
func Rate(in, out int) float64 {
	if in == 0 {
		return 1
	}
	return float64(out) / float64(in)
}
