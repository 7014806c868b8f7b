package paginate

import (
	"regexp"
	"strings"
	"unicode"
)

// headingPattern matches markdown headings (# through ######).
var headingPattern = regexp.MustCompile(`^#{1,6}\s+\S`)

// keywordPattern matches structural lines such as "Chapter 3", "PART II" or "Conclusion".
var keywordPattern = regexp.MustCompile(`(?i)^(chapter|section|part|article|unit|lesson|appendix|introduction|conclusion|summary|overview)\b`)

const (
	maxCapsHeadingRunes    = 60
	maxKeywordHeadingRunes = 80
)

// IsHeading reports whether a line reads like a title: markdown heading
// syntax, a short ALL-CAPS line, or a short line led by a structural keyword.
func IsHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if headingPattern.MatchString(line) {
		return true
	}

	n := len([]rune(line))
	if n <= maxKeywordHeadingRunes && keywordPattern.MatchString(line) {
		return true
	}
	return n <= maxCapsHeadingRunes && isAllCaps(line)
}

// isAllCaps needs no lowercase letters, a run of at least two consecutive
// letters, and letters making up most of the non-space runes. Citation lines
// such as "42 U.S.C. § 1983" fail the last two checks.
func isAllCaps(line string) bool {
	letters, other, run, longest := 0, 0, 0, 0
	for _, r := range line {
		switch {
		case unicode.IsLower(r):
			return false
		case unicode.IsLetter(r):
			letters++
			run++
			longest = max(longest, run)
			continue
		case !unicode.IsSpace(r):
			other++
		}
		run = 0
	}
	return longest >= 2 && letters > other
}

type lineSpan struct {
	start int
	text  string
}

// lineAt returns the line of text beginning at rune offset start.
func lineAt(text []rune, start int) string {
	end := start
	for end < len(text) && text[end] != '\n' {
		end++
	}
	return string(text[start:end])
}

// trailingLines returns up to n non-empty lines from the end of page, last
// line first. start is the rune offset of the line within page.
func trailingLines(page []rune, n int) []lineSpan {
	var out []lineSpan
	end := len(page)
	for i := len(page) - 1; i >= -1 && len(out) < n; i-- {
		if i >= 0 && page[i] != '\n' {
			continue
		}
		text := string(page[i+1 : end])
		if strings.TrimSpace(text) != "" {
			out = append(out, lineSpan{start: i + 1, text: text})
		}
		end = i
	}
	return out
}
