package segment

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jackzampolin/lexshelf/internal/types"
)

const (
	// A first line repeated on at least this many pages is a running header.
	runningHeaderMinPages = 3
	runningHeaderMaxChars = 80
	headerScanLines       = 3
)

// CleanPages strips OCR boilerplate (running headers, standalone page numbers)
// from every page and drops pages left empty. The result is sorted by page number.
func CleanPages(pages []types.SourcePage) []types.SourcePage {
	headers := detectRunningHeaders(pages)

	out := make([]types.SourcePage, 0, len(pages))
	for _, p := range pages {
		text := CleanPageText(p.RawText, headers)
		if text == "" {
			continue
		}
		out = append(out, types.SourcePage{PageNumber: p.PageNumber, RawText: text})
	}
	sortPages(out)
	return out
}

// CleanPageText mechanically cleans a page's text by removing running headers
// and page-number lines near the top or bottom of the page.
// Common patterns:
// - "**6 / Contracts in Practice**" (page number / running header)
// - "Contracts in Practice / 6"
// - "- 6 -" or just "6" on its own line
func CleanPageText(raw string, headers map[string]bool) string {
	text := norm.NFC.String(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	first, last := boundaryLines(lines, headerScanLines)
	var kept []string
	for i, line := range lines {
		if (first[i] || last[i]) && isBoilerplateLine(line, headers) {
			continue
		}
		kept = append(kept, strings.TrimRightFunc(line, unicode.IsSpace))
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// boundaryLines marks the first and last n non-empty lines.
func boundaryLines(lines []string, n int) (first, last map[int]bool) {
	first = make(map[int]bool)
	last = make(map[int]bool)
	for i, seen := 0, 0; i < len(lines) && seen < n; i++ {
		if strings.TrimSpace(lines[i]) != "" {
			first[i] = true
			seen++
		}
	}
	for i, seen := len(lines)-1, 0; i >= 0 && seen < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last[i] = true
			seen++
		}
	}
	return first, last
}

func isBoilerplateLine(line string, headers map[string]bool) bool {
	plain := plainLine(line)
	if plain == "" {
		return false
	}
	if isPageNumber(plain) {
		return true
	}
	if headers[strings.ToLower(plain)] {
		return true
	}

	// "6 / Title" or "Title / 6"
	if parts := strings.Split(plain, "/"); len(parts) == 2 {
		p1 := strings.TrimSpace(parts[0])
		p2 := strings.TrimSpace(parts[1])
		if isNumeric(p1) && headers[strings.ToLower(p2)] {
			return true
		}
		if isNumeric(p2) && headers[strings.ToLower(p1)] {
			return true
		}
	}
	return false
}

// isPageNumber matches "12", "- 12 -", "Page 12" and roman numerals on their own line.
func isPageNumber(plain string) bool {
	s := strings.Trim(plain, "-–— ")
	lower := strings.ToLower(s)
	lower = strings.TrimPrefix(lower, "page ")
	lower = strings.TrimPrefix(lower, "p. ")
	if lower == "" {
		return false
	}
	return isNumeric(lower) || romanPattern.MatchString(lower)
}

// detectRunningHeaders returns lowercased first lines that repeat across pages.
func detectRunningHeaders(pages []types.SourcePage) map[string]bool {
	counts := make(map[string]int)
	for _, p := range pages {
		for _, line := range strings.Split(p.RawText, "\n") {
			plain := plainLine(line)
			if plain == "" {
				continue
			}
			if len([]rune(plain)) <= runningHeaderMaxChars && !isNumeric(plain) {
				counts[strings.ToLower(plain)]++
			}
			break
		}
	}

	headers := make(map[string]bool)
	for line, n := range counts {
		if n >= runningHeaderMinPages {
			headers[line] = true
		}
	}
	return headers
}

// plainLine strips whitespace and markdown emphasis markers.
func plainLine(line string) string {
	plain := strings.TrimSpace(line)
	plain = strings.ReplaceAll(plain, "**", "")
	plain = strings.ReplaceAll(plain, "*", "")
	plain = strings.ReplaceAll(plain, "__", "")
	return strings.TrimSpace(plain)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var romanPattern = regexp.MustCompile(`^m{0,3}(cm|cd|d?c{0,3})(xc|xl|l?x{0,3})(ix|iv|v?i{0,3})$`)

// JoinPages joins cleaned page texts, handling continuations across page breaks.
//
// Continuation detection:
// - Page ends with hyphen after a lowercase letter: join without space (de-hyphenate)
// - Page ends with a sentence: join with a paragraph break
// - Page ends mid-sentence: join with a space
func JoinPages(pageTexts []string) string {
	var parts []string
	for _, text := range pageTexts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if len(parts) == 0 {
			parts = append(parts, text)
			continue
		}

		prev := parts[len(parts)-1]
		switch determineJoin(prev) {
		case joinHyphen:
			parts[len(parts)-1] = strings.TrimSuffix(prev, "-")
			parts = append(parts, text)
		case joinParagraph:
			parts = append(parts, "\n\n"+text)
		default:
			parts = append(parts, " "+text)
		}
	}
	return strings.Join(parts, "")
}

type joinKind int

const (
	joinSpace joinKind = iota
	joinHyphen
	joinParagraph
)

// determineJoin decides how the next page attaches to prevText.
func determineJoin(prevText string) joinKind {
	stripped := strings.TrimRightFunc(prevText, unicode.IsSpace)
	if stripped == "" {
		return joinParagraph
	}

	// Use runes for proper Unicode handling (e.g., accented characters)
	runes := []rune(stripped)
	last := runes[len(runes)-1]
	if last == '-' && len(runes) >= 2 && unicode.IsLower(runes[len(runes)-2]) {
		return joinHyphen
	}
	if strings.ContainsRune(".!?:\"'”’)", last) {
		return joinParagraph
	}
	return joinSpace
}
