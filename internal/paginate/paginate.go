// Package paginate splits formatted chapter text into fixed-size virtual
// pages for on-screen reading.
//
// Cuts prefer paragraph breaks, then sentence ends, then whitespace, and only
// hard-cut when a single run of text is longer than a page. A heading that
// would end up at the bottom of a page is pushed to the top of the next one.
package paginate

import (
	"strings"
	"unicode"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// DefaultPageSize is the target page size in runes.
const DefaultPageSize = 1800

const (
	// Paragraph and sentence cuts are only taken past this fraction of the page.
	minCutFraction = 0.5
	// A trailing heading is only moved if it starts past this fraction of the page.
	headingMinFraction = 0.4
	orphanScanLines    = 3
)

var commonAbbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "st": {}, "vs": {},
	"v": {}, "etc": {}, "no": {}, "inc": {}, "ltd": {}, "co": {}, "corp": {},
	"cf": {}, "id": {}, "e.g": {}, "i.e": {}, "u.s": {}, "u.k": {}, "art": {},
	"sec": {}, "para": {}, "ch": {}, "p": {}, "pp": {}, "supp": {}, "cir": {},
}

// Split breaks text into pages of at most size runes. Each page is trimmed;
// only whitespace at cut points is dropped.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultPageSize
	}

	rest := []rune(strings.TrimSpace(text))
	var pages []string
	for len(rest) > 0 {
		if len(rest) <= size {
			pages = append(pages, string(rest))
			break
		}

		cut := findCut(rest, size)
		if moved := orphanHeadingCut(rest, cut, size); moved > 0 {
			cut = moved
		}

		if page := strings.TrimSpace(string(rest[:cut])); page != "" {
			pages = append(pages, page)
		}
		rest = trimLeftSpace(rest[cut:])
	}
	return pages
}

// findCut returns the rune offset to end the next page at. text is longer than size.
func findCut(text []rune, size int) int {
	minCut := int(float64(size) * minCutFraction)

	if p := lastParagraphBreak(text, size); p >= minCut && p > 0 {
		return p
	}
	if p := lastSentenceEnd(text, size); p >= minCut && p > 0 {
		return p
	}
	if p := lastWhitespace(text, size); p > 0 {
		return p
	}
	return size
}

// lastParagraphBreak returns the offset of the last blank line starting at or before size.
func lastParagraphBreak(text []rune, size int) int {
	for i := min(size, len(text)-2); i >= 0; i-- {
		if text[i] == '\n' && text[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// lastSentenceEnd returns the offset just past the last sentence-ending
// punctuation before size, or -1.
func lastSentenceEnd(text []rune, size int) int {
	for i := min(size, len(text)) - 1; i >= 0; i-- {
		if !isSentencePunctuation(text[i]) {
			continue
		}
		end := i + 1
		for end < len(text) && end < size && isClosingPunctuation(text[end]) {
			end++
		}
		if end >= len(text) || !unicode.IsSpace(text[end]) {
			continue
		}
		if text[i] == '.' && shouldSkipPeriod(text, i) {
			continue
		}
		return end
	}
	return -1
}

// lastWhitespace returns the offset of the last whitespace rune at or before size.
func lastWhitespace(text []rune, size int) int {
	for i := min(size, len(text)-1); i > 0; i-- {
		if unicode.IsSpace(text[i]) {
			return i
		}
	}
	return -1
}

// orphanHeadingCut inspects the last lines of the candidate page text[:cut]
// and returns the offset of the earliest trailing heading past the minimum
// position, or -1. Lines are judged in full, including any part past the cut.
func orphanHeadingCut(text []rune, cut, size int) int {
	minPos := int(float64(size) * headingMinFraction)
	moved := -1
	for _, line := range trailingLines(text[:cut], orphanScanLines) {
		if line.start <= minPos || !IsHeading(lineAt(text, line.start)) {
			continue
		}
		if moved < 0 || line.start < moved {
			moved = line.start
		}
	}
	return moved
}

func shouldSkipPeriod(text []rune, idx int) bool {
	// Ellipsis
	if idx > 0 && text[idx-1] == '.' {
		return true
	}

	start := idx - 1
	for start >= 0 && !unicode.IsSpace(text[start]) && text[start] != '(' {
		start--
	}
	token := strings.ToLower(string(text[start+1 : idx]))
	if token == "" {
		return false
	}
	// Initials such as "J."
	if r := []rune(token); len(r) == 1 && unicode.IsLetter(r[0]) {
		return true
	}
	_, ok := commonAbbreviations[token]
	return ok
}

func isSentencePunctuation(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClosingPunctuation(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

func trimLeftSpace(r []rune) []rune {
	i := 0
	for i < len(r) && unicode.IsSpace(r[i]) {
		i++
	}
	return r[i:]
}

// Options controls how formatted chapters are laid out as virtual pages.
type Options struct {
	PageSize int
	// CoverImages maps chapter number to a cover image URL shown on the
	// chapter's first page.
	CoverImages map[int]string
}

// Build paginates chapters in document order and numbers pages globally from 1.
// The first page of each chapter carries the chapter's title, number and cover.
func Build(chapters []types.FormattedChapter, opts Options) []types.VirtualPage {
	var pages []types.VirtualPage
	for _, ch := range chapters {
		for i, content := range Split(ch.Content, opts.PageSize) {
			page := types.VirtualPage{
				PageNumber: len(pages) + 1,
				Content:    content,
			}
			if i == 0 {
				number := ch.Number
				page.IsChapterStart = true
				page.ChapterTitle = ch.Title
				page.ChapterNumber = &number
				page.CoverImageURL = opts.CoverImages[ch.Number]
			}
			pages = append(pages, page)
		}
	}
	return pages
}
