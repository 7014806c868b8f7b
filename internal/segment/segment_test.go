package segment

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jackzampolin/lexshelf/internal/types"
)

func makePages(from, to int) []types.SourcePage {
	var pages []types.SourcePage
	for n := from; n <= to; n++ {
		pages = append(pages, types.SourcePage{
			PageNumber: n,
			RawText:    fmt.Sprintf("Body text of scan %d.", n),
		})
	}
	return pages
}

func TestSegment_IndexOffset(t *testing.T) {
	pages := makePages(6, 50)
	index := []types.ChapterIndexEntry{
		{Number: 1, Title: "Formation", StartPage: 1},
		{Number: 2, Title: "Consideration", StartPage: 5},
		{Number: 3, Title: "Remedies", StartPage: 12},
	}

	chapters := New(nil).Segment(pages, index)
	if len(chapters) != 3 {
		t.Fatalf("len(chapters) = %d, want 3", len(chapters))
	}

	want := []struct{ start, end int }{{6, 9}, {10, 16}, {17, 50}}
	for i, w := range want {
		if chapters[i].StartPage != w.start || chapters[i].EndPage != w.end {
			t.Errorf("chapter %d range = %d-%d, want %d-%d",
				i+1, chapters[i].StartPage, chapters[i].EndPage, w.start, w.end)
		}
	}

	// Relative spacing of the original index is preserved.
	if chapters[1].StartPage-chapters[0].StartPage != 4 {
		t.Errorf("spacing between chapters 1 and 2 = %d, want 4", chapters[1].StartPage-chapters[0].StartPage)
	}
	if !strings.Contains(chapters[0].Content, "scan 6.") || strings.Contains(chapters[0].Content, "scan 10.") {
		t.Errorf("chapter 1 content has wrong pages: %q", chapters[0].Content)
	}
}

func TestSegment_NoIndex(t *testing.T) {
	chapters := New(nil).Segment(makePages(3, 7), nil)
	if len(chapters) != 1 {
		t.Fatalf("len(chapters) = %d, want 1", len(chapters))
	}
	ch := chapters[0]
	if ch.Title != FallbackTitle || ch.Number != 1 {
		t.Errorf("chapter = %d %q, want 1 %q", ch.Number, ch.Title, FallbackTitle)
	}
	if ch.StartPage != 3 || ch.EndPage != 7 {
		t.Errorf("range = %d-%d, want 3-7", ch.StartPage, ch.EndPage)
	}
}

func TestSegment_DropsEmptyChapters(t *testing.T) {
	pages := makePages(1, 10)

	t.Run("duplicate start", func(t *testing.T) {
		index := []types.ChapterIndexEntry{
			{Number: 1, Title: "One", StartPage: 1},
			{Number: 2, Title: "Two", StartPage: 6},
			{Number: 3, Title: "Three", StartPage: 6},
		}
		chapters := New(nil).Segment(pages, index)
		if len(chapters) != 2 {
			t.Fatalf("len(chapters) = %d, want 2", len(chapters))
		}
		if chapters[1].Title != "Three" || chapters[1].StartPage != 6 || chapters[1].EndPage != 10 {
			t.Errorf("chapter 2 = %+v", chapters[1])
		}
	})

	t.Run("past last page", func(t *testing.T) {
		index := []types.ChapterIndexEntry{
			{Number: 1, Title: "One", StartPage: 1},
			{Number: 2, Title: "Appendix", StartPage: 40},
		}
		chapters := New(nil).Segment(pages, index)
		if len(chapters) != 1 {
			t.Fatalf("len(chapters) = %d, want 1", len(chapters))
		}
		if chapters[0].EndPage != 39 {
			t.Errorf("EndPage = %d, want 39", chapters[0].EndPage)
		}
	})
}

func TestSegment_UnsortedIndexAndPages(t *testing.T) {
	pages := makePages(1, 9)
	pages[0], pages[8] = pages[8], pages[0]
	index := []types.ChapterIndexEntry{
		{Number: 2, Title: "Second", StartPage: 5},
		{Number: 1, Title: "First", StartPage: 1},
	}

	chapters := New(nil).Segment(pages, index)
	if len(chapters) != 2 {
		t.Fatalf("len(chapters) = %d, want 2", len(chapters))
	}
	if chapters[0].Title != "First" || chapters[0].EndPage != 4 {
		t.Errorf("chapter 1 = %+v", chapters[0])
	}
	if chapters[1].Title != "Second" || chapters[1].EndPage != 9 {
		t.Errorf("chapter 2 = %+v", chapters[1])
	}
}

func TestSegment_EmptyPages(t *testing.T) {
	pages := []types.SourcePage{{PageNumber: 1, RawText: "   "}, {PageNumber: 2, RawText: "\n12\n"}}
	if chapters := New(nil).Segment(pages, nil); chapters != nil {
		t.Errorf("chapters = %+v, want nil", chapters)
	}
}

func TestNormalizeIndex(t *testing.T) {
	pages := makePages(6, 20)
	index := []types.ChapterIndexEntry{
		{Title: "B", StartPage: 5},
		{Title: "A", StartPage: 1},
	}

	entries, offset := NormalizeIndex(pages, index)
	if offset != 5 {
		t.Errorf("offset = %d, want 5", offset)
	}
	if entries[0].Title != "A" || entries[0].StartPage != 6 || entries[0].Number != 1 {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Title != "B" || entries[1].StartPage != 10 || entries[1].Number != 2 {
		t.Errorf("entries[1] = %+v", entries[1])
	}
	if index[0].StartPage != 5 {
		t.Error("NormalizeIndex modified its input")
	}
}

func TestCleanPages(t *testing.T) {
	pages := []types.SourcePage{
		{PageNumber: 1, RawText: "Contracts in Practice\nFirst page body.\n1"},
		{PageNumber: 2, RawText: "**2 / Contracts in Practice**\nSecond page body.\n- 2 -"},
		{PageNumber: 3, RawText: "Contracts in Practice\nThird page body.\niii"},
		{PageNumber: 4, RawText: "Contracts in Practice\n\n"},
	}

	cleaned := CleanPages(pages)
	if len(cleaned) != 3 {
		t.Fatalf("len(cleaned) = %d, want 3 (empty page dropped)", len(cleaned))
	}
	for i, want := range []string{"First page body.", "Second page body.", "Third page body."} {
		if cleaned[i].RawText != want {
			t.Errorf("page %d = %q, want %q", i+1, cleaned[i].RawText, want)
		}
	}
}

func TestJoinPages(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  string
	}{
		{"hyphenation", []string{"the agree-", "ment was signed."}, "the agreement was signed."},
		{"sentence end", []string{"It ended.", "A new one."}, "It ended.\n\nA new one."},
		{"mid sentence", []string{"the parties", "agreed"}, "the parties agreed"},
		{"dash kept after capital", []string{"Part A-", "continued"}, "Part A- continued"},
		{"skips empty", []string{"One.", "", "Two."}, "One.\n\nTwo."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinPages(tt.pages); got != tt.want {
				t.Errorf("JoinPages() = %q, want %q", got, tt.want)
			}
		})
	}
}
