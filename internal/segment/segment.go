// Package segment slices OCR page captures into chapters using a
// table-of-contents index whose page numbering may not match the scan.
package segment

import (
	"log/slog"
	"sort"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// FallbackTitle names the single chapter used when a work has no usable index.
const FallbackTitle = "Content"

// Segmenter builds chapters from source pages and an index.
type Segmenter struct {
	logger *slog.Logger
}

// New creates a segmenter. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{logger: logger}
}

// Segment returns chapters in document order. It never fails: a missing or
// unusable index degrades to a single chapter spanning every page.
func (s *Segmenter) Segment(pages []types.SourcePage, index []types.ChapterIndexEntry) []types.Chapter {
	pages = CleanPages(pages)
	if len(pages) == 0 {
		s.logger.Warn("no source pages with content")
		return nil
	}

	if len(index) == 0 {
		s.logger.Info("no chapter index, using single chapter", "pages", len(pages))
		return []types.Chapter{wholeBook(pages)}
	}

	entries, offset := NormalizeIndex(pages, index)
	if offset != 0 {
		s.logger.Info("normalized chapter index page numbers", "offset", offset, "entries", len(entries))
	}

	lastPage := pages[len(pages)-1].PageNumber
	var chapters []types.Chapter
	for i, entry := range entries {
		end := lastPage
		if i+1 < len(entries) {
			end = entries[i+1].StartPage - 1
		}

		inRange := pagesInRange(pages, entry.StartPage, end)
		if len(inRange) == 0 {
			s.logger.Warn("dropping chapter with no pages",
				"chapter", entry.Number,
				"title", entry.Title,
				"start_page", entry.StartPage,
				"end_page", end)
			continue
		}

		chapters = append(chapters, types.Chapter{
			Number:    entry.Number,
			Title:     entry.Title,
			StartPage: entry.StartPage,
			EndPage:   end,
			Content:   joinRange(inRange),
		})
	}

	if len(chapters) == 0 {
		s.logger.Warn("chapter index matched no pages, using single chapter", "entries", len(entries))
		return []types.Chapter{wholeBook(pages)}
	}
	return chapters
}

// NormalizeIndex shifts every entry so the smallest start page equals the
// smallest scanned page number, then sorts by start page. Entries without a
// number are numbered by their sorted position. It returns the applied offset.
func NormalizeIndex(pages []types.SourcePage, index []types.ChapterIndexEntry) ([]types.ChapterIndexEntry, int) {
	if len(pages) == 0 || len(index) == 0 {
		return append([]types.ChapterIndexEntry(nil), index...), 0
	}

	minPage := pages[0].PageNumber
	for _, p := range pages {
		if p.PageNumber < minPage {
			minPage = p.PageNumber
		}
	}
	minStart := index[0].StartPage
	for _, e := range index {
		if e.StartPage < minStart {
			minStart = e.StartPage
		}
	}
	offset := minPage - minStart

	entries := make([]types.ChapterIndexEntry, len(index))
	for i, e := range index {
		e.StartPage += offset
		entries[i] = e
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartPage < entries[j].StartPage
	})
	for i := range entries {
		if entries[i].Number == 0 {
			entries[i].Number = i + 1
		}
	}
	return entries, offset
}

func wholeBook(pages []types.SourcePage) types.Chapter {
	return types.Chapter{
		Number:    1,
		Title:     FallbackTitle,
		StartPage: pages[0].PageNumber,
		EndPage:   pages[len(pages)-1].PageNumber,
		Content:   joinRange(pages),
	}
}

// pagesInRange returns the sorted pages with start <= pageNumber <= end.
func pagesInRange(pages []types.SourcePage, start, end int) []types.SourcePage {
	if end < start {
		return nil
	}
	lo := sort.Search(len(pages), func(i int) bool { return pages[i].PageNumber >= start })
	hi := sort.Search(len(pages), func(i int) bool { return pages[i].PageNumber > end })
	return pages[lo:hi]
}

func joinRange(pages []types.SourcePage) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.RawText
	}
	return JoinPages(texts)
}

func sortPages(pages []types.SourcePage) {
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})
}
