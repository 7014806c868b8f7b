// Package types provides shared types used across multiple packages.
// This package has no dependencies on other lexshelf packages to avoid import cycles.
package types

// SourcePage is one physically scanned page as captured by OCR.
type SourcePage struct {
	PageNumber int    `json:"pageNumber"`
	RawText    string `json:"rawText"`
}

// ChapterIndexEntry is one table-of-contents row. StartPage may use the
// printed book's numbering rather than the scan numbering.
type ChapterIndexEntry struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	StartPage int    `json:"startPage"`
}

// Chapter is a contiguous run of source pages sharing one index entry.
// Summary and media fields are filled in by the summary pipeline.
type Chapter struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	StartPage int    `json:"startPage"`
	EndPage   int    `json:"endPage"`
	Content   string `json:"content,omitempty"`

	Summary          string            `json:"summary,omitempty"`
	KeyPoints        []string          `json:"keyPoints"`
	Citations        []string          `json:"citations"`
	PracticeExamples []PracticeExample `json:"practiceExamples"`
	ImagePrompt      string            `json:"imagePrompt,omitempty"`
	NarrationScript  string            `json:"narrationScript,omitempty"`

	ImageURL       string `json:"imageUrl,omitempty"`
	AudioURL       string `json:"audioUrl,omitempty"`
	MediaAttempted bool   `json:"mediaAttempted"`
}

// PracticeExample is a worked hypothetical attached to a chapter summary.
type PracticeExample struct {
	Scenario string `json:"scenario"`
	Analysis string `json:"analysis,omitempty"`
}

// Question is a review question generated alongside the chapter structure.
type Question struct {
	ChapterNumber int      `json:"chapterNumber"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	AnswerIndex   int      `json:"answerIndex"`
	Explanation   string   `json:"explanation,omitempty"`
}

// VirtualPage is a fixed-size unit of formatted text for on-screen reading.
type VirtualPage struct {
	PageNumber     int    `json:"pageNumber"`
	Content        string `json:"content"`
	IsChapterStart bool   `json:"isChapterStart"`
	ChapterTitle   string `json:"chapterTitle,omitempty"`
	ChapterNumber  *int   `json:"chapterNumber,omitempty"`
	CoverImageURL  string `json:"coverImageUrl,omitempty"`
}

// FormattedChapter is a chapter whose text has been cleaned (and optionally
// rewritten) for pagination.
type FormattedChapter struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	StartPage   int    `json:"startPage"`
	EndPage     int    `json:"endPage"`
	Content     string `json:"content"`
	InputChars  int    `json:"inputChars"`
	OutputChars int    `json:"outputChars"`
	Rewritten   bool   `json:"rewritten"`
}

// ProviderKey is one credential in a provider's pool.
type ProviderKey struct {
	Credential   string `json:"-"`
	ProviderName string `json:"providerName"`
}

// Label returns a log-safe identifier for the credential.
func (k ProviderKey) Label() string {
	c := k.Credential
	if len(c) <= 4 {
		return k.ProviderName + ":****"
	}
	return k.ProviderName + ":…" + c[len(c)-4:]
}
