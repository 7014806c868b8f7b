package types

import "time"

// Phase is the summary pipeline state for one work.
type Phase string

const (
	PhaseUninitialized      Phase = "uninitialized"
	PhaseStructureGenerated Phase = "structure_generated"
	PhaseInProgress         Phase = "in_progress"
	PhaseComplete           Phase = "complete"
)

// GenerationJobState is the persisted resumption record for the summary pipeline.
// It is the single source of truth across invocations.
type GenerationJobState struct {
	WorkID            string     `json:"workId"`
	Title             string     `json:"title,omitempty"`
	ChapterStructure  []Chapter  `json:"chapterStructure"`
	TotalChapters     int        `json:"totalChapters"`
	ChaptersGenerated int        `json:"chaptersGenerated"`
	Questions         []Question `json:"questions"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Phase derives the state machine position from the persisted record.
// A nil state is uninitialized.
func (s *GenerationJobState) Phase() Phase {
	switch {
	case s == nil:
		return PhaseUninitialized
	case s.ChaptersGenerated >= s.TotalChapters:
		return PhaseComplete
	case s.ChaptersGenerated == 0:
		return PhaseStructureGenerated
	default:
		return PhaseInProgress
	}
}

// Complete reports whether every chapter has been processed.
func (s *GenerationJobState) Complete() bool {
	return s.Phase() == PhaseComplete
}

// FirstUnattempted returns the index of the first chapter whose media has not
// been attempted, or -1 if all have.
func (s *GenerationJobState) FirstUnattempted() int {
	for i := range s.ChapterStructure {
		if !s.ChapterStructure[i].MediaAttempted {
			return i
		}
	}
	return -1
}

// AttemptedBefore counts attempted chapters with index < end.
func (s *GenerationJobState) AttemptedBefore(end int) int {
	if end > len(s.ChapterStructure) {
		end = len(s.ChapterStructure)
	}
	n := 0
	for i := 0; i < end; i++ {
		if s.ChapterStructure[i].MediaAttempted {
			n++
		}
	}
	return n
}

// Normalize defaults optional fields after a read from persistence so callers
// never see nil slices or an inconsistent chapter count.
func (s *GenerationJobState) Normalize() {
	if s.ChapterStructure == nil {
		s.ChapterStructure = []Chapter{}
	}
	if s.Questions == nil {
		s.Questions = []Question{}
	}
	for i := range s.ChapterStructure {
		ch := &s.ChapterStructure[i]
		if ch.Number == 0 {
			ch.Number = i + 1
		}
		if ch.KeyPoints == nil {
			ch.KeyPoints = []string{}
		}
		if ch.Citations == nil {
			ch.Citations = []string{}
		}
		if ch.PracticeExamples == nil {
			ch.PracticeExamples = []PracticeExample{}
		}
	}
	for i := range s.Questions {
		if s.Questions[i].Options == nil {
			s.Questions[i].Options = []string{}
		}
	}
	if s.TotalChapters <= 0 || s.TotalChapters > len(s.ChapterStructure) {
		s.TotalChapters = len(s.ChapterStructure)
	}
	if s.ChaptersGenerated < 0 {
		s.ChaptersGenerated = 0
	}
	if s.ChaptersGenerated > s.TotalChapters {
		s.ChaptersGenerated = s.TotalChapters
	}
}
