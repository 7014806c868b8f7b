// Package summary holds the prompts and output schema of the summary pipeline.
package summary

import (
	_ "embed"

	"github.com/jackzampolin/lexshelf/internal/prompts"
)

//go:embed structure.tmpl
var structurePrompt string

//go:embed cover.tmpl
var coverPrompt string

//go:embed narration.tmpl
var narrationPrompt string

// Prompt keys. Underscores keep them usable as config map keys.
const (
	StructureKey = "summary_structure"
	CoverKey     = "summary_cover"
	NarrationKey = "summary_narration"
)

// StructureSystem is the system instruction for the structure call.
const StructureSystem = "You are a careful legal editor. You answer with a single JSON object that matches the requested schema."

// NarrationInstructions steer voice models that accept delivery instructions.
const NarrationInstructions = "Calm, clear lecture delivery. Pause briefly between ideas."

// StructureData fills structure.tmpl.
type StructureData struct {
	Title         string
	ChapterCount  int
	QuestionCount int
	Chapters      []ChapterExcerpt
}

// ChapterExcerpt is the slice of a chapter shown to the model.
type ChapterExcerpt struct {
	Number  int
	Title   string
	Excerpt string
}

// CoverData fills cover.tmpl.
type CoverData struct {
	ChapterTitle string
	ImagePrompt  string
}

// NarrationData fills narration.tmpl.
type NarrationData struct {
	Number int
	Title  string
	Script string
}

// RegisterPrompts registers the summary prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         StructureKey,
		Text:        structurePrompt,
		Description: "Whole-book chapter structure: summaries, key points, citations, practice examples, media prompts and review questions",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         CoverKey,
		Text:        coverPrompt,
		Description: "Chapter cover image prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         NarrationKey,
		Text:        narrationPrompt,
		Description: "Spoken text of a chapter audio overview",
	})
}
