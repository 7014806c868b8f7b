package summary

import (
	"strings"
	"testing"

	"github.com/jackzampolin/lexshelf/internal/prompts"
	"github.com/jackzampolin/lexshelf/internal/providers"
)

func TestRenderStructure(t *testing.T) {
	r := prompts.NewResolver(nil)
	RegisterPrompts(r)

	out, err := r.Render(StructureKey, StructureData{
		Title:         "Contracts",
		ChapterCount:  2,
		QuestionCount: 4,
		Chapters: []ChapterExcerpt{
			{Number: 1, Title: "Offer", Excerpt: "An offer is a manifestation..."},
			{Number: 2, Title: "Acceptance", Excerpt: "Acceptance must mirror..."},
		},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{`"Contracts"`, "## 1. Offer", "## 2. Acceptance", "4 multiple-choice"} {
		if !strings.Contains(out, want) {
			t.Errorf("structure prompt missing %q", want)
		}
	}

	cover, err := r.Render(CoverKey, CoverData{ChapterTitle: "Offer", ImagePrompt: "A handshake."})
	if err != nil || !strings.Contains(cover, "A handshake.") {
		t.Errorf("cover prompt = %q, %v", cover, err)
	}
	narration, err := r.Render(NarrationKey, NarrationData{Number: 1, Title: "Offer", Script: "Welcome."})
	if err != nil || !strings.HasPrefix(narration, "Chapter 1: Offer.") {
		t.Errorf("narration = %q, %v", narration, err)
	}
}

func TestStructureSchema(t *testing.T) {
	schema, err := providers.CompileSchema("chapter_structure", StructureSchemaJSON())
	if err != nil {
		t.Fatalf("CompileSchema() error = %v", err)
	}
	validate := schema.Validator()

	valid := "```json\n" + `{"chapters":[{"number":1,"title":"Offer","summary":"s","keyPoints":["k"],
		"citations":[],"practiceExamples":[{"scenario":"x"}],"imagePrompt":"i","narrationScript":"n"}],
		"questions":[{"prompt":"q","options":["a","b"],"answerIndex":0}]}` + "\n```"
	if err := validate(valid); err != nil {
		t.Errorf("valid output rejected: %v", err)
	}

	nulls := `{"chapters":[{"number":1,"title":"Offer","summary":"s","keyPoints":["k"],
		"citations":null,"practiceExamples":null,"imagePrompt":null,"narrationScript":null}],
		"questions":[{"prompt":"q","options":["a","b"],"answerIndex":0,"explanation":null}]}`
	if err := validate(nulls); err != nil {
		t.Errorf("null optional fields rejected: %v", err)
	}

	tests := map[string]string{
		"no chapters":     `{"chapters":[],"questions":[]}`,
		"missing summary": `{"chapters":[{"number":1,"title":"Offer","keyPoints":[]}],"questions":[]}`,
		"not json":        `Here is your summary of the book.`,
	}
	for name, output := range tests {
		if err := validate(output); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
