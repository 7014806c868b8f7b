package summary

import (
	"encoding/json"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// StructureSchema is the JSON schema for the structure call output.
var StructureSchema = map[string]any{
	"name":   "chapter_structure",
	"strict": true,
	"schema": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chapters": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"number":  map[string]any{"type": "integer", "minimum": 1},
						"title":   map[string]any{"type": "string"},
						"summary": map[string]any{"type": "string", "minLength": 1},
						"keyPoints": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"citations": map[string]any{
							"type":  []string{"array", "null"},
							"items": map[string]any{"type": "string"},
						},
						"practiceExamples": map[string]any{
							"type": []string{"array", "null"},
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"scenario": map[string]any{"type": "string"},
									"analysis": map[string]any{"type": []string{"string", "null"}},
								},
								"required": []string{"scenario"},
							},
						},
						"imagePrompt":     map[string]any{"type": []string{"string", "null"}},
						"narrationScript": map[string]any{"type": []string{"string", "null"}},
					},
					"required": []string{"number", "title", "summary", "keyPoints"},
				},
			},
			"questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"chapterNumber": map[string]any{"type": "integer"},
						"prompt":        map[string]any{"type": "string", "minLength": 1},
						"options": map[string]any{
							"type":     "array",
							"minItems": 2,
							"items":    map[string]any{"type": "string"},
						},
						"answerIndex": map[string]any{"type": "integer", "minimum": 0},
						"explanation": map[string]any{"type": []string{"string", "null"}},
					},
					"required": []string{"prompt", "options", "answerIndex"},
				},
			},
		},
		"required": []string{"chapters", "questions"},
	},
}

// StructureSchemaJSON returns StructureSchema encoded as JSON.
func StructureSchemaJSON() json.RawMessage {
	b, err := json.Marshal(StructureSchema)
	if err != nil {
		panic(err)
	}
	return b
}

// ChapterSummary is one chapter of the structure call output.
type ChapterSummary struct {
	Number           int                     `json:"number"`
	Title            string                  `json:"title"`
	Summary          string                  `json:"summary"`
	KeyPoints        []string                `json:"keyPoints"`
	Citations        []string                `json:"citations"`
	PracticeExamples []types.PracticeExample `json:"practiceExamples"`
	ImagePrompt      string                  `json:"imagePrompt"`
	NarrationScript  string                  `json:"narrationScript"`
}

// Result is the parsed structure call output.
type Result struct {
	Chapters  []ChapterSummary `json:"chapters"`
	Questions []types.Question `json:"questions"`
}
