package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// Persisted chapter arrays are checked for their required fields only.
// Optional fields may be absent and are defaulted by Normalize.
const chapterArraySchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["title"],
    "properties": {
      "number": {"type": "integer"},
      "title": {"type": "string"},
      "startPage": {"type": "integer"},
      "endPage": {"type": "integer"},
      "keyPoints": {"type": ["array", "null"], "items": {"type": "string"}},
      "citations": {"type": ["array", "null"], "items": {"type": "string"}},
      "practiceExamples": {"type": ["array", "null"]},
      "mediaAttempted": {"type": "boolean"}
    }
  }
}`

const questionArraySchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["prompt"],
    "properties": {
      "prompt": {"type": "string"},
      "options": {"type": ["array", "null"], "items": {"type": "string"}},
      "answerIndex": {"type": "integer"}
    }
  }
}`

var (
	chapterShape  = mustCompile("chapter_structure.json", chapterArraySchema)
	questionShape = mustCompile("questions.json", questionArraySchema)
)

func mustCompile(url, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("load %s: %v", url, err))
	}
	return compiler.MustCompile(url)
}

func validateShape(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

// decodeJob validates and decodes the JSON columns of a job row, then
// defaults missing optional fields.
func decodeJob(job *types.GenerationJobState, chapters, questions []byte) error {
	if err := validateShape(chapterShape, chapters); err != nil {
		return fmt.Errorf("%w: chapter structure: %v", ErrCorrupt, err)
	}
	if err := validateShape(questionShape, questions); err != nil {
		return fmt.Errorf("%w: questions: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(chapters, &job.ChapterStructure); err != nil {
		return fmt.Errorf("%w: chapter structure: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(questions, &job.Questions); err != nil {
		return fmt.Errorf("%w: questions: %v", ErrCorrupt, err)
	}
	job.Normalize()
	return nil
}

type workAccumulator map[string]*WorkSummary

func newWorkAccumulator() workAccumulator {
	return make(workAccumulator)
}

func (a workAccumulator) get(id string) *WorkSummary {
	w, ok := a[id]
	if !ok {
		w = &WorkSummary{WorkID: id}
		a[id] = w
	}
	return w
}

func (a workAccumulator) list() []WorkSummary {
	out := make([]WorkSummary, 0, len(a))
	for _, w := range a {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkID < out[j].WorkID })
	return out
}
