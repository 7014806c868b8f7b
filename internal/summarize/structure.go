package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/lexshelf/internal/prompts/summary"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/segment"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// structurePromptRunes bounds the excerpts of all chapters together.
const structurePromptRunes = 60000

// generateStructure segments the work and asks the text models for the
// whole chapter structure in one call. Page ranges and content come from the
// segmenter; the model contributes summaries, study material and media prompts.
func (o *Orchestrator) generateStructure(ctx context.Context, req Request, logger *slog.Logger) (*types.GenerationJobState, error) {
	pages, err := o.store.SourcePages(ctx, req.WorkID)
	if err != nil {
		return nil, fmt.Errorf("load source pages: %w", err)
	}
	index, err := o.store.ChapterIndex(ctx, req.WorkID)
	if err != nil {
		return nil, fmt.Errorf("load chapter index: %w", err)
	}

	chapters := o.segmenter.Segment(pages, index)
	if len(chapters) == 0 {
		return nil, ErrNoContent
	}

	// Without an index the model may split the single fallback chapter into
	// the number of chapters the caller expects.
	modelDefined := len(chapters) == 1 && chapters[0].Title == segment.FallbackTitle && req.ExpectedTotalChapters > 1
	chapterCount := len(chapters)
	if modelDefined {
		chapterCount = req.ExpectedTotalChapters
	} else if req.ExpectedTotalChapters > 0 && req.ExpectedTotalChapters != len(chapters) {
		logger.Warn("segmented chapter count differs from expected",
			"segmented", len(chapters), "expected", req.ExpectedTotalChapters)
	}

	title := req.Title
	if title == "" {
		title = req.WorkID
	}
	prompt, err := o.prompts.Render(summary.StructureKey, summary.StructureData{
		Title:         title,
		ChapterCount:  chapterCount,
		QuestionCount: o.questionCount(chapterCount),
		Chapters:      o.excerpts(chapters),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructureFailed, err)
	}

	result, err := o.client.GenerateText(ctx, &providers.TextRequest{
		System:      summary.StructureSystem,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   16384,
		JSONSchema:  o.schema.Raw(),
		Validate:    o.schema.Validator(),
	}, o.hint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructureFailed, err)
	}
	logger.Info("structure call succeeded",
		"provider", result.Provider,
		"model", result.Model,
		"key", result.KeyLabel,
		"candidates_tried", result.Attempts,
		"duration", result.TotalTime)

	raw, err := providers.ParseStructuredJSON(result.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructureFailed, err)
	}
	var parsed summary.Result
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode structure: %v", ErrStructureFailed, err)
	}

	var structure []types.Chapter
	if modelDefined {
		structure = fromModel(parsed.Chapters, chapters[0])
	} else {
		structure = merge(chapters, parsed.Chapters, logger)
	}

	job := &types.GenerationJobState{
		WorkID:           req.WorkID,
		Title:            title,
		ChapterStructure: structure,
		TotalChapters:    len(structure),
		Questions:        parsed.Questions,
		UpdatedAt:        time.Now().UTC(),
	}
	job.Normalize()
	return job, nil
}

func (o *Orchestrator) questionCount(chapters int) int {
	if o.opts.QuestionCount > 0 {
		return o.opts.QuestionCount
	}
	return min(max(chapters, 5), 25)
}

// excerpts trims each chapter to its share of the prompt budget.
func (o *Orchestrator) excerpts(chapters []types.Chapter) []summary.ChapterExcerpt {
	limit := min(o.opts.ExcerptRunes, max(structurePromptRunes/len(chapters), 300))
	out := make([]summary.ChapterExcerpt, len(chapters))
	for i, ch := range chapters {
		out[i] = summary.ChapterExcerpt{
			Number:  ch.Number,
			Title:   ch.Title,
			Excerpt: truncateRunes(ch.Content, limit),
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + " …"
}

// merge attaches model output to segmented chapters by chapter number, falling
// back to position. Chapters the model skipped keep their segmented fields.
func merge(chapters []types.Chapter, generated []summary.ChapterSummary, logger *slog.Logger) []types.Chapter {
	byNumber := make(map[int]summary.ChapterSummary, len(generated))
	for _, g := range generated {
		byNumber[g.Number] = g
	}

	out := make([]types.Chapter, len(chapters))
	for i, ch := range chapters {
		g, ok := byNumber[ch.Number]
		if !ok && i < len(generated) {
			g, ok = generated[i], true
		}
		if !ok {
			logger.Warn("structure output missing chapter", "chapter", ch.Number, "title", ch.Title)
		} else {
			apply(&ch, g)
		}
		out[i] = ch
	}
	return out
}

// fromModel builds the structure from model chapters spanning the whole book.
func fromModel(generated []summary.ChapterSummary, whole types.Chapter) []types.Chapter {
	out := make([]types.Chapter, len(generated))
	for i, g := range generated {
		ch := types.Chapter{
			Number:    i + 1,
			Title:     g.Title,
			StartPage: whole.StartPage,
			EndPage:   whole.EndPage,
		}
		apply(&ch, g)
		out[i] = ch
	}
	return out
}

func apply(ch *types.Chapter, g summary.ChapterSummary) {
	if ch.Title == "" || ch.Title == segment.FallbackTitle {
		ch.Title = g.Title
	}
	ch.Summary = g.Summary
	ch.KeyPoints = g.KeyPoints
	ch.Citations = g.Citations
	ch.PracticeExamples = g.PracticeExamples
	ch.ImagePrompt = g.ImagePrompt
	ch.NarrationScript = g.NarrationScript
}
