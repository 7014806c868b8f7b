// Package format turns a work's OCR pages into persisted virtual pages.
//
// Chapters are formatted one at a time in document order and persisted as
// they finish, so an invocation stopped by the time budget resumes at the
// first chapter without formatted text. Every invocation re-paginates all
// formatted chapters.
package format

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jackzampolin/lexshelf/internal/budget"
	"github.com/jackzampolin/lexshelf/internal/paginate"
	"github.com/jackzampolin/lexshelf/internal/prompts"
	"github.com/jackzampolin/lexshelf/internal/prompts/rewrite"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/segment"
	"github.com/jackzampolin/lexshelf/internal/store"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// PipelineName labels this pipeline in logs and metrics.
const PipelineName = "format"

const (
	DefaultPageSize       = 1800
	DefaultRewriteTimeout = 30 * time.Second
)

// ErrNoContent is returned when a work has no source pages to format.
var ErrNoContent = errors.New("work has no source pages")

// Recorder receives pipeline measurements. A nil Recorder is allowed.
type Recorder interface {
	BudgetStop(pipeline string)
	Rewrite(kept bool, rate float64)
	Invocation(pipeline, outcome string, d time.Duration)
}

// Options tunes the pipeline. Zero values take defaults.
type Options struct {
	PageSize       int
	Deadline       time.Duration
	Margin         time.Duration
	RewriteTimeout time.Duration
	Threshold      float64

	// Rewrite enables the model cleanup pass. Without it chapters are
	// paginated from the cleaned OCR text.
	Rewrite bool

	Clock    budget.Clock
	Logger   *slog.Logger
	Recorder Recorder
}

// Request is one invocation of the formatting pipeline.
type Request struct {
	WorkID string `json:"workId"`
}

// Response reports the pagination after one invocation. Character counts
// cover only chapters formatted by this invocation.
type Response struct {
	WorkID               string `json:"workId"`
	RequestID            string `json:"requestId"`
	Success              bool   `json:"success"`
	TotalPages           int    `json:"totalPages"`
	TotalChapters        int    `json:"totalChapters"`
	ChaptersProcessedNow int    `json:"chaptersProcessedNow"`
	InputChars           int    `json:"inputChars"`
	OutputChars          int    `json:"outputChars"`
	PreservationRate     string `json:"preservationRate"`
	RemainingChapters    int    `json:"remainingChapters"`
	Complete             bool   `json:"complete"`
	BudgetStopped        bool   `json:"budgetStopped,omitempty"`
}

// Pipeline runs formatting invocations.
type Pipeline struct {
	store     store.Store
	client    *providers.Client
	prompts   *prompts.Resolver
	segmenter *segment.Segmenter
	guard     budget.Guard
	hint      *providers.Hint

	opts   Options
	logger *slog.Logger
}

// New creates a pipeline. client and resolver may be nil when rewriting is
// disabled; otherwise the resolver must have the rewrite prompt registered.
func New(st store.Store, client *providers.Client, resolver *prompts.Resolver, opts Options) (*Pipeline, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RewriteTimeout <= 0 {
		opts.RewriteTimeout = DefaultRewriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rewrite && (client == nil || resolver == nil) {
		return nil, fmt.Errorf("rewrite requires a provider client and prompt resolver")
	}

	return &Pipeline{
		store:     st,
		client:    client,
		prompts:   resolver,
		segmenter: segment.New(opts.Logger),
		guard:     budget.Guard{Threshold: opts.Threshold},
		hint:      providers.NewHint(),
		opts:      opts,
		logger:    opts.Logger,
	}, nil
}

// Run executes one invocation.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	if req.WorkID == "" {
		return nil, fmt.Errorf("work id is required")
	}

	start := time.Now()
	sched := budget.New(budget.Options{Deadline: p.opts.Deadline, Margin: p.opts.Margin, Clock: p.opts.Clock})
	requestID := uuid.NewString()
	logger := p.logger.With("request_id", requestID, "work_id", req.WorkID, "pipeline", PipelineName)

	resp, err := p.run(ctx, req, sched, logger)
	outcome := "error"
	switch {
	case err != nil:
	case resp.Complete:
		outcome = "complete"
	default:
		outcome = "progress"
	}
	if p.opts.Recorder != nil {
		p.opts.Recorder.Invocation(PipelineName, outcome, time.Since(start))
	}
	if err != nil {
		logger.Error("format invocation failed", "error", err, "elapsed", sched.Elapsed())
		return nil, err
	}
	resp.RequestID = requestID
	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, sched *budget.Scheduler, logger *slog.Logger) (*Response, error) {
	pages, err := p.store.SourcePages(ctx, req.WorkID)
	if err != nil {
		return nil, fmt.Errorf("load source pages: %w", err)
	}
	index, err := p.store.ChapterIndex(ctx, req.WorkID)
	if err != nil {
		return nil, fmt.Errorf("load chapter index: %w", err)
	}
	chapters := p.segmenter.Segment(pages, index)
	if len(chapters) == 0 {
		return nil, ErrNoContent
	}

	existing, err := p.store.FormattedChapters(ctx, req.WorkID)
	if err != nil {
		return nil, fmt.Errorf("load formatted chapters: %w", err)
	}
	done := make(map[int]types.FormattedChapter, len(existing))
	for _, fc := range existing {
		done[fc.Number] = fc
	}

	// Rewrites share the invocation deadline. Persistence keeps the caller's
	// context so finished chapters and pages are still saved after it fires.
	callCtx, cancel := sched.Context(ctx)
	defer cancel()

	resp := &Response{WorkID: req.WorkID, Success: true, TotalChapters: len(chapters)}
	formatted := make([]types.FormattedChapter, 0, len(chapters))
	for _, ch := range chapters {
		if fc, ok := done[ch.Number]; ok && fc.StartPage == ch.StartPage && fc.EndPage == ch.EndPage {
			formatted = append(formatted, fc)
			continue
		}
		if resp.BudgetStopped || !sched.CanStart() {
			if !resp.BudgetStopped {
				resp.BudgetStopped = true
				logger.Info("time budget reached, deferring remaining chapters",
					"next_chapter", ch.Number, "elapsed", sched.Elapsed())
				if p.opts.Recorder != nil {
					p.opts.Recorder.BudgetStop(PipelineName)
				}
			}
			resp.RemainingChapters++
			continue
		}

		fc := p.formatChapter(callCtx, ch, logger.With("chapter", ch.Number))
		if err := p.store.SaveFormattedChapter(ctx, req.WorkID, fc); err != nil {
			return nil, fmt.Errorf("save formatted chapter %d: %w", ch.Number, err)
		}
		formatted = append(formatted, fc)
		resp.ChaptersProcessedNow++
		resp.InputChars += fc.InputChars
		resp.OutputChars += fc.OutputChars
	}

	covers, err := p.covers(ctx, req.WorkID)
	if err != nil {
		return nil, err
	}
	virtual := paginate.Build(formatted, paginate.Options{PageSize: p.opts.PageSize, CoverImages: covers})
	if err := p.store.ReplaceVirtualPages(ctx, req.WorkID, virtual); err != nil {
		return nil, fmt.Errorf("save virtual pages: %w", err)
	}

	resp.TotalPages = len(virtual)
	resp.Complete = resp.RemainingChapters == 0
	resp.PreservationRate = budget.FormatRate(budget.Rate(resp.InputChars, resp.OutputChars))
	logger.Info("format invocation finished",
		"chapters_processed", resp.ChaptersProcessedNow,
		"remaining_chapters", resp.RemainingChapters,
		"total_pages", resp.TotalPages,
		"preservation_rate", resp.PreservationRate,
		"elapsed", sched.Elapsed())
	return resp, nil
}

// formatChapter rewrites one chapter when enabled and guards the result
// against content loss. It never fails: any rewrite problem keeps the
// cleaned OCR text. The rewrite timeout is capped by ctx's deadline.
func (p *Pipeline) formatChapter(ctx context.Context, ch types.Chapter, logger *slog.Logger) types.FormattedChapter {
	fc := types.FormattedChapter{
		Number:     ch.Number,
		Title:      ch.Title,
		StartPage:  ch.StartPage,
		EndPage:    ch.EndPage,
		Content:    ch.Content,
		InputChars: utf8.RuneCountInString(ch.Content),
	}

	if p.opts.Rewrite && strings.TrimSpace(ch.Content) != "" {
		rewritten := budget.Call(ctx, p.opts.RewriteTimeout, func(ctx context.Context) (string, error) {
			return p.rewrite(ctx, ch)
		}, "", func(err error) {
			logger.Warn("rewrite failed, keeping original text", "error", err)
		})
		if rewritten != "" {
			text, kept, rate := p.guard.Preserve(ch.Content, rewritten)
			if !kept {
				logger.Warn("rewrite dropped too much text, keeping original",
					"rate", budget.FormatRate(rate),
					"input_chars", fc.InputChars,
					"rewritten_chars", utf8.RuneCountInString(rewritten))
			}
			if p.opts.Recorder != nil {
				p.opts.Recorder.Rewrite(kept, rate)
			}
			fc.Content = text
			fc.Rewritten = kept
		}
	}

	fc.OutputChars = utf8.RuneCountInString(fc.Content)
	return fc
}

func (p *Pipeline) rewrite(ctx context.Context, ch types.Chapter) (string, error) {
	prompt, err := p.prompts.Render(rewrite.PromptKey, rewrite.Data{Number: ch.Number, Title: ch.Title, Content: ch.Content})
	if err != nil {
		return "", err
	}
	result, err := p.client.GenerateText(ctx, &providers.TextRequest{
		System:      rewrite.System,
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   16384,
		Validate: func(text string) error {
			if strings.TrimSpace(text) == "" {
				return providers.ErrEmptyPayload
			}
			return nil
		},
	}, p.hint)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}

// covers maps chapter numbers to the cover images of the summary pipeline,
// when one has run.
func (p *Pipeline) covers(ctx context.Context, workID string) (map[int]string, error) {
	job, err := p.store.GetJob(ctx, workID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load generation job: %w", err)
	}
	covers := make(map[int]string)
	for _, ch := range job.ChapterStructure {
		if ch.ImageURL != "" {
			covers[ch.Number] = ch.ImageURL
		}
	}
	return covers, nil
}
