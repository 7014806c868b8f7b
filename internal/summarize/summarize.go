// Package summarize is the resumable summary pipeline for one work.
//
// Each invocation is a pure function of the persisted GenerationJobState and
// the requested batch index. The first invocation generates the whole chapter
// structure in one text call; every invocation then generates cover images
// and narration for one batch of chapters, as far as the time budget allows,
// and writes the job back once.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/lexshelf/internal/budget"
	"github.com/jackzampolin/lexshelf/internal/objstore"
	"github.com/jackzampolin/lexshelf/internal/prompts"
	"github.com/jackzampolin/lexshelf/internal/prompts/summary"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/segment"
	"github.com/jackzampolin/lexshelf/internal/store"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// PipelineName labels this pipeline in logs and metrics.
const PipelineName = "summarize"

const (
	DefaultBatchSize    = 5
	DefaultMediaTimeout = 25 * time.Second
)

var (
	// ErrStructureFailed is returned when the one-time structure generation
	// could not complete. It is the only fatal error of an invocation.
	ErrStructureFailed = errors.New("chapter structure generation failed")

	// ErrNoContent is returned when a work has no source pages to summarize.
	ErrNoContent = errors.New("work has no source pages")
)

// Recorder receives pipeline measurements. A nil Recorder is allowed.
type Recorder interface {
	BudgetStop(pipeline string)
	MediaResult(kind string, ok bool)
	Invocation(pipeline, outcome string, d time.Duration)
}

// Options tunes the orchestrator. Zero values take defaults.
type Options struct {
	BatchSize    int
	Deadline     time.Duration
	Margin       time.Duration
	MediaTimeout time.Duration

	// QuestionCount fixes the number of review questions; zero scales with chapters.
	QuestionCount int
	// ExcerptRunes caps each chapter excerpt in the structure prompt.
	ExcerptRunes int

	Voice       string
	AudioFormat string

	Clock    budget.Clock
	Logger   *slog.Logger
	Recorder Recorder
}

// Request is one invocation of the summary pipeline.
type Request struct {
	WorkID                string `json:"workId"`
	Title                 string `json:"title,omitempty"`
	BatchIndex            int    `json:"batchIndex"`
	ExpectedTotalChapters int    `json:"expectedTotalChapters,omitempty"`
}

// Response reports progress after one invocation. NextBatch is nil once
// every chapter has been processed.
type Response struct {
	WorkID            string           `json:"workId"`
	RequestID         string           `json:"requestId"`
	Success           bool             `json:"success"`
	Cached            bool             `json:"cached"`
	ChapterStructure  []types.Chapter  `json:"chapterStructure"`
	Questions         []types.Question `json:"questions"`
	ChaptersGenerated int              `json:"chaptersGenerated"`
	TotalChapters     int              `json:"totalChapters"`
	CurrentBatch      int              `json:"currentBatch"`
	NextBatch         *int             `json:"nextBatch"`
	BatchComplete     bool             `json:"batchComplete"`
	BudgetStopped     bool             `json:"budgetStopped,omitempty"`
}

// Orchestrator runs summary invocations.
type Orchestrator struct {
	store     store.Store
	objects   objstore.Store
	client    *providers.Client
	prompts   *prompts.Resolver
	segmenter *segment.Segmenter
	schema    *providers.Schema

	// hint is process-local credential affinity; correctness never depends on it.
	hint *providers.Hint

	opts   Options
	logger *slog.Logger
}

// New creates an orchestrator. The resolver must have the summary prompts
// registered.
func New(st store.Store, objects objstore.Store, client *providers.Client, resolver *prompts.Resolver, opts Options) (*Orchestrator, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MediaTimeout <= 0 {
		opts.MediaTimeout = DefaultMediaTimeout
	}
	if opts.ExcerptRunes <= 0 {
		opts.ExcerptRunes = 1500
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	schema, err := providers.CompileSchema("chapter_structure", summary.StructureSchemaJSON())
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		store:     st,
		objects:   objects,
		client:    client,
		prompts:   resolver,
		segmenter: segment.New(opts.Logger),
		schema:    schema,
		hint:      providers.NewHint(),
		opts:      opts,
		logger:    opts.Logger,
	}, nil
}

// Run executes one invocation. Only ErrStructureFailed, ErrNoContent and
// store errors are returned; media failures are absorbed and the chapter is
// left without that media.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	if req.WorkID == "" {
		return nil, fmt.Errorf("work id is required")
	}
	if req.BatchIndex < 0 {
		return nil, fmt.Errorf("batch index must not be negative, got %d", req.BatchIndex)
	}

	start := time.Now()
	sched := budget.New(budget.Options{Deadline: o.opts.Deadline, Margin: o.opts.Margin, Clock: o.opts.Clock})
	requestID := uuid.NewString()
	logger := o.logger.With("request_id", requestID, "work_id", req.WorkID, "batch_index", req.BatchIndex)

	resp, err := o.run(ctx, req, sched, logger)
	outcome := "error"
	switch {
	case err != nil:
	case resp.Cached:
		outcome = "cached"
	case resp.BatchComplete:
		outcome = "complete"
	default:
		outcome = "progress"
	}
	if o.opts.Recorder != nil {
		o.opts.Recorder.Invocation(PipelineName, outcome, time.Since(start))
	}
	if err != nil {
		logger.Error("summary invocation failed", "error", err, "elapsed", sched.Elapsed())
		return nil, err
	}
	resp.RequestID = requestID
	return resp, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, sched *budget.Scheduler, logger *slog.Logger) (*Response, error) {
	job, err := o.store.GetJob(ctx, req.WorkID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		job = nil
	case err != nil:
		return nil, fmt.Errorf("load generation job: %w", err)
	}

	if job.Phase() == types.PhaseComplete {
		logger.Info("summary already complete", "chapters", job.TotalChapters)
		return respond(job, req.BatchIndex, o.opts.BatchSize, true), nil
	}

	if job == nil {
		job, err = o.generateStructure(ctx, req, logger)
		if err != nil {
			return nil, err
		}
		if err := o.store.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("save chapter structure: %w", err)
		}
		logger.Info("chapter structure generated",
			"chapters", job.TotalChapters,
			"questions", len(job.Questions),
			"elapsed", sched.Elapsed())
	}

	stopped := o.processBatch(ctx, job, req.BatchIndex, sched, logger)

	end := min((req.BatchIndex+1)*o.opts.BatchSize, job.TotalChapters)
	job.ChaptersGenerated = max(job.ChaptersGenerated, job.AttemptedBefore(end))
	job.UpdatedAt = time.Now().UTC()
	if err := o.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save generation job: %w", err)
	}

	resp := respond(job, req.BatchIndex, o.opts.BatchSize, false)
	resp.BudgetStopped = stopped
	logger.Info("summary batch finished",
		"chapters_generated", job.ChaptersGenerated,
		"total_chapters", job.TotalChapters,
		"budget_stopped", stopped,
		"elapsed", sched.Elapsed())
	return resp, nil
}

// respond builds the invocation response from the persisted state.
func respond(job *types.GenerationJobState, batchIndex, batchSize int, cached bool) *Response {
	resp := &Response{
		WorkID:            job.WorkID,
		Success:           true,
		Cached:            cached,
		ChapterStructure:  job.ChapterStructure,
		Questions:         job.Questions,
		ChaptersGenerated: job.ChaptersGenerated,
		TotalChapters:     job.TotalChapters,
		CurrentBatch:      batchIndex,
		BatchComplete:     job.Complete(),
	}
	if !resp.BatchComplete {
		next := batchIndex + 1
		if i := job.FirstUnattempted(); i >= 0 {
			next = i / batchSize
		}
		resp.NextBatch = &next
	}
	return resp
}
