package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/lexshelf/internal/budget"
	"github.com/jackzampolin/lexshelf/internal/prompts/summary"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// mediaResult is what one chapter's media calls produced. Empty URLs mean
// the call failed, timed out or had nothing to generate.
type mediaResult struct {
	index    int
	imageURL string
	audioURL string
}

// processBatch generates media for the unattempted chapters of one batch and
// marks them attempted. Chapters are started in document order until the
// budget margin is crossed; started chapters run concurrently. It reports
// whether the budget stopped the batch early.
func (o *Orchestrator) processBatch(ctx context.Context, job *types.GenerationJobState, batchIndex int, sched *budget.Scheduler, logger *slog.Logger) bool {
	start := batchIndex * o.opts.BatchSize
	end := min(start+o.opts.BatchSize, job.TotalChapters)
	if start >= end {
		logger.Info("batch index past the last chapter", "total_chapters", job.TotalChapters)
		return false
	}

	ctx, cancel := sched.Context(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		results []mediaResult
		stopped bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.BatchSize)

	for i := start; i < end; i++ {
		ch := job.ChapterStructure[i]
		if ch.MediaAttempted {
			continue
		}
		if !sched.CanStart() {
			stopped = true
			logger.Info("time budget reached, deferring remaining chapters",
				"next_chapter", ch.Number,
				"elapsed", sched.Elapsed())
			if o.opts.Recorder != nil {
				o.opts.Recorder.BudgetStop(PipelineName)
			}
			break
		}

		g.Go(func() error {
			r := o.chapterMedia(gctx, job.WorkID, i, ch, logger.With("chapter", ch.Number))
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		ch := &job.ChapterStructure[r.index]
		ch.MediaAttempted = true
		if r.imageURL != "" {
			ch.ImageURL = r.imageURL
		}
		if r.audioURL != "" {
			ch.AudioURL = r.audioURL
		}
	}
	return stopped
}

// chapterMedia issues the cover and narration calls concurrently, each under
// its own timeout with a nil fallback.
func (o *Orchestrator) chapterMedia(ctx context.Context, workID string, index int, ch types.Chapter, logger *slog.Logger) mediaResult {
	var (
		wg    sync.WaitGroup
		image *string
		audio *string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		image = budget.Call(ctx, o.opts.MediaTimeout, func(ctx context.Context) (*string, error) {
			return o.cover(ctx, workID, ch)
		}, nil, o.mediaFailure("image", logger))
	}()
	go func() {
		defer wg.Done()
		audio = budget.Call(ctx, o.opts.MediaTimeout, func(ctx context.Context) (*string, error) {
			return o.narration(ctx, workID, ch)
		}, nil, o.mediaFailure("narration", logger))
	}()
	wg.Wait()

	r := mediaResult{index: index}
	if image != nil {
		r.imageURL = *image
	}
	if audio != nil {
		r.audioURL = *audio
	}
	if o.opts.Recorder != nil {
		o.opts.Recorder.MediaResult("image", image != nil)
		o.opts.Recorder.MediaResult("narration", audio != nil)
	}
	logger.Info("chapter media attempted", "image", image != nil, "narration", audio != nil)
	return r
}

func (o *Orchestrator) mediaFailure(kind string, logger *slog.Logger) func(error) {
	return func(err error) {
		if _, exhausted := providers.IsExhausted(err); exhausted {
			logger.Warn("media providers exhausted", "media", kind, "error", err)
			return
		}
		logger.Warn("media call failed", "media", kind, "error", err)
	}
}

// cover generates and uploads the chapter cover image.
func (o *Orchestrator) cover(ctx context.Context, workID string, ch types.Chapter) (*string, error) {
	subject := ch.ImagePrompt
	if strings.TrimSpace(subject) == "" {
		subject = ch.Summary
	}
	prompt, err := o.prompts.Render(summary.CoverKey, summary.CoverData{ChapterTitle: ch.Title, ImagePrompt: subject})
	if err != nil {
		return nil, err
	}

	img, err := o.client.GenerateImage(ctx, &providers.ImageRequest{Prompt: prompt, AspectRatio: "16:9"}, o.hint)
	if err != nil {
		return nil, err
	}
	url, err := o.objects.Put(ctx, mediaPath(workID, ch.Number, "cover."+img.Extension()), img.Data)
	if err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}
	return &url, nil
}

// narration synthesizes and uploads the chapter audio overview. A chapter
// with neither script nor summary has nothing to narrate.
func (o *Orchestrator) narration(ctx context.Context, workID string, ch types.Chapter) (*string, error) {
	script := ch.NarrationScript
	if strings.TrimSpace(script) == "" {
		script = ch.Summary
	}
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("chapter %d has no narration script", ch.Number)
	}
	text, err := o.prompts.Render(summary.NarrationKey, summary.NarrationData{Number: ch.Number, Title: ch.Title, Script: script})
	if err != nil {
		return nil, err
	}

	audio, err := o.client.Synthesize(ctx, &providers.SpeechRequest{
		Text:         text,
		Voice:        o.opts.Voice,
		Format:       o.opts.AudioFormat,
		Instructions: summary.NarrationInstructions,
	}, o.hint)
	if err != nil {
		return nil, err
	}
	url, err := o.objects.Put(ctx, mediaPath(workID, ch.Number, "narration."+audio.Format), audio.Audio)
	if err != nil {
		return nil, fmt.Errorf("upload narration: %w", err)
	}
	return &url, nil
}

func mediaPath(workID string, chapter int, name string) string {
	return fmt.Sprintf("works/%s/chapters/%d/%s", workID, chapter, name)
}
