package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/lexshelf/internal/types"
)

const (
	DefaultAttemptsPerPair  = 2
	DefaultTransientBackoff = 750 * time.Millisecond
	networkRetryDelay       = 200 * time.Millisecond
)

// ModelRef names a model on a provider.
type ModelRef struct {
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model" mapstructure:"model"`
}

func (m ModelRef) String() string { return m.Provider + "/" + m.Model }

// Candidate is one (model, credential) pair to try.
type Candidate struct {
	Provider string
	Model    string
	Key      types.ProviderKey
}

// Plan is the ordered list of candidates for one logical call.
type Plan []Candidate

// TextPlan orders candidates model-major: every credential of the first model,
// then every credential of the next model.
func TextPlan(models []ModelRef, pools map[string][]types.ProviderKey, hint *Hint) Plan {
	var plan Plan
	for _, m := range models {
		for _, key := range hint.order(m.Provider, pools[m.Provider]) {
			plan = append(plan, Candidate{Provider: m.Provider, Model: m.Model, Key: key})
		}
	}
	return plan
}

// MediaPlan orders candidates credential-major: each credential tries every
// model of its provider before the next credential is used.
func MediaPlan(models []ModelRef, pools map[string][]types.ProviderKey, hint *Hint) Plan {
	var providers []string
	byProvider := make(map[string][]string)
	for _, m := range models {
		if _, ok := byProvider[m.Provider]; !ok {
			providers = append(providers, m.Provider)
		}
		byProvider[m.Provider] = append(byProvider[m.Provider], m.Model)
	}

	var plan Plan
	for _, p := range providers {
		for _, key := range hint.order(p, pools[p]) {
			for _, model := range byProvider[p] {
				plan = append(plan, Candidate{Provider: p, Model: model, Key: key})
			}
		}
	}
	return plan
}

// Observer receives attempt outcomes, typically for metrics.
type Observer interface {
	ObserveAttempt(a Attempt)
	ObserveExhausted(kind Kind)
}

// ClientConfig tunes the fallback client.
type ClientConfig struct {
	// AttemptsPerPair bounds network-error retries against one candidate.
	AttemptsPerPair int
	// TransientBackoff is slept after a 429/503 before advancing.
	TransientBackoff time.Duration
	Logger           *slog.Logger
	Observer         Observer
}

// Client executes one logical generation call against an ordered plan,
// returning the first usable result.
type Client struct {
	registry *Registry
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	observer Observer
}

// NewClient creates a fallback client over the registry's backends and pools.
func NewClient(registry *Registry, cfg ClientConfig) *Client {
	if cfg.AttemptsPerPair <= 0 {
		cfg.AttemptsPerPair = DefaultAttemptsPerPair
	}
	if cfg.TransientBackoff < 0 {
		cfg.TransientBackoff = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		registry: registry,
		attempts: cfg.AttemptsPerPair,
		backoff:  cfg.TransientBackoff,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
}

// Registry returns the client's registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// GenerateText tries the configured text models in order, each across every
// credential. req.Validate, when set, decides whether a payload is usable.
func (c *Client) GenerateText(ctx context.Context, req *TextRequest, hint *Hint) (*TextResult, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("text prompt is required")
	}

	start := time.Now()
	plan := c.registry.Plan(KindText, hint)
	text, cand, n, err := run(ctx, c, KindText, plan, hint, func(ctx context.Context, cand Candidate) (string, error) {
		backend, ok := c.registry.textBackend(cand.Provider)
		if !ok {
			return "", fmt.Errorf("no text backend %q", cand.Provider)
		}
		text, err := backend.GenerateText(ctx, cand.Model, cand.Key, req)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyPayload
		}
		if req.Validate != nil {
			if err := req.Validate(text); err != nil {
				return "", fmt.Errorf("%w: %v", ErrEmptyPayload, err)
			}
		}
		return text, nil
	})
	if err != nil {
		return nil, err
	}
	return &TextResult{
		Text:      text,
		Provider:  cand.Provider,
		Model:     cand.Model,
		KeyLabel:  cand.Key.Label(),
		Attempts:  n,
		TotalTime: time.Since(start),
	}, nil
}

// GenerateImage synthesizes one image, rotating credentials of the image model.
func (c *Client) GenerateImage(ctx context.Context, req *ImageRequest, hint *Hint) (*ImageResult, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("image prompt is required")
	}

	plan := c.registry.Plan(KindImage, hint)
	img, cand, _, err := run(ctx, c, KindImage, plan, hint, func(ctx context.Context, cand Candidate) (*ImageResult, error) {
		backend, ok := c.registry.imageBackend(cand.Provider)
		if !ok {
			return nil, fmt.Errorf("no image backend %q", cand.Provider)
		}
		img, err := backend.GenerateImage(ctx, cand.Model, cand.Key, req)
		if err != nil {
			return nil, err
		}
		if img == nil || len(img.Data) == 0 {
			return nil, ErrEmptyPayload
		}
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	img.Provider = cand.Provider
	img.Model = cand.Model
	img.KeyLabel = cand.Key.Label()
	return img, nil
}

// Synthesize converts narration text to audio, rotating credentials of the speech model.
func (c *Client) Synthesize(ctx context.Context, req *SpeechRequest, hint *Hint) (*SpeechResult, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("speech text is required")
	}

	plan := c.registry.Plan(KindSpeech, hint)
	audio, cand, _, err := run(ctx, c, KindSpeech, plan, hint, func(ctx context.Context, cand Candidate) (*SpeechResult, error) {
		backend, ok := c.registry.speechBackend(cand.Provider)
		if !ok {
			return nil, fmt.Errorf("no speech backend %q", cand.Provider)
		}
		audio, err := backend.Synthesize(ctx, cand.Model, cand.Key, req)
		if err != nil {
			return nil, err
		}
		if audio == nil || len(audio.Audio) == 0 {
			return nil, ErrEmptyPayload
		}
		return audio, nil
	})
	if err != nil {
		return nil, err
	}
	audio.Provider = cand.Provider
	audio.Model = cand.Model
	audio.KeyLabel = cand.Key.Label()
	return audio, nil
}

// run walks the plan until one candidate yields a usable result. It returns
// the result, the winning candidate and the number of candidates tried.
// When every candidate fails it returns exactly one *ExhaustedError.
func run[T any](ctx context.Context, c *Client, kind Kind, plan Plan, hint *Hint,
	call func(context.Context, Candidate) (T, error)) (T, Candidate, int, error) {
	var zero T
	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "kind", string(kind))

	attempts := make([]Attempt, 0, len(plan))
	for i, cand := range plan {
		if err := ctx.Err(); err != nil {
			return zero, Candidate{}, i, fmt.Errorf("%s call cancelled after %d candidates: %w", kind, i, err)
		}

		limiter := c.registry.limiter(cand.Key)
		if err := limiter.Wait(ctx); err != nil {
			return zero, Candidate{}, i, fmt.Errorf("%s call cancelled waiting for rate limit: %w", kind, err)
		}

		started := time.Now()
		result, err := retry.DoWithData(
			func() (T, error) { return call(ctx, cand) },
			retry.Context(ctx),
			retry.Attempts(uint(c.attempts)),
			retry.Delay(networkRetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(isNetworkError),
			retry.LastErrorOnly(true),
		)

		attempt := Attempt{
			Kind:     kind,
			Provider: cand.Provider,
			Model:    cand.Model,
			KeyLabel: cand.Key.Label(),
			Outcome:  Classify(err),
			Err:      err,
			Duration: time.Since(started),
		}
		attempts = append(attempts, attempt)
		if c.observer != nil {
			c.observer.ObserveAttempt(attempt)
		}

		switch attempt.Outcome {
		case OutcomeSuccess:
			hint.Remember(cand.Key)
			logger.Debug("provider call succeeded",
				"provider", cand.Provider,
				"model", cand.Model,
				"key", attempt.KeyLabel,
				"candidates_tried", i+1,
				"duration", attempt.Duration)
			return result, cand, i + 1, nil

		case OutcomeTransient:
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode == 429 {
				limiter.Record429(se.RetryAfter)
			}
			logger.Warn("provider at capacity, rotating",
				"provider", cand.Provider,
				"model", cand.Model,
				"key", attempt.KeyLabel,
				"error", err)
			if i+1 < len(plan) {
				c.sleep(ctx, c.backoff)
			}

		default:
			logger.Warn("provider call failed, rotating",
				"provider", cand.Provider,
				"model", cand.Model,
				"key", attempt.KeyLabel,
				"error", err)
		}
	}

	if c.observer != nil {
		c.observer.ObserveExhausted(kind)
	}
	logger.Error("all provider candidates exhausted", "candidates", len(plan))
	return zero, Candidate{}, len(plan), &ExhaustedError{Kind: kind, Attempts: attempts}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
