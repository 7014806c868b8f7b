// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/lexshelf/internal/config"
	"github.com/jackzampolin/lexshelf/internal/format"
	"github.com/jackzampolin/lexshelf/internal/home"
	"github.com/jackzampolin/lexshelf/internal/metrics"
	"github.com/jackzampolin/lexshelf/internal/objstore"
	"github.com/jackzampolin/lexshelf/internal/prompts"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/store"
	"github.com/jackzampolin/lexshelf/internal/summarize"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store      store.Store
	Objects    objstore.Store
	Registry   *providers.Registry
	Summarizer *summarize.Orchestrator
	Formatter  *format.Pipeline
	Prompts    *prompts.Resolver
	Metrics    *metrics.Recorder
	Config     *config.Manager
	Logger     *slog.Logger
	Home       *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the relational store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// SummarizerFrom extracts the summary orchestrator from context.
func SummarizerFrom(ctx context.Context) *summarize.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Summarizer
	}
	return nil
}

// FormatterFrom extracts the formatting pipeline from context.
func FormatterFrom(ctx context.Context) *format.Pipeline {
	if s := ServicesFrom(ctx); s != nil {
		return s.Formatter
	}
	return nil
}

// PromptResolverFrom extracts the prompt resolver from context.
func PromptResolverFrom(ctx context.Context) *prompts.Resolver {
	if s := ServicesFrom(ctx); s != nil {
		return s.Prompts
	}
	return nil
}

// MetricsFrom extracts the metrics recorder from context.
func MetricsFrom(ctx context.Context) *metrics.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Metrics
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default().
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
