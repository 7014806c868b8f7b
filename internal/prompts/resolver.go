package prompts

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Resolver resolves prompts with configuration overrides.
// Resolution order: config override > Embedded default
type Resolver struct {
	embedded  map[string]EmbeddedPrompt
	overrides map[string]string
	parsed    map[string]*template.Template // by text hash
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewResolver creates a new prompt resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		embedded:  make(map[string]EmbeddedPrompt),
		overrides: make(map[string]string),
		parsed:    make(map[string]*template.Template),
		logger:    logger,
	}
}

// Register registers an embedded prompt.
// This should be called during initialization by each stage.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// SetOverrides replaces all overrides. Keys with no embedded prompt are
// ignored with a warning; blank texts are dropped.
func (r *Resolver) SetOverrides(overrides map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]string, len(overrides))
	for key, text := range overrides {
		if _, ok := r.embedded[key]; !ok {
			r.logger.Warn("ignoring override for unknown prompt", "key", key)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		next[key] = text
	}
	r.overrides = next
	if len(next) > 0 {
		r.logger.Info("prompt overrides loaded", "count", len(next))
	}
}

// Resolve returns the override for key if one exists, otherwise the embedded default.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if text, ok := r.overrides[key]; ok {
		return &ResolvedPrompt{
			Key:        key,
			Text:       text,
			Variables:  ExtractVariables(text),
			IsOverride: true,
			Hash:       HashText(text),
		}, nil
	}

	embedded, ok := r.embedded[key]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}
	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
		Hash:      embedded.Hash,
	}, nil
}

// Render resolves key and executes it as a text/template with data.
func (r *Resolver) Render(key string, data any) (string, error) {
	resolved, err := r.Resolve(key)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	tmpl, ok := r.parsed[resolved.Hash]
	r.mu.RUnlock()
	if !ok {
		tmpl, err = template.New(key).Option("missingkey=error").Parse(resolved.Text)
		if err != nil {
			return "", fmt.Errorf("parse prompt %s: %w", key, err)
		}
		r.mu.Lock()
		r.parsed[resolved.Hash] = tmpl
		r.mu.Unlock()
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", key, err)
	}
	return b.String(), nil
}

// GetEmbedded returns the embedded default for a key.
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
