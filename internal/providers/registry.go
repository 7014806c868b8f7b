package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// Provider types understood by the registry.
const (
	TypeGemini = "gemini"
	TypeOpenAI = "openai"
)

// Registry holds backends, credential pools and model lists.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu     sync.RWMutex
	text   map[string]TextBackend
	image  map[string]ImageBackend
	speech map[string]SpeechBackend
	pools  map[string][]types.ProviderKey
	rpm    map[string]int
	models map[Kind][]ModelRef

	// Limiters survive reloads so a 429 pause is not forgotten.
	limiters *limiterSet
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		text:     make(map[string]TextBackend),
		image:    make(map[string]ImageBackend),
		speech:   make(map[string]SpeechBackend),
		pools:    make(map[string][]types.ProviderKey),
		rpm:      make(map[string]int),
		models:   make(map[Kind][]ModelRef),
		limiters: newLimiterSet(),
		logger:   slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterText registers a text backend under its name.
func (r *Registry) RegisterText(b TextBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[b.Name()] = b
}

// RegisterImage registers an image backend under its name.
func (r *Registry) RegisterImage(b ImageBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[b.Name()] = b
}

// RegisterSpeech registers a speech backend under its name.
func (r *Registry) RegisterSpeech(b SpeechBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[b.Name()] = b
}

// SetPool replaces the credential pool for provider. Empty credentials are skipped.
func (r *Registry) SetPool(provider string, requestsPerMinute int, credentials ...string) {
	keys := make([]types.ProviderKey, 0, len(credentials))
	for _, c := range credentials {
		if c = strings.TrimSpace(c); c != "" {
			keys = append(keys, types.ProviderKey{Credential: c, ProviderName: provider})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[provider] = keys
	r.rpm[provider] = requestsPerMinute
}

// SetModels sets the ordered model list for a call kind.
func (r *Registry) SetModels(kind Kind, models ...ModelRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[kind] = append([]ModelRef(nil), models...)
}

// Pool returns a copy of the credential pool for provider.
func (r *Registry) Pool(provider string) []types.ProviderKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ProviderKey(nil), r.pools[provider]...)
}

// Models returns the model list for kind.
func (r *Registry) Models(kind Kind) []ModelRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ModelRef(nil), r.models[kind]...)
}

// Plan builds the candidate list for kind from the current configuration.
// Text is model-major; image and speech are credential-major.
func (r *Registry) Plan(kind Kind, hint *Hint) Plan {
	r.mu.RLock()
	models := append([]ModelRef(nil), r.models[kind]...)
	pools := make(map[string][]types.ProviderKey, len(r.pools))
	for name, keys := range r.pools {
		pools[name] = keys
	}
	r.mu.RUnlock()

	if kind == KindText {
		return TextPlan(models, pools, hint)
	}
	return MediaPlan(models, pools, hint)
}

// Ready reports whether every call kind has at least one candidate.
func (r *Registry) Ready() error {
	var missing []string
	for _, kind := range []Kind{KindText, KindImage, KindSpeech} {
		if len(r.Plan(kind, nil)) == 0 {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no provider candidates for: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LimiterStatus reports every credential limiter used so far, sorted by label.
func (r *Registry) LimiterStatus() []RateLimiterStatus {
	out := r.limiters.status()
	sort.Slice(out, func(i, j int) bool { return out[i].Credential < out[j].Credential })
	return out
}

func (r *Registry) textBackend(name string) (TextBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.text[name]
	return b, ok
}

func (r *Registry) imageBackend(name string) (ImageBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.image[name]
	return b, ok
}

func (r *Registry) speechBackend(name string) (SpeechBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.speech[name]
	return b, ok
}

func (r *Registry) limiter(key types.ProviderKey) *RateLimiter {
	r.mu.RLock()
	rpm := r.rpm[key.ProviderName]
	r.mu.RUnlock()
	return r.limiters.get(key, rpm)
}

// RegistryConfig defines the providers to instantiate from config.
// This mirrors the config.Config structure for provider setup.
type RegistryConfig struct {
	Providers map[string]ProviderConfig

	TextModels   []ModelRef
	ImageModels  []ModelRef
	SpeechModels []ModelRef
}

// ProviderConfig is one provider with its resolved credentials.
type ProviderConfig struct {
	Type              string // "gemini", "openai"
	APIKeys           []string
	RequestsPerMinute int
	BaseURL           string
	Enabled           bool
}

// NewRegistryFromConfig creates a registry with backends based on configuration.
// Only enabled providers with at least one credential are registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload swaps backends, pools and model lists for the new configuration.
// Providers that are no longer configured are removed. In-flight calls keep
// the backends they already resolved.
func (r *Registry) Reload(cfg RegistryConfig) {
	text := make(map[string]TextBackend)
	image := make(map[string]ImageBackend)
	speech := make(map[string]SpeechBackend)
	pools := make(map[string][]types.ProviderKey)
	rpm := make(map[string]int)

	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		var keys []types.ProviderKey
		for _, c := range pc.APIKeys {
			if c = strings.TrimSpace(c); c != "" {
				keys = append(keys, types.ProviderKey{Credential: c, ProviderName: name})
			}
		}
		if len(keys) == 0 {
			continue
		}

		switch pc.Type {
		case TypeGemini:
			g := NewGeminiBackend(GeminiConfig{Name: name, BaseURL: pc.BaseURL})
			text[name], image[name] = g, g
		case TypeOpenAI:
			o := NewOpenAIBackend(OpenAIConfig{Name: name, BaseURL: pc.BaseURL})
			text[name], image[name], speech[name] = o, o, o
		default:
			continue
		}
		pools[name] = keys
		rpm[name] = pc.RequestsPerMinute
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range pools {
		if _, existed := r.pools[name]; existed {
			r.logger.Info("updated provider", "name", name, "keys", len(pools[name]))
		} else {
			r.logger.Info("registered provider", "name", name, "keys", len(pools[name]))
		}
	}
	for name := range r.pools {
		if _, ok := pools[name]; !ok {
			r.logger.Info("unregistered provider", "name", name)
		}
	}

	r.text, r.image, r.speech = text, image, speech
	r.pools, r.rpm = pools, rpm
	r.models = map[Kind][]ModelRef{
		KindText:   append([]ModelRef(nil), cfg.TextModels...),
		KindImage:  append([]ModelRef(nil), cfg.ImageModels...),
		KindSpeech: append([]ModelRef(nil), cfg.SpeechModels...),
	}
}
