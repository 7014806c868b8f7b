package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/lexshelf/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. LEXSHELF_PIPELINE_BATCH_SIZE.
const EnvPrefix = "LEXSHELF"

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	setDefaults(DefaultConfig())

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.lexshelf")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf so env overrides and partial files merge
// with the defaults instead of replacing whole sections.
func setDefaults(d *Config) {
	providersDefault := make(map[string]any, len(d.Providers))
	for name, p := range d.Providers {
		providersDefault[name] = map[string]any{
			"type":                p.Type,
			"api_keys":            p.APIKeys,
			"requests_per_minute": p.RequestsPerMinute,
			"enabled":             p.Enabled,
		}
	}
	viper.SetDefault("providers", providersDefault)

	viper.SetDefault("models.text", modelsDefault(d.Models.Text))
	viper.SetDefault("models.image", modelsDefault(d.Models.Image))
	viper.SetDefault("models.speech", modelsDefault(d.Models.Speech))
	viper.SetDefault("models.voice", d.Models.Voice)
	viper.SetDefault("models.audio_format", d.Models.AudioFormat)

	viper.SetDefault("fallback.attempts_per_pair", d.Fallback.AttemptsPerPair)
	viper.SetDefault("fallback.transient_backoff", d.Fallback.TransientBackoff.Std().String())

	viper.SetDefault("pipeline.batch_size", d.Pipeline.BatchSize)
	viper.SetDefault("pipeline.page_size", d.Pipeline.PageSize)
	viper.SetDefault("pipeline.invocation_deadline", d.Pipeline.InvocationDeadline.Std().String())
	viper.SetDefault("pipeline.safety_margin", d.Pipeline.SafetyMargin.Std().String())
	viper.SetDefault("pipeline.media_call_timeout", d.Pipeline.MediaCallTimeout.Std().String())
	viper.SetDefault("pipeline.rewrite_call_timeout", d.Pipeline.RewriteCallTimeout.Std().String())
	viper.SetDefault("pipeline.preservation_threshold", d.Pipeline.PreservationThreshold)
	viper.SetDefault("pipeline.rewrite_enabled", d.Pipeline.RewriteEnabled)

	viper.SetDefault("store.driver", d.Store.Driver)
	viper.SetDefault("store.dsn", d.Store.DSN)
	viper.SetDefault("media.dir", d.Media.Dir)
	viper.SetDefault("media.base_url", d.Media.BaseURL)
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
}

func modelsDefault(models []ModelCfg) []any {
	out := make([]any, 0, len(models))
	for _, m := range models {
		out = append(out, map[string]any{"provider": m.Provider, "model": m.Model})
	}
	return out
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// durationHook decodes "85s" or a number of nanoseconds into Duration.
func durationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		return Duration(d), nil
	case time.Duration:
		return Duration(v), nil
	}
	return data, nil
}

// Validate rejects configurations the pipelines cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.PageSize <= 0 {
		return fmt.Errorf("pipeline.page_size must be positive, got %d", c.Pipeline.PageSize)
	}
	if c.Pipeline.SafetyMargin > c.Pipeline.InvocationDeadline {
		return fmt.Errorf("pipeline.safety_margin %s exceeds invocation_deadline %s",
			c.Pipeline.SafetyMargin.Std(), c.Pipeline.InvocationDeadline.Std())
	}
	if t := c.Pipeline.PreservationThreshold; t < 0 || t > 1 {
		return fmt.Errorf("pipeline.preservation_threshold must be within [0,1], got %v", t)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	return nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
// An invalid edit is ignored and the previous config stays active.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Providers:    make(map[string]providers.ProviderConfig, len(c.Providers)),
		TextModels:   toModelRefs(c.Models.Text),
		ImageModels:  toModelRefs(c.Models.Image),
		SpeechModels: toModelRefs(c.Models.Speech),
	}

	for name, p := range c.Providers {
		cfg.Providers[name] = providers.ProviderConfig{
			Type:              p.Type,
			APIKeys:           c.ResolveAPIKeys(name),
			RequestsPerMinute: p.RequestsPerMinute,
			BaseURL:           p.BaseURL,
			Enabled:           p.Enabled,
		}
	}

	return cfg
}

// ToClientConfig returns the fallback client tunables.
func (c *Config) ToClientConfig() providers.ClientConfig {
	return providers.ClientConfig{
		AttemptsPerPair:  c.Fallback.AttemptsPerPair,
		TransientBackoff: c.Fallback.TransientBackoff.Std(),
	}
}

func toModelRefs(models []ModelCfg) []providers.ModelRef {
	refs := make([]providers.ModelRef, 0, len(models))
	for _, m := range models {
		if m.Provider == "" || m.Model == "" {
			continue
		}
		refs = append(refs, providers.ModelRef{Provider: m.Provider, Model: m.Model})
	}
	return refs
}

// Write renders cfg as YAML.
func Write(w io.Writer, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# lexshelf configuration
# API keys use ${ENV_VAR} syntax to reference environment variables.
# A variable may hold several comma-separated keys; each becomes a fallback credential.
# Set these in your shell: export GEMINI_API_KEY=xxx OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
