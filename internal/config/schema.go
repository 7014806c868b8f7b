package config

import (
	"strconv"
	"strings"
	"time"
)

// Config holds lexshelf configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Providers map[string]ProviderCfg `mapstructure:"providers" json:"providers" yaml:"providers"`
	Models    ModelsCfg              `mapstructure:"models" json:"models" yaml:"models"`
	Fallback  FallbackCfg            `mapstructure:"fallback" json:"fallback" yaml:"fallback"`
	Pipeline  PipelineCfg            `mapstructure:"pipeline" json:"pipeline" yaml:"pipeline"`
	Store     StoreCfg               `mapstructure:"store" json:"store" yaml:"store"`
	Media     MediaCfg               `mapstructure:"media" json:"media" yaml:"media"`
	Server    ServerCfg              `mapstructure:"server" json:"server" yaml:"server"`
	Log       LogCfg                 `mapstructure:"log" json:"log" yaml:"log"`

	// Prompts overrides embedded prompt templates by key ("summary_structure", "format_rewrite", ...).
	Prompts map[string]string `mapstructure:"prompts" json:"prompts,omitempty" yaml:"prompts,omitempty"`
}

// ProviderCfg configures one generation provider and its credential pool.
type ProviderCfg struct {
	Type              string   `mapstructure:"type" json:"type" yaml:"type"`             // "gemini", "openai"
	APIKeys           []string `mapstructure:"api_keys" json:"api_keys" yaml:"api_keys"` // supports ${ENV_VAR}; a var may hold a comma-separated list
	RequestsPerMinute int      `mapstructure:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute"`
	BaseURL           string   `mapstructure:"base_url" json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled           bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
}

// ModelCfg names one model of one provider.
type ModelCfg struct {
	Provider string `mapstructure:"provider" json:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" json:"model" yaml:"model"`
}

// ModelsCfg lists candidate models per call kind, in fallback order.
type ModelsCfg struct {
	Text        []ModelCfg `mapstructure:"text" json:"text" yaml:"text"`
	Image       []ModelCfg `mapstructure:"image" json:"image" yaml:"image"`
	Speech      []ModelCfg `mapstructure:"speech" json:"speech" yaml:"speech"`
	Voice       string     `mapstructure:"voice" json:"voice" yaml:"voice"`
	AudioFormat string     `mapstructure:"audio_format" json:"audio_format" yaml:"audio_format"`
}

// FallbackCfg tunes the provider fallback client.
type FallbackCfg struct {
	AttemptsPerPair  int      `mapstructure:"attempts_per_pair" json:"attempts_per_pair" yaml:"attempts_per_pair"`
	TransientBackoff Duration `mapstructure:"transient_backoff" json:"transient_backoff" yaml:"transient_backoff"`
}

// PipelineCfg holds the invocation budget and batching tunables.
type PipelineCfg struct {
	BatchSize             int      `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size"`
	PageSize              int      `mapstructure:"page_size" json:"page_size" yaml:"page_size"` // runes per virtual page
	InvocationDeadline    Duration `mapstructure:"invocation_deadline" json:"invocation_deadline" yaml:"invocation_deadline"`
	SafetyMargin          Duration `mapstructure:"safety_margin" json:"safety_margin" yaml:"safety_margin"`
	MediaCallTimeout      Duration `mapstructure:"media_call_timeout" json:"media_call_timeout" yaml:"media_call_timeout"`
	RewriteCallTimeout    Duration `mapstructure:"rewrite_call_timeout" json:"rewrite_call_timeout" yaml:"rewrite_call_timeout"`
	PreservationThreshold float64  `mapstructure:"preservation_threshold" json:"preservation_threshold" yaml:"preservation_threshold"`
	RewriteEnabled        bool     `mapstructure:"rewrite_enabled" json:"rewrite_enabled" yaml:"rewrite_enabled"`
}

// StoreCfg selects the relational store.
type StoreCfg struct {
	Driver string `mapstructure:"driver" json:"driver" yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn" json:"dsn" yaml:"dsn"`          // empty sqlite DSN uses {home}/lexshelf.db
}

// MediaCfg configures where generated covers and narration are written.
type MediaCfg struct {
	Dir     string `mapstructure:"dir" json:"dir" yaml:"dir"`                // empty uses {home}/media
	BaseURL string `mapstructure:"base_url" json:"base_url" yaml:"base_url"` // empty uses the server's /media/ route
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" json:"host" yaml:"host"`
	Port string `mapstructure:"port" json:"port" yaml:"port"`
}

// LogCfg configures the slog handler.
type LogCfg struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`    // debug, info, warn, error
	Format string `mapstructure:"format" json:"format" yaml:"format"` // auto, text, json
}

// Duration is a time.Duration written as "85s" in YAML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON renders the duration as a quoted Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderCfg{
			"gemini": {
				Type:              "gemini",
				APIKeys:           []string{"${GEMINI_API_KEY}"},
				RequestsPerMinute: 60,
				Enabled:           true,
			},
			"openai": {
				Type:              "openai",
				APIKeys:           []string{"${OPENAI_API_KEY}"},
				RequestsPerMinute: 60,
				Enabled:           true,
			},
		},
		Models: ModelsCfg{
			Text: []ModelCfg{
				{Provider: "gemini", Model: "gemini-2.5-flash"},
				{Provider: "gemini", Model: "gemini-2.0-flash"},
				{Provider: "openai", Model: "gpt-4o-mini"},
			},
			Image: []ModelCfg{
				{Provider: "gemini", Model: "gemini-2.5-flash-image"},
			},
			Speech: []ModelCfg{
				{Provider: "openai", Model: "tts-1-hd"},
			},
			Voice:       "onyx",
			AudioFormat: "mp3",
		},
		Fallback: FallbackCfg{
			AttemptsPerPair:  2,
			TransientBackoff: Duration(750 * time.Millisecond),
		},
		Pipeline: PipelineCfg{
			BatchSize:             5,
			PageSize:              1800,
			InvocationDeadline:    Duration(85 * time.Second),
			SafetyMargin:          Duration(75 * time.Second),
			MediaCallTimeout:      Duration(25 * time.Second),
			RewriteCallTimeout:    Duration(30 * time.Second),
			PreservationThreshold: 0.85,
			RewriteEnabled:        true,
		},
		Store: StoreCfg{
			Driver: "sqlite",
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Log: LogCfg{
			Level:  "info",
			Format: "auto",
		},
	}
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// ResolveAPIKeys returns the provider's credentials with ${ENV_VAR}
// references expanded. A reference may expand to a comma-separated list.
// Empty results are dropped.
func (c *Config) ResolveAPIKeys(name string) []string {
	p, ok := c.Providers[name]
	if !ok {
		return nil
	}
	var keys []string
	for _, raw := range p.APIKeys {
		for _, k := range strings.Split(ResolveEnvVars(raw), ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys
}
