// Package prompts provides prompt management with embedded defaults and
// configuration overrides.
//
// Embedded .tmpl files in the stage subpackages are the source of truth for
// defaults. The prompts section of the config file may replace any of them
// by key; overrides are swapped in on config reload.
//
// Every resolved prompt carries the hash of its text so logs can tie a
// generation call to the exact prompt version that produced it.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: summary.structure
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}

// ResolvedPrompt is the prompt text in effect for a key.
type ResolvedPrompt struct {
	Key        string   `json:"key"`
	Text       string   `json:"text"`
	Variables  []string `json:"variables,omitempty"`
	IsOverride bool     `json:"is_override"`
	Hash       string   `json:"hash"`
}
