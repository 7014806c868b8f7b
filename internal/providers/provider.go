// Package providers wraps text, image and speech generation backends behind a
// fallback client that rotates across credentials and models.
//
// Backends perform exactly one attempt against an explicit (model, credential)
// pair. Retrying, rate limiting and rotation live in Client.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// Kind identifies the type of generation call.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindSpeech Kind = "speech"
)

// TextBackend generates text with one model and one credential.
type TextBackend interface {
	// Name returns the provider identifier (e.g., "gemini").
	Name() string

	// GenerateText performs a single completion attempt.
	GenerateText(ctx context.Context, model string, key types.ProviderKey, req *TextRequest) (string, error)
}

// ImageBackend synthesizes an image from a prompt.
type ImageBackend interface {
	Name() string
	GenerateImage(ctx context.Context, model string, key types.ProviderKey, req *ImageRequest) (*ImageResult, error)
}

// SpeechBackend converts text to encoded audio.
type SpeechBackend interface {
	Name() string
	Synthesize(ctx context.Context, model string, key types.ProviderKey, req *SpeechRequest) (*SpeechResult, error)
}

// TextRequest is a single prompt for a text backend.
type TextRequest struct {
	System string
	Prompt string

	Temperature float64
	MaxTokens   int

	// JSONSchema asks the backend for JSON output. Validation is done locally
	// through Validate, so backends may ignore it.
	JSONSchema json.RawMessage

	// Validate defines a usable payload. A non-nil error makes the attempt
	// count as malformed output and the client moves to the next candidate.
	Validate func(text string) error `json:"-"`
}

// TextResult is the payload of a successful text call.
type TextResult struct {
	Text      string        `json:"text"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	KeyLabel  string        `json:"key"`
	Attempts  int           `json:"attempts"`
	TotalTime time.Duration `json:"total_time"`
}

// ImageRequest is a prompt for an image backend.
type ImageRequest struct {
	Prompt string
	// AspectRatio such as "16:9"; backends may ignore it.
	AspectRatio string
}

// ImageResult holds decoded image bytes.
type ImageResult struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`

	Provider string `json:"provider"`
	Model    string `json:"model"`
	KeyLabel string `json:"key"`
}

// Extension returns a file extension for the image MIME type.
func (r *ImageResult) Extension() string {
	switch r.MIMEType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

// SpeechRequest is narration text for a speech backend.
type SpeechRequest struct {
	Text         string
	Voice        string
	Format       string // "mp3" (default), "opus", "aac", "flac", "wav"
	Instructions string
}

// SpeechResult holds encoded audio.
type SpeechResult struct {
	Audio  []byte `json:"-"`
	Format string `json:"format"`

	Provider string `json:"provider"`
	Model    string `json:"model"`
	KeyLabel string `json:"key"`
}
