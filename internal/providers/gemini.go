package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/jackzampolin/lexshelf/internal/types"
)

const (
	GeminiName               = "gemini"
	GeminiDefaultTextModel   = "gemini-2.5-flash"
	GeminiDefaultImageModel  = "gemini-2.5-flash-image"
	geminiDefaultHTTPTimeout = 120 * time.Second
)

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	Name       string       // Registry name, defaults to "gemini"
	BaseURL    string       // Optional (tests, proxies)
	HTTPClient *http.Client // Optional (tests)
}

// GeminiBackend generates text and images through the Gemini API.
// One genai client is kept per credential.
type GeminiBackend struct {
	name       string
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiBackend creates a Gemini backend.
func NewGeminiBackend(cfg GeminiConfig) *GeminiBackend {
	if cfg.Name == "" {
		cfg.Name = GeminiName
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: geminiDefaultHTTPTimeout}
	}
	return &GeminiBackend{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		clients:    make(map[string]*genai.Client),
	}
}

// Name returns the provider identifier.
func (g *GeminiBackend) Name() string {
	return g.name
}

func (g *GeminiBackend) client(ctx context.Context, key types.ProviderKey) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[key.Credential]; ok {
		return c, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     key.Credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.clients[key.Credential] = c
	return c, nil
}

// GenerateText performs one GenerateContent call.
func (g *GeminiBackend) GenerateText(ctx context.Context, model string, key types.ProviderKey, req *TextRequest) (string, error) {
	if model == "" {
		model = GeminiDefaultTextModel
	}
	c, err := g.client(ctx, key)
	if err != nil {
		return "", err
	}

	config, err := geminiTextConfig(req)
	if err != nil {
		return "", err
	}

	res, err := c.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return "", g.mapError(err)
	}
	return res.Text(), nil
}

func geminiTextConfig(req *TextRequest) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.JSONSchema) > 0 {
		_, schema, err := ResponseSchema(req.JSONSchema)
		if err != nil {
			return nil, err
		}
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = schema
	}
	return config, nil
}

// GenerateImage asks an image-capable Gemini model for inline image data.
func (g *GeminiBackend) GenerateImage(ctx context.Context, model string, key types.ProviderKey, req *ImageRequest) (*ImageResult, error) {
	if model == "" {
		model = GeminiDefaultImageModel
	}
	c, err := g.client(ctx, key)
	if err != nil {
		return nil, err
	}

	prompt := req.Prompt
	if req.AspectRatio != "" {
		prompt += "\n\nAspect ratio: " + req.AspectRatio
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	res, err := c.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return nil, g.mapError(err)
	}

	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if !strings.HasPrefix(mimeType, "image/") {
				continue
			}
			return &ImageResult{Data: part.InlineData.Data, MIMEType: mimeType}, nil
		}
	}
	return nil, ErrEmptyPayload
}

// mapError converts genai API errors into StatusError so the fallback client
// can classify them.
func (g *GeminiBackend) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: g.name, StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{Provider: g.name, StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return err
}

var (
	_ TextBackend  = (*GeminiBackend)(nil)
	_ ImageBackend = (*GeminiBackend)(nil)
)
