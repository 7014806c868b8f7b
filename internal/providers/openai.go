package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/lexshelf/internal/types"
)

const (
	OpenAIName               = "openai"
	OpenAIDefaultTextModel   = "gpt-4o-mini"
	OpenAIDefaultImageModel  = "gpt-image-1"
	openAIDefaultHTTPTimeout = 120 * time.Second
)

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	Name       string       // Registry name, defaults to "openai"
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional (tests)
	Timeout    time.Duration
}

// OpenAIBackend implements text, image and speech generation using the
// official OpenAI SDK. One SDK client is kept per credential.
type OpenAIBackend struct {
	name       string
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]openai.Client
}

// NewOpenAIBackend creates an OpenAI backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.Name == "" {
		cfg.Name = OpenAIName
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = openAIDefaultHTTPTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIBackend{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		clients:    make(map[string]openai.Client),
	}
}

// Name returns the provider identifier.
func (o *OpenAIBackend) Name() string {
	return o.name
}

func (o *OpenAIBackend) client(key types.ProviderKey) openai.Client {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.clients[key.Credential]; ok {
		return c
	}
	// Retries are owned by the fallback client so every 429/503 is seen there.
	opts := []option.RequestOption{
		option.WithAPIKey(key.Credential),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		opts = append(opts, option.WithBaseURL(o.baseURL))
	}
	c := openai.NewClient(opts...)
	o.clients[key.Credential] = c
	return c
}

// GenerateText performs one chat completion.
func (o *OpenAIBackend) GenerateText(ctx context.Context, model string, key types.ProviderKey, req *TextRequest) (string, error) {
	if model == "" {
		model = OpenAIDefaultTextModel
	}
	client := o.client(key)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.JSONSchema) > 0 {
		name, schema, err := ResponseSchema(req.JSONSchema)
		if err != nil {
			return "", err
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{Name: name, Schema: schema},
			},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", o.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyPayload
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage requests a base64-encoded image and decodes it.
func (o *OpenAIBackend) GenerateImage(ctx context.Context, model string, key types.ProviderKey, req *ImageRequest) (*ImageResult, error) {
	if model == "" {
		model = OpenAIDefaultImageModel
	}
	client := o.client(key)

	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(model),
	}
	// gpt-image models always return base64; dall-e needs to be asked.
	if strings.HasPrefix(model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := client.Images.Generate(ctx, params)
	if err != nil {
		return nil, o.mapError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image: %v", ErrEmptyPayload, err)
	}
	return &ImageResult{Data: data, MIMEType: "image/png"}, nil
}

func (o *OpenAIBackend) mapError(err error) error {
	return mapOpenAIError(o.name, err)
}

func mapOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		se := &StatusError{
			Provider:   provider,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
		}
		if apiErr.Response != nil {
			se.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return se
	}
	return err
}

var (
	_ TextBackend   = (*OpenAIBackend)(nil)
	_ ImageBackend  = (*OpenAIBackend)(nil)
	_ SpeechBackend = (*OpenAIBackend)(nil)
)
