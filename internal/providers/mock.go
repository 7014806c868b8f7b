package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackzampolin/lexshelf/internal/types"
)

const MockName = "mock"

// MockCall records one attempt made against a MockBackend.
type MockCall struct {
	Kind       Kind
	Model      string
	Credential string
	Input      string
}

// MockBackend is a text, image and speech backend for testing.
// Respond decides each attempt's outcome; by default it echoes ResponseText.
type MockBackend struct {
	name string

	// Respond overrides the default behavior when set.
	Respond func(call MockCall) (string, error)
	// ResponseText is returned when Respond is nil.
	ResponseText string
	// Latency is simulated before responding, honoring ctx cancellation.
	Latency time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// NewMockBackend creates a mock backend registered under name.
func NewMockBackend(name string) *MockBackend {
	if name == "" {
		name = MockName
	}
	return &MockBackend{name: name, ResponseText: "mock response"}
}

// Name returns the provider identifier.
func (m *MockBackend) Name() string {
	return m.name
}

// Calls returns every recorded attempt in order.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of attempts of kind.
func (m *MockBackend) CallCount(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockBackend) do(ctx context.Context, call MockCall) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Respond != nil {
		return m.Respond(call)
	}
	return m.ResponseText, nil
}

// GenerateText records the call and returns the programmed response.
func (m *MockBackend) GenerateText(ctx context.Context, model string, key types.ProviderKey, req *TextRequest) (string, error) {
	return m.do(ctx, MockCall{Kind: KindText, Model: model, Credential: key.Credential, Input: req.Prompt})
}

// GenerateImage returns the programmed response bytes as a PNG.
func (m *MockBackend) GenerateImage(ctx context.Context, model string, key types.ProviderKey, req *ImageRequest) (*ImageResult, error) {
	out, err := m.do(ctx, MockCall{Kind: KindImage, Model: model, Credential: key.Credential, Input: req.Prompt})
	if err != nil {
		return nil, err
	}
	return &ImageResult{Data: []byte(out), MIMEType: "image/png"}, nil
}

// Synthesize returns the programmed response bytes as audio.
func (m *MockBackend) Synthesize(ctx context.Context, model string, key types.ProviderKey, req *SpeechRequest) (*SpeechResult, error) {
	out, err := m.do(ctx, MockCall{Kind: KindSpeech, Model: model, Credential: key.Credential, Input: req.Text})
	if err != nil {
		return nil, err
	}
	format := req.Format
	if format == "" {
		format = "mp3"
	}
	return &SpeechResult{Audio: []byte(out), Format: format}, nil
}

// MockStatus returns a StatusError as a provider would for code.
func MockStatus(code int) error {
	return &StatusError{Provider: MockName, StatusCode: code, Message: fmt.Sprintf("mock status %d", code)}
}

// NewMockRegistry registers backend for every kind with the given credentials
// and a single model per kind.
func NewMockRegistry(backend *MockBackend, credentials ...string) *Registry {
	r := NewRegistry()
	r.RegisterText(backend)
	r.RegisterImage(backend)
	r.RegisterSpeech(backend)
	r.SetPool(backend.Name(), 6000, credentials...)
	r.SetModels(KindText, ModelRef{Provider: backend.Name(), Model: "mock-text"})
	r.SetModels(KindImage, ModelRef{Provider: backend.Name(), Model: "mock-image"})
	r.SetModels(KindSpeech, ModelRef{Provider: backend.Name(), Model: "mock-speech"})
	return r
}

var (
	_ TextBackend   = (*MockBackend)(nil)
	_ ImageBackend  = (*MockBackend)(nil)
	_ SpeechBackend = (*MockBackend)(nil)
)
