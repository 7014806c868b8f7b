package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/lexshelf/internal/types"
)

var testOpenAIKey = types.ProviderKey{ProviderName: OpenAIName, Credential: "test-key"}

func TestOpenAISynthesizeSuccess(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL})
	result, err := backend.Synthesize(context.Background(), "gpt-4o-mini-tts", testOpenAIKey, &SpeechRequest{
		Text:         "The offer lapsed.",
		Voice:        "onyx",
		Format:       "mp3",
		Instructions: "Narrate calmly.",
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(result.Audio) != "mp3-bytes" || result.Format != "mp3" {
		t.Fatalf("unexpected result: %q %s", result.Audio, result.Format)
	}
	if got, _ := payload["model"].(string); got != "gpt-4o-mini-tts" {
		t.Errorf("expected model gpt-4o-mini-tts, got %q", got)
	}
	if got, _ := payload["voice"].(string); got != "onyx" {
		t.Errorf("expected voice onyx, got %q", got)
	}
	if got, _ := payload["instructions"].(string); got != "Narrate calmly." {
		t.Errorf("expected instructions, got %q", got)
	}
}

func TestOpenAISynthesizeRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit","type":"rate_limit_error","param":"","code":"rate_limit"}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL})
	_, err := backend.Synthesize(context.Background(), "tts-1-hd", testOpenAIKey, &SpeechRequest{Text: "Hello."})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if Classify(err) != OutcomeTransient {
		t.Fatalf("expected transient outcome, got %s (%v)", Classify(err), err)
	}
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if se.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", se.RetryAfter)
	}
}

func TestOpenAIGenerateText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"rewritten text"}}]}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL})
	text, err := backend.GenerateText(context.Background(), "", testOpenAIKey, &TextRequest{System: "s", Prompt: "p"})
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if text != "rewritten text" {
		t.Errorf("text = %q", text)
	}
}

func TestOpenAIGenerateTextJSONSchema(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{}"}}]}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL})
	schema := json.RawMessage(`{"name":"chapter_structure","strict":true,"schema":{"type":"object"}}`)
	if _, err := backend.GenerateText(context.Background(), "", testOpenAIKey, &TextRequest{Prompt: "p", JSONSchema: schema}); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}

	format, _ := payload["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("response_format = %#v", payload["response_format"])
	}
	inner, _ := format["json_schema"].(map[string]any)
	if inner["name"] != "chapter_structure" {
		t.Errorf("schema name = %v", inner["name"])
	}
	if body, _ := inner["schema"].(map[string]any); body["type"] != "object" {
		t.Errorf("schema = %#v", inner["schema"])
	}
}

func TestOpenAIGenerateTextUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL})
	_, err := backend.GenerateText(context.Background(), "", testOpenAIKey, &TextRequest{Prompt: "p"})
	if Classify(err) != OutcomeTransient {
		t.Fatalf("expected transient outcome, got %v", err)
	}
}

func TestOpenAISynthesizeValidation(t *testing.T) {
	backend := NewOpenAIBackend(OpenAIConfig{})
	_, err := backend.Synthesize(context.Background(), "", testOpenAIKey, &SpeechRequest{Text: " "})
	if err == nil || !strings.Contains(err.Error(), "text is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("7"); got != 7*time.Second {
		t.Errorf("parseRetryAfter(7) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v", got)
	}
}
