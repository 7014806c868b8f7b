package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/jackzampolin/lexshelf/internal/types"
)

func testClient(r *Registry) *Client {
	return NewClient(r, ClientConfig{AttemptsPerPair: 2, TransientBackoff: 0})
}

func twoModelRegistry(m *MockBackend, credentials ...string) *Registry {
	r := NewMockRegistry(m, credentials...)
	r.SetModels(KindText,
		ModelRef{Provider: m.Name(), Model: "model-a"},
		ModelRef{Provider: m.Name(), Model: "model-b"},
	)
	return r
}

func TestGenerateText_AllUnavailable(t *testing.T) {
	m := NewMockBackend("")
	m.Respond = func(MockCall) (string, error) { return "", MockStatus(http.StatusServiceUnavailable) }
	c := testClient(twoModelRegistry(m, "key-one", "key-two", "key-three"))

	result, err := c.GenerateText(context.Background(), &TextRequest{Prompt: "summarize"}, nil)
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	ee, ok := IsExhausted(err)
	if !ok {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}

	// 2 models x 3 credentials, each tried exactly once: 503 is not retried in place.
	if got := m.CallCount(KindText); got != 6 {
		t.Errorf("backend calls = %d, want 6", got)
	}
	if len(ee.Attempts) != 6 {
		t.Fatalf("attempts = %d, want 6", len(ee.Attempts))
	}
	seen := make(map[string]bool)
	for _, a := range ee.Attempts {
		if a.Outcome != OutcomeTransient {
			t.Errorf("attempt %s/%s outcome = %s, want transient", a.Model, a.KeyLabel, a.Outcome)
		}
		seen[a.Model+"|"+a.KeyLabel] = true
	}
	if len(seen) != 6 {
		t.Errorf("distinct combinations = %d, want 6", len(seen))
	}
}

func TestGenerateText_ModelMajorOrder(t *testing.T) {
	m := NewMockBackend("")
	m.Respond = func(MockCall) (string, error) { return "", MockStatus(http.StatusTooManyRequests) }
	c := testClient(twoModelRegistry(m, "key-aaaa", "key-bbbb"))

	_, _ = c.GenerateText(context.Background(), &TextRequest{Prompt: "p"}, nil)

	want := []string{"model-a|key-aaaa", "model-a|key-bbbb", "model-b|key-aaaa", "model-b|key-bbbb"}
	calls := m.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(calls), len(want))
	}
	for i, call := range calls {
		if got := call.Model + "|" + call.Credential; got != want[i] {
			t.Errorf("call %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestGenerateText_FallsThroughToWorkingCredential(t *testing.T) {
	m := NewMockBackend("")
	m.Respond = func(call MockCall) (string, error) {
		switch call.Credential {
		case "bad-key-1":
			return "", MockStatus(http.StatusTooManyRequests)
		case "bad-key-2":
			return "", MockStatus(http.StatusUnauthorized)
		}
		return "the summary", nil
	}
	c := testClient(NewMockRegistry(m, "bad-key-1", "bad-key-2", "good-key"))
	hint := NewHint()

	result, err := c.GenerateText(context.Background(), &TextRequest{Prompt: "p"}, hint)
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if result.Text != "the summary" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if pref, ok := hint.Preferred(m.Name()); !ok || pref != "good-key" {
		t.Errorf("hint preferred = %q, %v; want good-key", pref, ok)
	}

	// The next call in the same process starts from the remembered credential.
	m.Reset()
	if _, err := c.GenerateText(context.Background(), &TextRequest{Prompt: "p"}, hint); err != nil {
		t.Fatalf("second GenerateText() error = %v", err)
	}
	if calls := m.Calls(); len(calls) != 1 || calls[0].Credential != "good-key" {
		t.Errorf("second call order = %+v, want good-key first", calls)
	}
}

func TestGenerateText_EmptyAndInvalidPayloadAdvance(t *testing.T) {
	m := NewMockBackend("")
	m.Respond = func(call MockCall) (string, error) {
		switch call.Credential {
		case "empty":
			return "   ", nil
		case "prose":
			return "not json at all", nil
		}
		return `{"ok": true}`, nil
	}
	c := testClient(NewMockRegistry(m, "empty", "prose", "json"))

	req := &TextRequest{
		Prompt: "p",
		Validate: func(text string) error {
			if _, err := ParseStructuredJSON(text); err != nil {
				return err
			}
			return nil
		},
	}
	result, err := c.GenerateText(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if result.Text != `{"ok": true}` || result.Attempts != 3 {
		t.Errorf("result = %+v", result)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestGenerateText_RetriesNetworkErrorsInPlace(t *testing.T) {
	var n atomic.Int32
	m := NewMockBackend("")
	m.Respond = func(MockCall) (string, error) {
		if n.Add(1) == 1 {
			return "", fmt.Errorf("dial: %w", timeoutErr{})
		}
		return "ok", nil
	}
	c := testClient(NewMockRegistry(m, "only-key"))

	result, err := c.GenerateText(context.Background(), &TextRequest{Prompt: "p"}, nil)
	if err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}
	if result.Attempts != 1 {
		t.Errorf("candidates tried = %d, want 1", result.Attempts)
	}
	if got := m.CallCount(KindText); got != 2 {
		t.Errorf("backend calls = %d, want 2", got)
	}
}

func TestGenerateImage_CredentialMajor(t *testing.T) {
	m := NewMockBackend("")
	m.Respond = func(call MockCall) (string, error) {
		if call.Credential == "img-key-1" {
			return "", MockStatus(http.StatusServiceUnavailable)
		}
		return "png-bytes", nil
	}
	c := testClient(NewMockRegistry(m, "img-key-1", "img-key-2"))

	img, err := c.GenerateImage(context.Background(), &ImageRequest{Prompt: "a courthouse"}, nil)
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if string(img.Data) != "png-bytes" || img.Extension() != "png" {
		t.Errorf("image = %q %s", img.Data, img.Extension())
	}
	if img.KeyLabel != (types.ProviderKey{ProviderName: "mock", Credential: "img-key-2"}).Label() {
		t.Errorf("KeyLabel = %q", img.KeyLabel)
	}
}

func TestSynthesize_Exhausted(t *testing.T) {
	m := NewMockBackend("")
	m.Respond = func(MockCall) (string, error) { return "", nil }
	c := testClient(NewMockRegistry(m, "k1", "k2"))

	_, err := c.Synthesize(context.Background(), &SpeechRequest{Text: "narrate this"}, nil)
	ee, ok := IsExhausted(err)
	if !ok {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	for _, a := range ee.Attempts {
		if !errors.Is(a.Err, ErrEmptyPayload) {
			t.Errorf("attempt error = %v, want ErrEmptyPayload", a.Err)
		}
	}
}

func TestGenerateText_NoCandidates(t *testing.T) {
	c := testClient(NewRegistry())
	_, err := c.GenerateText(context.Background(), &TextRequest{Prompt: "p"}, nil)
	ee, ok := IsExhausted(err)
	if !ok || len(ee.Attempts) != 0 {
		t.Fatalf("expected empty exhausted error, got %v", err)
	}
}

func TestGenerateText_Cancelled(t *testing.T) {
	m := NewMockBackend("")
	c := testClient(NewMockRegistry(m, "k1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GenerateText(ctx, &TextRequest{Prompt: "p"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("cancellation must not be reported as exhaustion")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSuccess},
		{"429", MockStatus(429), OutcomeTransient},
		{"503", MockStatus(503), OutcomeTransient},
		{"wrapped 503", fmt.Errorf("call: %w", MockStatus(503)), OutcomeTransient},
		{"500", MockStatus(500), OutcomeFailed},
		{"401", MockStatus(401), OutcomeFailed},
		{"empty", ErrEmptyPayload, OutcomeFailed},
		{"other", errors.New("boom"), OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlans(t *testing.T) {
	pools := map[string][]types.ProviderKey{
		"gemini": {{ProviderName: "gemini", Credential: "g1"}, {ProviderName: "gemini", Credential: "g2"}},
		"openai": {{ProviderName: "openai", Credential: "o1"}},
	}
	models := []ModelRef{{"gemini", "flash"}, {"openai", "mini"}, {"gemini", "pro"}}

	render := func(p Plan) []string {
		var out []string
		for _, c := range p {
			out = append(out, c.Model+"|"+c.Key.Credential)
		}
		return out
	}

	t.Run("text model-major", func(t *testing.T) {
		got := render(TextPlan(models, pools, nil))
		want := []string{"flash|g1", "flash|g2", "mini|o1", "pro|g1", "pro|g2"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("TextPlan = %v, want %v", got, want)
		}
	})

	t.Run("media credential-major", func(t *testing.T) {
		got := render(MediaPlan(models, pools, nil))
		want := []string{"flash|g1", "pro|g1", "flash|g2", "pro|g2", "mini|o1"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("MediaPlan = %v, want %v", got, want)
		}
	})

	t.Run("hint reorders without dropping", func(t *testing.T) {
		hint := NewHint()
		hint.Remember(types.ProviderKey{ProviderName: "gemini", Credential: "g2"})
		got := render(TextPlan(models[:1], pools, hint))
		want := []string{"flash|g2", "flash|g1"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("TextPlan with hint = %v, want %v", got, want)
		}
		if pools["gemini"][0].Credential != "g1" {
			t.Error("hint modified the pool")
		}
	})
}
