package providers

import (
	"testing"
)

func TestRegistryFromConfig(t *testing.T) {
	r := NewRegistryFromConfig(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"gemini":   {Type: TypeGemini, APIKeys: []string{"g-key-1", " ", "g-key-2"}, Enabled: true},
			"openai":   {Type: TypeOpenAI, APIKeys: []string{"o-key-1"}, Enabled: true},
			"disabled": {Type: TypeOpenAI, APIKeys: []string{"x"}, Enabled: false},
			"nokeys":   {Type: TypeGemini, Enabled: true},
			"unknown":  {Type: "carrier-pigeon", APIKeys: []string{"x"}, Enabled: true},
		},
		TextModels:   []ModelRef{{"gemini", "gemini-2.5-flash"}, {"openai", "gpt-4o-mini"}},
		ImageModels:  []ModelRef{{"gemini", "gemini-2.5-flash-image"}},
		SpeechModels: []ModelRef{{"openai", "tts-1-hd"}},
	})

	if got := len(r.Pool("gemini")); got != 2 {
		t.Errorf("gemini pool = %d, want 2", got)
	}
	for _, name := range []string{"disabled", "nokeys", "unknown"} {
		if got := len(r.Pool(name)); got != 0 {
			t.Errorf("%s pool = %d, want 0", name, got)
		}
	}
	if _, ok := r.speechBackend("gemini"); ok {
		t.Error("gemini should not register a speech backend")
	}
	if _, ok := r.speechBackend("openai"); !ok {
		t.Error("openai speech backend missing")
	}

	if got := len(r.Plan(KindText, nil)); got != 3 {
		t.Errorf("text plan = %d candidates, want 3", got)
	}
	if got := len(r.Plan(KindImage, nil)); got != 2 {
		t.Errorf("image plan = %d candidates, want 2", got)
	}
	if err := r.Ready(); err != nil {
		t.Errorf("Ready() error = %v", err)
	}
}

func TestRegistryReload(t *testing.T) {
	r := NewRegistryFromConfig(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"gemini": {Type: TypeGemini, APIKeys: []string{"g1"}, Enabled: true},
		},
		TextModels: []ModelRef{{"gemini", "flash"}},
	})
	if err := r.Ready(); err == nil {
		t.Error("Ready() should fail without image and speech models")
	}

	r.Reload(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"openai": {Type: TypeOpenAI, APIKeys: []string{"o1", "o2"}, Enabled: true},
		},
		TextModels:   []ModelRef{{"openai", "gpt-4o-mini"}},
		ImageModels:  []ModelRef{{"openai", "gpt-image-1"}},
		SpeechModels: []ModelRef{{"openai", "tts-1-hd"}},
	})

	if got := len(r.Pool("gemini")); got != 0 {
		t.Errorf("gemini pool after reload = %d, want 0", got)
	}
	plan := r.Plan(KindText, nil)
	if len(plan) != 2 || plan[0].Provider != "openai" {
		t.Errorf("text plan after reload = %+v", plan)
	}
	if err := r.Ready(); err != nil {
		t.Errorf("Ready() after reload error = %v", err)
	}
}

func TestRateLimiterRecord429(t *testing.T) {
	l := NewRateLimiter(60)
	l.Record429(0)
	st := l.Status()
	if st.Total429 != 1 || st.TokensAvailable != 60 {
		t.Errorf("status after 429 without retry-after = %+v", st)
	}

	l.Record429(0)
	l.Record429(5)
	if st := l.Status(); st.TokensAvailable != 0 || st.Total429 != 3 {
		t.Errorf("status after 429 with retry-after = %+v", st)
	}
}
