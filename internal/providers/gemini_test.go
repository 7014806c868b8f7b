package providers

import (
	"encoding/json"
	"testing"
)

func TestGeminiTextConfig(t *testing.T) {
	tests := []struct {
		name       string
		req        *TextRequest
		wantMIME   string
		wantSchema bool
		wantErr    bool
	}{
		{name: "plain text", req: &TextRequest{Prompt: "p", System: "s", MaxTokens: 100}},
		{
			name:       "wrapped schema",
			req:        &TextRequest{Prompt: "p", JSONSchema: json.RawMessage(`{"name":"x","schema":{"type":"object"}}`)},
			wantMIME:   "application/json",
			wantSchema: true,
		},
		{
			name:       "bare schema",
			req:        &TextRequest{Prompt: "p", JSONSchema: json.RawMessage(`{"type":"object"}`)},
			wantMIME:   "application/json",
			wantSchema: true,
		},
		{name: "invalid schema", req: &TextRequest{Prompt: "p", JSONSchema: json.RawMessage(`[1,2]`)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := geminiTextConfig(tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("geminiTextConfig() error = %v", err)
			}
			if config.ResponseMIMEType != tt.wantMIME {
				t.Errorf("ResponseMIMEType = %q, want %q", config.ResponseMIMEType, tt.wantMIME)
			}
			schema, _ := config.ResponseJsonSchema.(map[string]any)
			if tt.wantSchema != (schema != nil) {
				t.Fatalf("ResponseJsonSchema = %#v", config.ResponseJsonSchema)
			}
			if tt.wantSchema && schema["type"] != "object" {
				t.Errorf("schema type = %v", schema["type"])
			}
		})
	}
}

func TestResponseSchemaName(t *testing.T) {
	name, _, err := ResponseSchema(json.RawMessage(`{"type":"object"}`))
	if err != nil || name != "structured_output" {
		t.Errorf("bare schema name = %q, %v", name, err)
	}
	name, schema, err := ResponseSchema(json.RawMessage(`{"name":"chapter_structure","schema":{"type":"object","required":["a"]}}`))
	if err != nil || name != "chapter_structure" {
		t.Errorf("wrapped schema name = %q, %v", name, err)
	}
	if _, ok := schema["required"]; !ok {
		t.Errorf("inner schema not unwrapped: %#v", schema)
	}
}
