package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParseStructuredJSON parses JSON from model output, with lightweight recovery
// for markdown code fences and surrounding text.
func ParseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize structured output: %w", mErr)
			}
			return normalized, nil
		}
	}
	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate returns the first balanced JSON object or array in
// content, skipping braces inside strings.
func extractJSONCandidate(content string) string {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// Schema is a compiled JSON schema.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// CompileSchema compiles a raw JSON schema document. A {"schema": {...}}
// wrapper as used for OpenAI structured outputs is unwrapped.
func CompileSchema(name string, raw json.RawMessage) (*Schema, error) {
	core, err := extractValidationSchema(raw)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(core)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// Raw returns the schema document as given to CompileSchema.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(doc json.RawMessage) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("failed to decode JSON for validation: %w", err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("output does not match schema: %w", err)
	}
	return nil
}

// Validator returns a TextRequest.Validate function that accepts model output
// only when it parses as JSON matching the schema.
func (s *Schema) Validator() func(string) error {
	return func(text string) error {
		parsed, err := ParseStructuredJSON(text)
		if err != nil {
			return err
		}
		return s.Validate(parsed)
	}
}

func extractValidationSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var root any
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}

	if rootMap, ok := root.(map[string]any); ok {
		// Common OpenAI wrapper: {"name","strict","schema":{...}}
		if inner, ok := rootMap["schema"]; ok {
			b, err := json.Marshal(inner)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize inner schema: %w", err)
			}
			return b, nil
		}
	}
	return schemaRaw, nil
}

// ResponseSchema decodes a raw schema into the name and schema object sent
// to backends that support constrained JSON output. The OpenAI wrapper is
// unwrapped; a bare schema is named "structured_output".
func ResponseSchema(raw json.RawMessage) (string, map[string]any, error) {
	core, err := extractValidationSchema(raw)
	if err != nil {
		return "", nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(core, &schema); err != nil {
		return "", nil, fmt.Errorf("schema is not a JSON object: %w", err)
	}

	name := "structured_output"
	var wrapper struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &wrapper) == nil && wrapper.Name != "" {
		name = wrapper.Name
	}
	return name, schema, nil
}
