package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["method"] = r.Method
			body["agent"] = r.UserAgent()
			_ = json.NewEncoder(w).Encode(body)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"work has no source pages"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	ctx := context.Background()

	var echoed map[string]any
	if err := c.Post(ctx, "/echo", map[string]int{"batchIndex": 2}, &echoed); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if echoed["method"] != http.MethodPost || echoed["batchIndex"] != float64(2) {
		t.Errorf("echoed = %v", echoed)
	}
	if agent, _ := echoed["agent"].(string); !strings.HasPrefix(agent, "lexshelf-cli/") {
		t.Errorf("user agent = %q", agent)
	}

	err := c.Get(ctx, "/missing", nil)
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("Get(/missing) error = %v, want 404 StatusError", err)
	}
	if !strings.Contains(err.Error(), "work has no source pages") {
		t.Errorf("error message = %q", err.Error())
	}

	err = c.Get(ctx, "/other", nil)
	if !IsStatus(err, http.StatusBadGateway) || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("Get(/other) error = %v", err)
	}
}
