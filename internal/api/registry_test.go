package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
)

type stubEndpoint struct {
	method, path string
	init         bool
}

func (e stubEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (e stubEndpoint) RequiresInit() bool { return e.init }

func (e stubEndpoint) Command(func() string) *cobra.Command { return &cobra.Command{Use: e.path} }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubEndpoint{method: "GET", path: "/open"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(stubEndpoint{method: "GET", path: "/gated", init: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(stubEndpoint{method: "GET", path: "/open"}); err == nil {
		t.Error("expected duplicate route error")
	}
	if got := r.Routes(); len(got) != 2 || got[0] != "GET /gated" || got[1] != "GET /open" {
		t.Errorf("Routes() = %v", got)
	}

	mux := http.NewServeMux()
	r.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	tests := []struct {
		path string
		want int
	}{
		{"/open", http.StatusNoContent},
		{"/gated", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}
