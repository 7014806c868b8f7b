package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store,omitempty"`
	Providers string `json:"providers,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler reports ready only when the store answers and every media kind
// has at least one usable model.
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok", Providers: "ok"}

	st := svcctx.StoreFrom(r.Context())
	switch {
	case st == nil:
		resp.Store = "not_initialized"
	case st.Ping(r.Context()) != nil:
		resp.Store = "unhealthy"
	}

	registry := svcctx.RegistryFrom(r.Context())
	switch {
	case registry == nil:
		resp.Providers = "not_initialized"
	case registry.Ready() != nil:
		resp.Providers = registry.Ready().Error()
	}

	if resp.Store != "ok" || resp.Providers != "ok" {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (store and providers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:    %s\n", resp.Status)
			fmt.Printf("Store:     %s\n", resp.Store)
			fmt.Printf("Providers: %s\n", resp.Providers)
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string                        `json:"server"`
	Models    map[string][]string           `json:"models"`
	Limiters  []providers.RateLimiterStatus `json:"limiters"`
	MediaRoot string                        `json:"media_root,omitempty"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Server: "running", Models: map[string][]string{}}

	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		for _, kind := range []providers.Kind{providers.KindText, providers.KindImage, providers.KindSpeech} {
			for _, m := range registry.Models(kind) {
				resp.Models[string(kind)] = append(resp.Models[string(kind)], m.String())
			}
		}
		resp.Limiters = registry.LimiterStatus()
	}
	if h := svcctx.HomeFrom(r.Context()); h != nil {
		resp.MediaRoot = h.MediaPath()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
