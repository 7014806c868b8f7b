package api

import (
	"fmt"
	"net/http"
	"slices"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
	patterns  map[string]struct{}
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{patterns: make(map[string]struct{})}
}

// Register adds an endpoint. Registering the same method and path twice is
// an error.
func (r *Registry) Register(ep Endpoint) error {
	method, path, _ := ep.Route()
	pattern := method + " " + path
	if _, dup := r.patterns[pattern]; dup {
		return fmt.Errorf("duplicate route %q", pattern)
	}
	r.patterns[pattern] = struct{}{}
	r.endpoints = append(r.endpoints, ep)
	return nil
}

// RegisterRoutes registers all endpoint HTTP routes with the given mux.
// initMiddleware wraps handlers that require full server initialization.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// Routes returns the registered patterns, sorted.
func (r *Registry) Routes() []string {
	routes := make([]string, 0, len(r.patterns))
	for p := range r.patterns {
		routes = append(routes, p)
	}
	slices.Sort(routes)
	return routes
}
