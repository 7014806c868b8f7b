package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/config"
	"github.com/jackzampolin/lexshelf/internal/format"
	"github.com/jackzampolin/lexshelf/internal/home"
	"github.com/jackzampolin/lexshelf/internal/metrics"
	"github.com/jackzampolin/lexshelf/internal/objstore"
	"github.com/jackzampolin/lexshelf/internal/prompts"
	"github.com/jackzampolin/lexshelf/internal/prompts/rewrite"
	"github.com/jackzampolin/lexshelf/internal/prompts/summary"
	"github.com/jackzampolin/lexshelf/internal/providers"
	"github.com/jackzampolin/lexshelf/internal/server/endpoints"
	"github.com/jackzampolin/lexshelf/internal/store"
	"github.com/jackzampolin/lexshelf/internal/summarize"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
)

// mediaRoute serves objects written by the local object store.
const mediaRoute = "/media/"

// Server is the main lexshelf HTTP server.
// It opens the store on start and closes it on shutdown.
type Server struct {
	httpServer *http.Server
	cfg        Config
	registry   *providers.Registry
	recorder   *metrics.Recorder
	resolver   *prompts.Resolver
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home locates the database and media directories.
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support.
	// Without one the defaults are used.
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger

	// Store, Objects and Registry replace the configured backends when set.
	Store    store.Store
	Objects  objstore.Store
	Registry *providers.Registry
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil && (cfg.Store == nil || cfg.Objects == nil) {
		return nil, errors.New("home directory is required unless store and objects are provided")
	}

	current := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		current = cfg.ConfigManager.Get()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = providers.NewRegistryFromConfig(current.ToProviderRegistryConfig())
	}
	registry.SetLogger(cfg.Logger)

	resolver := prompts.NewResolver(cfg.Logger)
	summary.RegisterPrompts(resolver)
	rewrite.RegisterPrompts(resolver)
	resolver.SetOverrides(current.Prompts)

	s := &Server{
		cfg:      cfg,
		registry: registry,
		recorder: metrics.NewRecorder(),
		resolver: resolver,
		logger:   cfg.Logger,
	}

	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			if cfg.Registry == nil {
				registry.Reload(c.ToProviderRegistryConfig())
			}
			resolver.SetOverrides(c.Prompts)
			cfg.Logger.Info("provider registry and prompt overrides reloaded from config")
		})
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		if err := s.endpointRegistry.Register(ep); err != nil {
			return nil, err
		}
	}
	cfg.Logger.Debug("registered routes", "routes", s.endpointRegistry.Routes())

	// Responses are written only after a pipeline invocation returns, so
	// the write timeout has to outlast the invocation deadline.
	writeTimeout := max(2*time.Minute, current.Pipeline.InvocationDeadline.Std()+30*time.Second)
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler with services attached to each request.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)
	mux.Handle("GET /metrics", s.recorder.Handler())
	mux.HandleFunc("GET "+mediaRoute, s.serveMedia)
	return s.withServices(mux)
}

// Initialize opens the store and object storage and builds both pipelines.
// Start calls it; tests driving Handler directly call it themselves.
func (s *Server) Initialize(ctx context.Context) error {
	current := config.DefaultConfig()
	if s.cfg.ConfigManager != nil {
		current = s.cfg.ConfigManager.Get()
	}

	st := s.cfg.Store
	if st == nil {
		dsn := current.Store.DSN
		if dsn == "" && (current.Store.Driver == "" || current.Store.Driver == store.DriverSQLite) {
			dsn = s.cfg.Home.DatabasePath()
		}
		opened, err := store.Open(ctx, store.Options{
			Driver: current.Store.Driver,
			DSN:    dsn,
			Logger: s.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		st = opened
	}

	objects := s.cfg.Objects
	if objects == nil {
		dir := current.Media.Dir
		if dir == "" {
			dir = s.cfg.Home.MediaPath()
		}
		baseURL := current.Media.BaseURL
		if baseURL == "" {
			baseURL = "http://" + net.JoinHostPort(s.cfg.Host, s.cfg.Port) + "/media"
		}
		local, err := objstore.NewLocal(dir, baseURL)
		if err != nil {
			_ = st.Close()
			return fmt.Errorf("failed to create media store: %w", err)
		}
		objects = local
	}

	clientCfg := current.ToClientConfig()
	clientCfg.Logger = s.logger
	clientCfg.Observer = s.recorder
	client := providers.NewClient(s.registry, clientCfg)

	pc := current.Pipeline
	summarizer, err := summarize.New(st, objects, client, s.resolver, summarize.Options{
		BatchSize:    pc.BatchSize,
		Deadline:     pc.InvocationDeadline.Std(),
		Margin:       pc.SafetyMargin.Std(),
		MediaTimeout: pc.MediaCallTimeout.Std(),
		Voice:        current.Models.Voice,
		AudioFormat:  current.Models.AudioFormat,
		Logger:       s.logger,
		Recorder:     s.recorder,
	})
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to create summary orchestrator: %w", err)
	}
	formatter, err := format.New(st, client, s.resolver, format.Options{
		PageSize:       pc.PageSize,
		Deadline:       pc.InvocationDeadline.Std(),
		Margin:         pc.SafetyMargin.Std(),
		RewriteTimeout: pc.RewriteCallTimeout.Std(),
		Threshold:      pc.PreservationThreshold,
		Rewrite:        pc.RewriteEnabled,
		Logger:         s.logger,
		Recorder:       s.recorder,
	})
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to create formatting pipeline: %w", err)
	}

	s.mu.Lock()
	s.services = &svcctx.Services{
		Store:      st,
		Objects:    objects,
		Registry:   s.registry,
		Summarizer: summarizer,
		Formatter:  formatter,
		Prompts:    s.resolver,
		Metrics:    s.recorder,
		Config:     s.cfg.ConfigManager,
		Logger:     s.logger,
		Home:       s.cfg.Home,
	}
	s.mu.Unlock()
	return nil
}

// Start initializes services and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Initialize(ctx); err != nil {
		s.setNotRunning()
		return err
	}
	if err := s.registry.Ready(); err != nil {
		s.logger.Warn("provider registry not ready, generation calls will fail", "error", err)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains in-flight requests and closes the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.httpServer.WriteTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if svc := s.servicesSnapshot(); svc != nil && svc.Store != nil {
		if err := svc.Store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Server) servicesSnapshot() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Metrics returns the metrics recorder.
func (s *Server) Metrics() *metrics.Recorder {
	return s.recorder
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.servicesSnapshot(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the store is open and the pipelines
// are built.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.servicesSnapshot() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

// serveMedia serves generated covers and narration from the local object
// store. Other object stores publish their own URLs.
func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	svc := s.servicesSnapshot()
	if svc == nil {
		http.NotFound(w, r)
		return
	}
	local, ok := svc.Objects.(*objstore.Local)
	if !ok {
		http.NotFound(w, r)
		return
	}
	local.Handler(mediaRoute).ServeHTTP(w, r)
}
