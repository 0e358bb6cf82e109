// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sigil-dev/chatrelay/internal/conversation"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
	"github.com/sigil-dev/chatrelay/pkg/health"
)

// AliveText is the body served on every keep-alive GET.
const AliveText = "Telegram Bot is Alive"

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr      string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Version         string
}

// Provider reports the completion backend in use and its health.
type Provider interface {
	Backend() string
	Model() string
	Health() health.Metrics
}

// StatsSource reports relay counters.
type StatsSource interface {
	Stats() conversation.Stats
}

// Server serves the keep-alive endpoint and a JSON health report.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	provider Provider
	stats    StatsSource
	started  time.Time
	logger   *slog.Logger
}

// New creates a Server. provider and stats may be nil; the health report
// then omits those sections.
func New(cfg Config, provider Provider, stats StatsSource) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, relayerr.New(relayerr.CodeServerConfigInvalid, "listen address is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.GetHead)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("chatrelay", cfg.Version)
	humaConfig.Info.Description = "Chat relay liveness and health"
	api := humachi.New(r, humaConfig)

	srv := &Server{
		router:   r,
		api:      api,
		cfg:      cfg,
		provider: provider,
		stats:    stats,
		started:  time.Now(),
		logger:   slog.Default().With("component", "server"),
	}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health report",
		Tags:        []string{"system"},
	}, srv.handleHealth)

	// Hosting platforms probe arbitrary paths; any other GET is a liveness check.
	r.Get("/*", handleAlive)

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return relayerr.Wrapf(err, relayerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- relayerr.Wrap(err, relayerr.CodeServerStartFailure, "serving http")
		}
		close(errCh)
	}()
	s.logger.Info("keep-alive server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return relayerr.Wrap(err, relayerr.CodeServerShutdownFailure, "shutting down")
	}
	return <-errCh
}

func handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, AliveText)
}

// ProviderStatus describes the completion backend.
type ProviderStatus struct {
	Backend string         `json:"backend" example:"google" doc:"Completion backend"`
	Model   string         `json:"model" example:"gemini-2.5-flash" doc:"Model name"`
	Health  health.Metrics `json:"health" doc:"Remote call health"`
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status   string              `json:"status" example:"ok" enum:"ok,degraded" doc:"ok, or degraded while the backend is cooling down"`
	Uptime   string              `json:"uptime" example:"1h2m3s" doc:"Time since start"`
	Provider *ProviderStatus     `json:"provider,omitempty"`
	Relay    *conversation.Stats `json:"relay,omitempty" doc:"Turn counters and live session count"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*HealthResponse, error) {
	body := HealthBody{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.provider != nil {
		ps := &ProviderStatus{
			Backend: s.provider.Backend(),
			Model:   s.provider.Model(),
			Health:  s.provider.Health(),
		}
		if !ps.Health.Available {
			body.Status = "degraded"
		}
		body.Provider = ps
	}
	if s.stats != nil {
		st := s.stats.Stats()
		body.Relay = &st
	}
	return &HealthResponse{Body: body}, nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}
