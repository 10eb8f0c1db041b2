// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sigil-dev/docqa/internal/document"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
	// TrustedProxies lists CIDR ranges whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the connecting address is the client.
	TrustedProxies []string
	ReadTimeout    time.Duration
	// WriteTimeout bounds non-streaming responses. Answer streams clear the
	// deadline for their own connection.
	WriteTimeout time.Duration
	// MaxUploadBytes caps the uploaded file. Default: 40 MiB.
	MaxUploadBytes int64
	RateLimit      RateLimitConfig
	Version        string
}

// Server wraps a chi router with huma API and HTTP server.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
	limiter  *clientLimiter
	done     chan struct{}
}

// New creates a Server with chi router, huma API, health endpoint, and CORS.
// The upload and chat routes answer 503 until RegisterServices is called.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, dqerr.New(dqerr.CodeServerConfigInvalid, "listen address is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = document.MaxUploadBytes
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	var trusted []*net.IPNet
	if len(cfg.TrustedProxies) > 0 {
		var err error
		if trusted, err = parseTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, err
		}
	}

	done := make(chan struct{})
	limiter, err := newClientLimiter(cfg.RateLimit, done)
	if err != nil {
		close(done)
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(clientIPMiddleware(trusted))
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("docqa gateway", cfg.Version)
	humaConfig.Info.Description = "Ask questions about uploaded PDF documents"
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	srv := &Server{
		router:  r,
		api:     api,
		cfg:     cfg,
		limiter: limiter,
		done:    done,
	}

	srv.registerUploadRoute()
	srv.registerSSERoute()

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
	defer s.Close()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return dqerr.Wrapf(err, dqerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("gateway listening", "addr", ln.Addr().String(), "version", s.cfg.Version)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return dqerr.Wrap(err, dqerr.CodeServerStartFailure, "serving")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return dqerr.Wrap(err, dqerr.CodeServerShutdownFailure, "shutting down")
	}

	return <-errCh
}

// Close stops background work. It is safe to call more than once.
func (s *Server) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	})
}

// apiError converts a domain error into a huma status error. Server-side
// failures are logged and reported without their cause.
func apiError(op string, err error) error {
	status := dqerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", "code", dqerr.CodeOf(err), "error", err)
		return huma.NewError(status, op+" failed")
	}
	return huma.NewError(status, err.Error())
}

// writeError is apiError for handlers outside huma.
func writeError(w http.ResponseWriter, op string, err error) {
	status := dqerr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", "code", dqerr.CodeOf(err), "error", err)
		msg = op + " failed"
	}
	writeJSONError(w, status, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}
