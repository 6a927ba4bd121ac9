// Package api provides the LeadSheetML HTTP service: rendering on request,
// the songbook catalog, a websocket live preview and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FocuswithJustin/LeadSheetML/internal/catalog"
	"github.com/FocuswithJustin/LeadSheetML/internal/convert"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
)

// Config holds the API server configuration.
type Config struct {
	Port int
	// AllowedOrigins lists CORS and websocket origins (empty = allow all).
	AllowedOrigins []string
	ReadTimeout    time.Duration
	// MaxSourceBytes caps request bodies and websocket messages.
	MaxSourceBytes int64
	Version        string
}

// DefaultConfig returns the stock server configuration.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		MaxSourceBytes: 1 << 20,
		Version:        "dev",
	}
}

// Server serves the API. The catalog is optional; without one the /songs
// endpoints answer 503.
type Server struct {
	cfg     Config
	conv    *convert.Converter
	cat     *catalog.Catalog
	hub     *Hub
	metrics *metrics
	started time.Time
	handler http.Handler
}

// New builds a Server. Call Run (or start the hub yourself) before serving
// websocket clients.
func New(cfg Config, conv *convert.Converter, cat *catalog.Catalog) *Server {
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = DefaultConfig().MaxSourceBytes
	}
	s := &Server{
		cfg:     cfg,
		conv:    conv,
		cat:     cat,
		metrics: newMetrics(),
		started: time.Now(),
	}
	s.hub = NewHub(s.metrics)

	var handler http.Handler = s.routes()
	handler = securityHeaders(handler)
	handler = corsMiddleware(cfg.AllowedOrigins, handler)
	s.handler = logging.CombinedMiddleware(handler)
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// routes configures all HTTP routes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/formats", s.handleFormats)
	mux.HandleFunc("/render", s.handleRender)
	mux.HandleFunc("/songs", s.handleSongs)
	mux.HandleFunc("/songs/{id}", s.handleSongByID)
	mux.HandleFunc("/songs/{id}/render", s.handleSongRender)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", s.metrics.handler())

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		logging.Info("cors configured", "mode", "restricted", "allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.Info("cors configured", "mode", "permissive")
	}
	logging.ServerStartup("rest_api", "http", s.cfg.Port, "websocket_protocol", "ws", "catalog", s.cat != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	}
}
