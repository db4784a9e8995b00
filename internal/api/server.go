// Package api exposes a roulette session over a local HTTP JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/MJE43/roulette-tracker-go/internal/autospin"
	"github.com/MJE43/roulette-tracker-go/internal/session"
	"github.com/MJE43/roulette-tracker-go/internal/store"
)

// Options configures a Server.
type Options struct {
	Session *session.Session
	Runner  *autospin.Runner
	// Store is checked by /health when it implements store.Pinger.
	Store       store.KV
	Logger      *zap.Logger
	CORSOrigins []string
	// AutospinCount and AutospinInterval apply when a start request omits
	// them. A zero count or nil interval selects the autospin defaults; a
	// zero interval spins back to back.
	AutospinCount    int
	AutospinInterval *time.Duration
}

// Server handles HTTP requests
type Server struct {
	session      *session.Session
	runner       *autospin.Runner
	store        store.KV
	errorHandler *ErrorHandler
	logger       *zap.Logger
	corsOrigins  []string
	spinCount    int
	spinInterval time.Duration
	startTime    time.Time
	httpServer   *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	runner := opts.Runner
	if runner == nil {
		runner = autospin.NewRunner(opts.Session, logger)
	}
	count := opts.AutospinCount
	if count <= 0 {
		count = autospin.DefaultCount
	}
	interval := autospin.DefaultInterval
	if opts.AutospinInterval != nil && *opts.AutospinInterval >= 0 {
		interval = *opts.AutospinInterval
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	return &Server{
		session:      opts.Session,
		runner:       runner,
		store:        opts.Store,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		corsOrigins:  origins,
		spinCount:    count,
		spinInterval: interval,
		startTime:    time.Now(),
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Error-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealthCheck)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/spin", s.handleSpin)
		r.Post("/reset", s.handleReset)
		r.Put("/variant", s.handleVariant)

		r.Get("/stats/hot", s.handleHot)
		r.Get("/stats/cold", s.handleCold)
		r.Get("/stats/colors", s.handleColors)
		r.Get("/predict", s.handlePredict)

		r.Get("/history", s.handleHistory)
		r.Get("/betting", s.handleBetting)
		r.Get("/state", s.handleState)

		r.Get("/autospin", s.handleAutospinStatus)
		r.Post("/autospin", s.handleAutospinStart)
		r.Delete("/autospin", s.handleAutospinStop)
	})

	return r
}

// Start binds addr and serves in the background. It returns once the socket
// is bound.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      40 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops a running autospin and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.runner.Stop(); err == nil {
		select {
		case <-s.runner.Done():
		case <-ctx.Done():
		}
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Roulette-Version", Version)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}
