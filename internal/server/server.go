// Package server exposes preprocessing sessions over an HTTP/JSON API.
//
// Each session owns a working and a baseline dataset held by the pipeline
// controller. Clients create a session, upload or load data, inspect it,
// apply steps one at a time and export the result:
//
//	POST   /api/sessions
//	POST   /api/sessions/{id}/upload
//	GET    /api/sessions/{id}/overview
//	POST   /api/sessions/{id}/steps/{step}
//	GET    /api/sessions/{id}/export?format=csv
//	DELETE /api/sessions/{id}
package server

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/internal/pipeline"
	"github.com/ajitpratap0/prepdash/pkg/config"
	"github.com/ajitpratap0/prepdash/pkg/logger"
	"github.com/ajitpratap0/prepdash/pkg/observability"
	"github.com/ajitpratap0/prepdash/pkg/source"
	"github.com/ajitpratap0/prepdash/pkg/transform"
)

// Options wires a Server to the engine.
type Options struct {
	Config     *config.Config
	Controller *pipeline.Controller
	Registry   *transform.Registry
	// Loader reads the configured default sources; nil starts every session
	// with an empty dataset.
	Loader *source.Loader
	Logger *zap.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg      *config.Config
	ctrl     *pipeline.Controller
	registry *transform.Registry
	loader   *source.Loader
	sessions *Sessions
	logger   *zap.Logger
	proc     *process.Process
	started  time.Time
	router   chi.Router
}

// New builds a server and its routes.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("component", "server"))
	registry := opts.Registry
	if registry == nil {
		registry = transform.NewRegistry(transform.Options{Seed: cfg.Pipeline.Seed})
	}

	s := &Server{
		cfg:      cfg,
		ctrl:     opts.Controller,
		registry: registry,
		loader:   opts.Loader,
		sessions: NewSessions(opts.Controller, cfg.Store.SessionTTL, log),
		logger:   log,
		started:  time.Now(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.Tracing.Enabled {
		r.Use(observability.TracingMiddleware(s.cfg.Tracing.ServiceName))
	}

	r.Get("/healthz", s.handleHealthz)
	if s.cfg.Server.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/steps", s.handleSteps)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/upload", s.handleUpload)
			r.Get("/datasets/{which}", s.handleDataset)
			r.Get("/overview", s.handleOverview)
			r.Get("/describe", s.handleDescribe)
			r.Get("/univariate", s.handleUnivariate)
			r.Get("/bivariate", s.handleBivariate)
			r.Post("/steps/{step}", s.handleStep)
			r.Get("/export", s.handleExport)
		})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Sessions returns the session registry.
func (s *Server) Sessions() *Sessions { return s.sessions }

// ListenAndServe serves on the configured address until ctx is canceled,
// then shuts down gracefully and closes every session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sessions.Run(sweepCtx, s.cfg.Store.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	err := srv.Shutdown(shutdownCtx)
	if cerr := s.sessions.CloseAll(shutdownCtx); cerr != nil {
		s.logger.Warn("failed to close sessions", zap.Error(cerr))
	}
	return err
}

type healthResponse struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	Sessions      int     `json:"sessions"`
	Goroutines    int     `json:"goroutines"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
	SystemMemUsed float64 `json:"system_memory_used_percent,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Sessions:   s.sessions.Len(),
		Goroutines: runtime.NumGoroutine(),
	}
	if s.proc != nil {
		if info, err := s.proc.MemoryInfoWithContext(r.Context()); err == nil {
			resp.RSSBytes = info.RSS
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		resp.SystemMemUsed = vm.UsedPercent
	}
	writeJSON(w, http.StatusOK, resp)
}
