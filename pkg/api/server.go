package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/events"
	"github.com/cuemby/shiftkeeper/pkg/excuse"
	"github.com/cuemby/shiftkeeper/pkg/ledger"
	"github.com/cuemby/shiftkeeper/pkg/log"
	"github.com/cuemby/shiftkeeper/pkg/metrics"
	"github.com/cuemby/shiftkeeper/pkg/reconciler"
	"github.com/cuemby/shiftkeeper/pkg/shifttime"
	"github.com/cuemby/shiftkeeper/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Reconciler is the part of the reconciler the API drives
type Reconciler interface {
	Tick(ctx context.Context) (*reconciler.Summary, error)
	RecordDeparture(ctx context.Context, userID string, endedAt time.Time) (int, error)
}

// Options configures optional server behavior
type Options struct {
	// CORSOrigins enables CORS for the listed origins when non-empty
	CORSOrigins []string

	// ReadOnly rejects every request that could change state
	ReadOnly bool
}

// Server serves the shiftkeeper HTTP API
type Server struct {
	store    storage.Store
	rec      Reconciler
	resolver *shifttime.Resolver
	ledger   *ledger.Ledger
	excuses  *excuse.Service
	now      func() time.Time
	logger   zerolog.Logger
	router   chi.Router
	http     *http.Server
}

// NewServer creates a new API server
func NewServer(store storage.Store, rec Reconciler, resolver *shifttime.Resolver, broker *events.Broker, opts Options) *Server {
	s := &Server{
		store:    store,
		rec:      rec,
		resolver: resolver,
		ledger:   ledger.New(store),
		excuses:  excuse.NewService(store, broker),
		now:      time.Now,
		logger:   log.WithComponent("api"),
	}
	s.router = s.routes(opts)
	return s
}

func (s *Server) routes(opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	if opts.ReadOnly {
		r.Use(readOnly)
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	s.mountHealth(r)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tick", s.handleTick)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Put("/", s.handlePutSchedules)
		})

		r.Route("/occurrences", func(r chi.Router) {
			r.Get("/", s.handleListOccurrences)
			r.Put("/", s.handlePutOccurrences)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Post("/{id}/end", s.handleEndSession)
		})

		r.Route("/attendances", func(r chi.Router) {
			r.Post("/", s.handleCreateMakeup)
			r.Get("/{id}", s.handleGetAttendance)
			r.Post("/{id}/excuse", s.handleExcuse)
			r.Post("/{id}/review", s.handleReview)
		})

		r.Get("/users/{userID}/attendances", s.handleListUserAttendances)
	})

	return r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metrics.RegisterComponent(metrics.ComponentAPI, true, addr)
	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		return fmt.Errorf("failed to serve API: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
