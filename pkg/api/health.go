package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

const storageProbeTimeout = 2 * time.Second

// mountHealth registers the probe and metrics endpoints
func (s *Server) mountHealth(r chi.Router) {
	r.Get("/health", s.withStorageProbe(metrics.HealthHandler()))
	r.Get("/ready", s.withStorageProbe(metrics.ReadyHandler()))
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())
}

// withStorageProbe refreshes the storage component before next reports on it
func (s *Server) withStorageProbe(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.probeStorage(r.Context())
		next(w, r)
	}
}

func (s *Server) probeStorage(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storageProbeTimeout)
	defer cancel()

	if _, err := s.store.ListSchedules(ctx); err != nil {
		metrics.UpdateComponent(metrics.ComponentStorage, false, err.Error())
		s.logger.Warn().Err(err).Msg("Storage probe failed")
		return
	}
	metrics.UpdateComponent(metrics.ComponentStorage, true, "ok")
}
