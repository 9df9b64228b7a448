package api

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/navikt/myrooms/internal/logging"
	"github.com/navikt/myrooms/internal/metrics"
	"github.com/navikt/myrooms/internal/repository"
)

// SetupRoutes registers the health and metrics endpoints
func SetupRoutes(r chi.Router, repo repository.Repository, m *metrics.Metrics, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = logging.Nop()
	}

	// Stores without an external dependency are always ready
	pinger, _ := repo.(Pinger)

	// Health check endpoints for Kubernetes
	r.Get("/health/live", HealthLiveHandler)
	r.Get("/health/ready", NewHealthReadyHandler(pinger, logger))

	r.Method("GET", "/metrics", m.Handler())
}
