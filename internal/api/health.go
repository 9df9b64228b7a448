// Package api provides the operational HTTP handlers for myrooms
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse represents the response for health check endpoints
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthLiveHandler handles Kubernetes liveness probe requests
func HealthLiveHandler(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{Status: "UP"})
}

// NewHealthReadyHandler handles Kubernetes readiness probe requests. The
// instance is ready when its session store answers; a nil pinger is always ready.
func NewHealthReadyHandler(pinger Pinger, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := pinger.Ping(ctx); err != nil {
				logger.Warnf("Readiness check failed: %v", err)
				writeHealth(w, http.StatusServiceUnavailable, HealthResponse{Status: "DOWN", Error: "session store unavailable"})
				return
			}
		}

		writeHealth(w, http.StatusOK, HealthResponse{Status: "UP"})
	}
}

func writeHealth(w http.ResponseWriter, status int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
