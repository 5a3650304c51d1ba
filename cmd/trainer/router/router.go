// Package router configures HTTP routes for the trainer's status server.
//
// Routes configured:
//   - GET /healthz - Health check; 503 when the run store is unreachable
//   - GET /metrics - Prometheus metrics endpoint
//   - GET /runs/latest?experiment=<name> - Most recent run record
//   - GET /runs?experiment=<name> - All run records of an experiment
//   - GET /progress - Position of the training job currently running
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/morepork/pkg/httpx"
	"github.com/HatiCode/morepork/pkg/storage"
)

// Progress reports where the running job is. It may be nil.
type Progress func() any

// SetupRoutes configures HTTP endpoints for the trainer.
func SetupRoutes(store storage.Store, gatherer prometheus.Gatherer, progress Progress, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandler(2*time.Second, map[string]httpx.Check{
		"store": store.Ping,
	}))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /runs/latest", handleLatest(store, logger))
	mux.HandleFunc("GET /runs", handleList(store, logger))
	mux.HandleFunc("GET /progress", handleProgress(progress, logger))

	return httpx.Recover(logger)(mux)
}

func experimentParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	experiment := r.URL.Query().Get("experiment")
	if experiment == "" {
		httpx.WriteError(w, http.StatusBadRequest, "experiment parameter required")
		return "", false
	}
	if !storage.ValidExperiment(experiment) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid experiment name format")
		return "", false
	}
	return experiment, true
}

// handleLatest returns a handler for GET /runs/latest?experiment=<name>.
func handleLatest(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		experiment, ok := experimentParam(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		run, found, err := store.GetLatest(ctx, experiment)
		if err != nil {
			logger.Error("failed to get latest run", "experiment", experiment, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteError(w, http.StatusNotFound, fmt.Sprintf("no runs for experiment %q", experiment))
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, run); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleList returns a handler for GET /runs?experiment=<name>. History is
// omitted to keep the listing small.
func handleList(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		experiment, ok := experimentParam(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		runs, err := store.List(ctx, experiment)
		if err != nil {
			logger.Error("failed to list runs", "experiment", experiment, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if runs == nil {
			runs = []storage.RunRecord{}
		}
		for i := range runs {
			runs[i].History = nil
		}
		resp := map[string]any{
			"experiment": experiment,
			"runs":       runs,
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleProgress(progress Progress, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if progress == nil {
			httpx.WriteError(w, http.StatusNotFound, "no training job")
			return
		}
		if err := httpx.WriteJSON(w, http.StatusOK, progress()); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
