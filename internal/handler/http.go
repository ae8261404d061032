// internal/handler/http.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/headpose-service/internal/middleware"
	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

const maxBodyBytes = 16 << 20

// HealthChecker is satisfied by *health.Server
type HealthChecker interface {
	Check(ctx context.Context, in *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error)
}

// Router builds the HTTP API: estimation, latest results, metrics and
// health checks.
func (h *Handler) Router(health HealthChecker) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.HTTPRequestID, middleware.HTTPMetrics)

	r.HandleFunc("/v1/estimate", h.handleEstimate).Methods(http.MethodPost)
	r.HandleFunc("/v1/streams/{stream}/latest", h.handleLatest).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.HandleFunc("/healthz", healthHandler(health, "OK", "Service Unavailable"))
	// Readiness check (same as healthz for now)
	r.HandleFunc("/readyz", healthHandler(health, "Ready", "Not Ready"))

	return r
}

func healthHandler(health HealthChecker, ok, unavailable string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(unavailable))
			return
		}
		resp, err := health.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(unavailable))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(ok))
	}
}

// handleEstimate accepts a JSON EstimateRequest, a multipart form with an
// "image" file, or a raw image body with ?stream= and ?regions= query
// parameters.
func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	req, err := decodeEstimate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.Estimate(r.Context(), req)
	if err != nil {
		writeError(w, httpStatus(err), status.Convert(err).Message())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeEstimate(r *http.Request) (*EstimateRequest, error) {
	var req EstimateRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image file: %w", err)
		}
		defer file.Close()
		if req.Image, err = io.ReadAll(file); err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		req.Stream = r.FormValue("stream")
		if err := decodeRegions(r.FormValue("regions"), &req); err != nil {
			return nil, err
		}

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		req.Image = data
		req.Stream = r.URL.Query().Get("stream")
		if err := decodeRegions(r.URL.Query().Get("regions"), &req); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

func decodeRegions(raw string, req *EstimateRequest) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &req.Regions); err != nil {
		return fmt.Errorf("invalid regions: %w", err)
	}
	return nil
}

// handleLatest serves the last results cached for a stream; ?task=
// selects the task and defaults to head pose
func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "results store not configured")
		return
	}

	stream := mux.Vars(r)["stream"]
	taskName := r.URL.Query().Get("task")
	if taskName == "" {
		taskName = task.HeadPoseName
	}

	msg, err := h.store.Latest(r.Context(), stream, taskName)
	if err != nil {
		h.log.Warn("latest lookup failed", "stream", stream, "error", err)
		writeError(w, http.StatusBadGateway, "results store unavailable")
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no results for stream %q", stream))
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
