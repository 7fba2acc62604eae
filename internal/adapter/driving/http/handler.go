// Package httphandler is the HTTP driving adapter that serves the analysis API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/railpanel/internal/application"
	"github.com/ericfisherdev/railpanel/internal/domain/model"
	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

// maxBuilds caps the builds a single request may ask for.
const maxBuilds = 50

// maxBodyBytes caps the analysis request body.
const maxBodyBytes = 64 << 10

// Defaults holds the values used when a request leaves them unset.
type Defaults struct {
	ProjectID  int64
	BuildCount int
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	pipeline *application.Pipeline
	clients  *application.TestRailClientProvider
	defaults Defaults
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. pipeline is
// used as a template; each request runs it against the client resolved from
// its connection fields.
func NewHandler(
	pipeline *application.Pipeline,
	clients *application.TestRailClientProvider,
	defaults Defaults,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline: pipeline,
		clients:  clients,
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/analyses", h.Analyze)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, h.metrics, wrapped)

	return wrapped
}

// Analyze runs one analysis and returns the dataset. The status code is 404
// when the milestone does not exist, 401 when TestRail rejected the
// credentials and 502 when TestRail could not be reached; the dataset is
// returned in every case.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Milestone = strings.TrimSpace(req.Milestone)
	if req.Milestone == "" {
		writeError(w, http.StatusBadRequest, "milestone is required")
		return
	}
	if req.Builds < 0 || req.Builds > maxBuilds {
		writeError(w, http.StatusBadRequest, "builds must be between 1 and 50")
		return
	}
	if req.ProjectID < 0 {
		writeError(w, http.StatusBadRequest, "project_id must be positive")
		return
	}

	client, err := h.clients.Get(application.Connection{
		URL:      strings.TrimSpace(req.URL),
		Username: strings.TrimSpace(req.Username),
		APIKey:   strings.TrimSpace(req.APIKey),
	})
	if err != nil {
		if errors.Is(err, application.ErrMissingConnection) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid connection: "+err.Error())
		return
	}

	run := application.Request{
		ProjectID:     req.ProjectID,
		Milestone:     req.Milestone,
		BuildCount:    req.Builds,
		FetchSections: req.FetchSections,
		SummaryOnly:   req.SummaryOnly,
		UseCache:      req.UseCache == nil || *req.UseCache,
	}
	if run.ProjectID == 0 {
		run.ProjectID = h.defaults.ProjectID
	}
	if run.BuildCount == 0 {
		run.BuildCount = h.defaults.BuildCount
	}

	ds, err := h.pipeline.WithClient(client).Run(r.Context(), run)
	if err == nil {
		writeJSON(w, http.StatusOK, AnalysisResponse{Dataset: ds})
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("analysis failed", "milestone", req.Milestone, "session_id", ds.SessionID, "error", err)
	}
	writeJSON(w, status, AnalysisResponse{Dataset: ds, Error: err.Error()})
}

// statusFor maps a pipeline error to an HTTP status code.
func statusFor(err error) int {
	var rle *model.RateLimitError
	switch {
	case model.IsNotFound(err):
		return http.StatusNotFound
	case model.IsAuth(err):
		return http.StatusUnauthorized
	case errors.As(err, &rle):
		return http.StatusTooManyRequests
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
