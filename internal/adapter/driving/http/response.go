package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// AnalysisRequest is the JSON body for the analyses endpoint. Connection
// fields left empty fall back to the server configuration.
type AnalysisRequest struct {
	URL           string `json:"url"`
	Username      string `json:"username"`
	APIKey        string `json:"api_key"`
	ProjectID     int64  `json:"project_id"`
	Milestone     string `json:"milestone"`
	Builds        int    `json:"builds"`
	FetchSections bool   `json:"fetch_sections"`
	SummaryOnly   bool   `json:"summary_only"`
	UseCache      *bool  `json:"use_cache"`
}

// AnalysisResponse is the dataset plus, when the analysis did not complete,
// the reason.
type AnalysisResponse struct {
	*model.Dataset
	Error string `json:"error,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
