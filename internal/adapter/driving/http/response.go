package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
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

// WebhookResponse acknowledges a handled delivery.
type WebhookResponse struct {
	Status string `json:"status"`
}

// VenuesResponse reports the size of the refreshed venue snapshot.
type VenuesResponse struct {
	Venues int `json:"venues"`
}

// PreviewRequest is the JSON body for requesting a paper preview. Journal
// selects the venue templates by its reviews repository and may be empty.
type PreviewRequest struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Journal    string `json:"journal"`
}

// JobResponse is the JSON representation of a queued job.
type JobResponse struct {
	ID        int64  `json:"id"`
	Token     string `json:"token,omitempty"`
	Kind      string `json:"kind"`
	Repo      string `json:"repo,omitempty"`
	Issue     int    `json:"issue,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Status    string `json:"status"`
	Report    string `json:"report,omitempty"`
	Error     string `json:"error,omitempty"`
	RunAt     string `json:"run_at"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Venues int    `json:"venues"`
}

func toJobResponse(job model.Job) JobResponse {
	return JobResponse{
		ID:        job.ID,
		Token:     job.Token,
		Kind:      string(job.Kind),
		Repo:      job.Repo,
		Issue:     job.Issue,
		Branch:    job.Branch,
		Status:    string(job.Status),
		Report:    job.Report,
		Error:     job.Error,
		RunAt:     job.RunAt.UTC().Format(time.RFC3339),
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
