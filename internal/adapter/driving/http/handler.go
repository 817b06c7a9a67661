// Package httphandler is the HTTP driving adapter: the GitHub webhook
// endpoint plus the small JSON API used by operators and the preview form.
package httphandler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/reviewbot/internal/application"
	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// maxPayloadBytes caps webhook and API request bodies.
const maxPayloadBytes = 5 << 20

// EventHandler handles a normalized webhook event.
type EventHandler interface {
	Handle(ctx context.Context, event model.Event) error
}

// Venues is the venue snapshot the admin API refreshes.
type Venues interface {
	Len() int
	Refresh(ctx context.Context) error
}

// Previews queues and looks up paper previews.
type Previews interface {
	Request(ctx context.Context, req application.PreviewRequest) (model.Job, error)
	Status(ctx context.Context, token string) (*model.Job, error)
}

// Secrets holds the shared secrets guarding the inbound endpoints. Empty
// values disable the corresponding check.
type Secrets struct {
	WebhookSecret string
	AdminToken    string
}

// Handler is the HTTP driving adapter that serves the webhook and REST API.
type Handler struct {
	events   EventHandler
	venues   Venues
	jobs     driven.JobQueue
	previews Previews
	deduper  driven.DeliveryDeduper
	secrets  Secrets
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. deduper may
// be nil, in which case redelivered webhooks are dispatched again.
func NewHandler(
	events EventHandler,
	venues Venues,
	jobs driven.JobQueue,
	previews Previews,
	deduper driven.DeliveryDeduper,
	secrets Secrets,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		events:   events,
		venues:   venues,
		jobs:     jobs,
		previews: previews,
		deduper:  deduper,
		secrets:  secrets,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. Extra registrars add routes owned by
// other driving adapters to the same mux.
func NewServeMux(h *Handler, logger *slog.Logger, extra ...func(*http.ServeMux)) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /dispatch", h.Webhook)
	mux.HandleFunc("POST /api/v1/webhook", h.Webhook)
	mux.HandleFunc("POST /api/v1/admin/venues/refresh", h.RefreshVenues)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/v1/previews", h.CreatePreview)
	mux.HandleFunc("GET /api/v1/previews/{token}", h.GetPreview)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	for _, register := range extra {
		register(mux)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Webhook receives a GitHub issues or issue_comment delivery and hands it to
// the dispatcher.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	if h.secrets.WebhookSecret != "" {
		signature := r.Header.Get(gh.SHA256SignatureHeader)
		if err := gh.ValidateSignature(signature, body, []byte(h.secrets.WebhookSecret)); err != nil {
			h.logger.Warn("rejected webhook signature", "delivery", gh.DeliveryID(r), "error", err)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	event, err := parseEvent(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	event.Delivery = gh.DeliveryID(r)
	event.Kind = gh.WebHookType(r)
	if event.Kind == "" {
		event.Kind = "issues"
		if event.CommentBody != "" {
			event.Kind = "issue_comment"
		}
	}

	settled := false
	if h.deduper != nil {
		first, err := h.deduper.FirstDelivery(r.Context(), event.Delivery)
		switch {
		case err != nil:
			// Dedupe failures fall through to dispatch.
			h.logger.Warn("delivery dedupe unavailable", "delivery", event.Delivery, "error", err)
		case !first:
			h.logger.Info("skipping redelivered webhook", "delivery", event.Delivery)
			writeJSON(w, http.StatusOK, WebhookResponse{Status: "duplicate"})
			return
		default:
			// A delivery that fails with a server error or panics is released
			// so GitHub's redelivery is dispatched again.
			defer func() {
				if !settled {
					h.forgetDelivery(r.Context(), event.Delivery)
				}
			}()
		}
	}

	if err := h.events.Handle(r.Context(), event); err != nil {
		status, message := statusFor(err)
		settled = status < http.StatusInternalServerError
		if !settled {
			h.logger.Error("webhook dispatch failed",
				"repo", event.Repo,
				"issue", event.Issue.Number,
				"error", err,
			)
		}
		writeError(w, status, message)
		return
	}

	settled = true
	writeJSON(w, http.StatusOK, WebhookResponse{Status: "ok"})
}

func (h *Handler) forgetDelivery(ctx context.Context, id string) {
	if err := h.deduper.Forget(context.WithoutCancel(ctx), id); err != nil {
		h.logger.Warn("releasing failed delivery", "delivery", id, "error", err)
	}
}

// statusFor maps dispatcher errors onto HTTP responses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, application.ErrInvalidEvent),
		errors.Is(err, application.ErrUnknownVenue),
		errors.Is(err, application.ErrPrecondition):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// webhookPayload is the subset of the GitHub issues and issue_comment
// payloads the bot reads.
type webhookPayload struct {
	Action string `json:"action"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Issue *struct {
		Number    int       `json:"number"`
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		State     string    `json:"state"`
		UpdatedAt time.Time `json:"updated_at"`
		Labels    []struct {
			Name string `json:"name"`
		} `json:"labels"`
		Assignees []struct {
			Login string `json:"login"`
		} `json:"assignees"`
	} `json:"issue"`
	Comment *struct {
		Body string `json:"body"`
	} `json:"comment"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func parseEvent(body []byte) (model.Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return model.Event{}, errors.New("invalid JSON payload")
	}
	if p.Issue == nil || p.Issue.Number == 0 {
		return model.Event{}, application.ErrInvalidEvent
	}

	event := model.Event{
		Action: p.Action,
		Sender: p.Sender.Login,
		Repo:   p.Repository.FullName,
		Issue: model.Issue{
			Repo:      p.Repository.FullName,
			Number:    p.Issue.Number,
			Title:     p.Issue.Title,
			Body:      p.Issue.Body,
			State:     p.Issue.State,
			UpdatedAt: p.Issue.UpdatedAt,
		},
	}
	for _, l := range p.Issue.Labels {
		event.Issue.Labels = append(event.Issue.Labels, l.Name)
	}
	for _, a := range p.Issue.Assignees {
		event.Issue.Assignees = append(event.Issue.Assignees, a.Login)
	}
	if p.Comment != nil {
		event.CommentBody = p.Comment.Body
	}

	return event, nil
}

// RefreshVenues rebuilds the venue snapshot from its source.
func (h *Handler) RefreshVenues(w http.ResponseWriter, r *http.Request) {
	if !h.authorizedAdmin(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.venues.Refresh(r.Context()); err != nil {
		h.logger.Error("venue refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "venue refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, VenuesResponse{Venues: h.venues.Len()})
}

// authorizedAdmin checks the bearer token. Without a configured admin token
// the admin API is closed.
func (h *Handler) authorizedAdmin(r *http.Request) bool {
	if h.secrets.AdminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secrets.AdminToken)) == 1
}

// GetJob returns a single queued job by ID.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	h.writeJob(w, job, err)
}

// GetPreview returns a preview job by its public token.
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	job, err := h.previews.Status(r.Context(), r.PathValue("token"))
	h.writeJob(w, job, err)
}

func (h *Handler) writeJob(w http.ResponseWriter, job *model.Job, err error) {
	if errors.Is(err, driven.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(*job))
}

// CreatePreview enqueues a proof build for a public repository.
func (h *Handler) CreatePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.previews.Request(r.Context(), application.PreviewRequest{
		Repository: req.Repository,
		Branch:     req.Branch,
		Journal:    req.Journal,
	})
	if errors.Is(err, application.ErrInvalidPreview) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to enqueue preview", "repository", req.Repository, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Location", "/api/v1/previews/"+job.Token)
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
		Venues: h.venues.Len(),
	})
}
