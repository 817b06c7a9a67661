// Package web implements the HTML driving adapter: job status pages and the
// public paper preview form, rendered with templ components.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/ericfisherdev/reviewbot/internal/application"
	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// JobReader reads queued jobs by ID.
type JobReader interface {
	Get(ctx context.Context, id int64) (*model.Job, error)
}

// Previews queues and looks up paper previews.
type Previews interface {
	Request(ctx context.Context, req application.PreviewRequest) (model.Job, error)
	Status(ctx context.Context, token string) (*model.Job, error)
}

// VenueLister lists the configured venues for the journal selector.
type VenueLister interface {
	List() []model.Venue
}

// Handler is the web driving adapter that serves HTML via templ components.
type Handler struct {
	jobs     JobReader
	previews Previews
	venues   VenueLister
	now      func() time.Time
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(jobs JobReader, previews Previews, venues VenueLister, logger *slog.Logger) *Handler {
	return &Handler{
		jobs:     jobs,
		previews: previews,
		venues:   venues,
		now:      time.Now,
		logger:   logger,
	}
}

// previewForm is the submitted preview form.
type previewForm struct {
	Repository string
	Branch     string
	Journal    string
}

// JobPage renders the status page of a queued job.
func (h *Handler) JobPage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	h.renderJob(w, r, job, err)
}

// PreviewPage renders the status page of a preview by its token.
func (h *Handler) PreviewPage(w http.ResponseWriter, r *http.Request) {
	job, err := h.previews.Status(r.Context(), r.PathValue("token"))
	h.renderJob(w, r, job, err)
}

func (h *Handler) renderJob(w http.ResponseWriter, r *http.Request, job *model.Job, err error) {
	if errors.Is(err, driven.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("failed to load job", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	v := toJobViewModel(*job, h.now())
	h.render(w, r, http.StatusOK, layout(v.Title, !v.Finished, jobPage(v)))
}

// PreviewForm renders the preview request form.
func (h *Handler) PreviewForm(w http.ResponseWriter, r *http.Request) {
	token := csrfToken(w, r)
	v := toPreviewFormViewModel(h.venues.List(), token, previewForm{Journal: r.URL.Query().Get("journal")}, "")
	h.render(w, r, http.StatusOK, layout("Paper preview", false, previewFormPage(v)))
}

// SubmitPreview queues a preview and redirects to its status page.
func (h *Handler) SubmitPreview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	form := previewForm{
		Repository: r.PostFormValue("repository"),
		Branch:     r.PostFormValue("branch"),
		Journal:    r.PostFormValue("journal"),
	}

	job, err := h.previews.Request(r.Context(), application.PreviewRequest{
		Repository: form.Repository,
		Branch:     form.Branch,
		Journal:    form.Journal,
	})
	if errors.Is(err, application.ErrInvalidPreview) {
		v := toPreviewFormViewModel(h.venues.List(), csrfToken(w, r), form, err.Error())
		h.render(w, r, http.StatusUnprocessableEntity, layout("Paper preview", false, previewFormPage(v)))
		return
	}
	if err != nil {
		h.logger.Error("failed to queue preview", "repository", form.Repository, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/previews/"+job.Token, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render page", "path", r.URL.Path, "error", err)
	}
}
