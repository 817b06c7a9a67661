package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers all web routes on the provided mux.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	mux.HandleFunc("GET /jobs/{id}", h.JobPage)
	mux.HandleFunc("GET /previews/{token}", h.PreviewPage)
	mux.HandleFunc("GET /preview", h.PreviewForm)
	mux.HandleFunc("POST /preview", h.SubmitPreview)
}
