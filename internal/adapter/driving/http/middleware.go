package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	gh "github.com/google/go-github/v82/github"
)

// recorder remembers what a handler wrote so the request log and the panic
// handler can see it.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *recorder) WriteHeader(status int) {
	if rec.status == 0 {
		rec.status = status
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// deliveryAttrs identifies a GitHub delivery in logs. Requests that did not
// come from GitHub get none.
func deliveryAttrs(r *http.Request) []any {
	delivery := gh.DeliveryID(r)
	if delivery == "" {
		return nil
	}
	return []any{"event", gh.WebHookType(r), "delivery", delivery}
}

// loggingMiddleware writes one log line per request. Server errors log at
// error level; webhook requests carry the GitHub event and delivery id so a
// failed delivery can be found and redelivered.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		attrs := append([]any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration", time.Since(start).Round(time.Microsecond),
		}, deliveryAttrs(r)...)
		logger.Log(context.WithoutCancel(r.Context()), level, "http request", attrs...)
	})
}

// recoveryMiddleware turns a handler panic into a 500. Nothing is written
// when the handler already started its response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := w.(*recorder)
		if !ok {
			rec = &recorder{ResponseWriter: w}
		}

		defer func() {
			v := recover()
			if v == nil {
				return
			}
			logger.Error("panic recovered", append([]any{"panic", v, "path", r.URL.Path}, deliveryAttrs(r)...)...)
			if rec.status == 0 {
				writeError(rec, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(rec, r)
	})
}
