package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"whisper/pkg/logging"
)

// RequestLogger creates a middleware that logs requests and injects the logger.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// child logger with request details
			reqLog := log.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			if id := chimw.GetReqID(r.Context()); id != "" {
				reqLog = reqLog.With(logging.RequestID(id))
			}
			ctx := logging.WithContext(r.Context(), reqLog)
			start := time.Now()
			reqLog.Info("request started")

			next.ServeHTTP(w, r.WithContext(ctx))
			reqLog.Debug("request finished", slog.Duration("elapsed", time.Since(start)))
		})
	}
}
