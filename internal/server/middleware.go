package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "authenticated-user"

// currentUser returns the authenticated user id, empty when the request is
// unauthenticated.
func currentUser(ctx context.Context) string {
	uid, _ := ctx.Value(userContextKey).(string)
	return uid
}

// basicAuth authenticates API requests against the local directory.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="extshares"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := s.deps.UserAuth.Authenticate(r.Context(), s.deps.Directory, uid, password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="extshares"`)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger emits one structured access log line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
