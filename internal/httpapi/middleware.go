package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"darkdrop/internal/drop"
)

type contextKey string

const actorKey contextKey = "actor"

// requestLogger logs every request at a level chosen by status:
// info below 400, warn for 4xx and error for 5xx.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusRecorder(w)

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			if wrapped.status >= 500 {
				level = slog.LevelError
			} else if wrapped.status >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// credentials extracts the bearer token and API key from the request headers.
func credentials(r *http.Request) drop.Credentials {
	var creds drop.Credentials
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		creds.BearerToken = strings.TrimSpace(auth[7:])
	}
	creds.APIKey = strings.TrimSpace(r.Header.Get("X-API-Key"))
	return creds
}

// clientIP returns the remote address without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticate resolves the request credentials and stores the actor in the
// request context. Requests without valid credentials are rejected with 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.service.Authenticate(r.Context(), credentials(r))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		actor := drop.Actor{
			Identity:  identity,
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// actorFrom returns the authenticated actor. The zero Actor is returned for
// unauthenticated requests and fails every service authorization check.
func actorFrom(ctx context.Context) drop.Actor {
	actor, _ := ctx.Value(actorKey).(drop.Actor)
	return actor
}
