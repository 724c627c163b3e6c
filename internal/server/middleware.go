package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relaycast/internal/api"
	"relaycast/internal/observability/logging"
	"relaycast/internal/observability/metrics"
)

// requestIDMiddleware honors an incoming X-Request-Id header or mints a new
// ID, threads it through the context, and echoes it on the response so
// clients can correlate log lines.
func requestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if requestID == "" {
				requestID = newRequestID()
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctxLogger := logging.WithContext(ctx, logger)
			ctx = logging.ContextWithLogger(ctx, ctxLogger)

			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestID() string {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err == nil {
		return hex.EncodeToString(buffer[:])
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// loggingMiddleware emits one structured line per completed request.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := metrics.NewResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(recorder, r)

			reqLogger := logging.LoggerFromContext(r.Context())
			if reqLogger == nil {
				reqLogger = logger
			}
			reqLogger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// securityHeadersMiddleware sets the hardening headers on every response.
// The panel serves no HTML, so the policy can be maximally restrictive.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// bearerAuthMiddleware requires "Authorization: Bearer <token>" on every
// request it guards. An empty configured token disables the check.
func bearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				writeMiddlewareError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeMiddlewareError(w, http.StatusUnauthorized, errors.New("invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeMiddlewareError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="relaycast"`)
	api.WriteError(w, status, err)
}
