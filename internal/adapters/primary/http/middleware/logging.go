package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lorrc/turnos-queue/internal/auth"
	"github.com/lorrc/turnos-queue/internal/infrastructure/logging"
)

// identityKey carries the mutable identity record for one request.
const identityKey contextKey = "identity"

// requestIdentity is filled by JWTMiddleware once a token validates. The
// access log line is written after the handler returns, outside the auth
// middleware, so the two share this carrier through the request context.
type requestIdentity struct {
	mu        sync.Mutex
	subjectID string
	tenantID  string
	kind      string
}

func (id *requestIdentity) set(claims *auth.Claims) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.subjectID = claims.SubjectID.String()
	id.tenantID = claims.TenantID.String()
	id.kind = string(claims.Kind)
}

func (id *requestIdentity) attrs() []any {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.subjectID == "" {
		return nil
	}
	return []any{
		"subject_id", id.subjectID,
		"tenant_id", id.tenantID,
		"credential_kind", id.kind,
	}
}

// annotateIdentity records the validated claims for the access log, if the
// request went through RequestLogger.
func annotateIdentity(ctx context.Context, claims *auth.Claims) {
	if id, ok := ctx.Value(identityKey).(*requestIdentity); ok {
		id.set(claims)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for websocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

// RequestLogger writes one structured access log line per request.
// Authenticated requests are attributed to their subject, tenant, and
// credential kind.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			identity := &requestIdentity{}
			ctx := context.WithValue(r.Context(), identityKey, identity)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", wrapped.bytesWritten,
				"client_ip", getClientIP(r),
			}
			if requestID := GetRequestID(ctx); requestID != "" {
				attrs = append(attrs, "request_id", requestID)
			}
			attrs = append(attrs, identity.attrs()...)
			if r.URL.RawQuery != "" {
				attrs = append(attrs, "query", r.URL.RawQuery)
			}

			switch {
			case wrapped.statusCode >= 500:
				logger.Error("http request", attrs...)
			case wrapped.statusCode >= 400:
				logger.Warn("http request", attrs...)
			default:
				logger.Info("http request", attrs...)
			}
		})
	}
}

// RecoveryLogger turns a handler panic into a 500 response and a log entry
// with the stack trace.
func RecoveryLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.LogPanic(logger.With(
						"request_id", GetRequestID(r.Context()),
						"method", r.Method,
						"path", r.URL.Path,
					), err)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"Internal server error","code":"INTERNAL_ERROR"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
