package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/wopr-systems/beacon-orchestrator/pkg/logger"
)

// wrapWithRecovery catches panics in handlers and converts them into a
// 500 response instead of crashing the server, grounded on the pack's
// middleware.RecoveryMiddleware pattern (stack trace logged, one error
// response written, request otherwise unaffected).
func wrapWithRecovery(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("panic", fmt.Sprintf("%v", rec)).
					WithField("stack", string(debug.Stack())).
					WithField("path", r.URL.Path).
					WithField("method", r.Method).
					Error("httpapi: panic recovered")
				writeError(w, http.StatusInternalServerError, fmt.Errorf("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// securityHeaders are applied to every response, grounded on the pack's
// middleware.DefaultSecurityHeaders.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
}

func wrapWithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// wrapWithRequestLog assigns (or forwards) an X-Request-Id and logs method,
// path, status, and duration once the handler returns, grounded on the
// pack's middleware.LoggingMiddleware trace-ID propagation.
func wrapWithRequestLog(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		log.WithField("request_id", requestID).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", sw.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("httpapi: request handled")
	})
}
