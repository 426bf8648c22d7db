package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapRequestLogger writes an access log entry per request, tagged with the
// chi route pattern and the request id. 5xx responses go out at error level
// and everything else at info. With a debug-enabled logger the message is a
// compact "METHOD path status duration" line for reading in a terminal.
func ZapRequestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	logger = logger.Named("http")
	verbose := logger.Core().Enabled(zapcore.DebugLevel)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				elapsed := time.Since(start)
				status := statusOf(ww)
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("route", routePattern(r)),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", elapsed),
					zap.String("remote_ip", r.RemoteAddr),
				}
				if reqID := middleware.GetReqID(r.Context()); reqID != "" {
					fields = append(fields, zap.String("request_id", reqID))
				}

				msg := "request"
				if verbose {
					msg = fmt.Sprintf("%s %s %d %s", r.Method, r.URL.Path, status, elapsed)
				}
				if status >= http.StatusInternalServerError {
					logger.Error(msg, fields...)
					return
				}
				logger.Info(msg, fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern is the matched chi pattern, e.g. /api/puzzles/{id}.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusOf treats a handler that never called WriteHeader as 200.
func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
