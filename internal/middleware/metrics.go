package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"puzzlehunt/internal/metrics"
)

// RequestMetrics records request counts and latency labelled by the matched
// route pattern rather than the raw path.
func RequestMetrics(m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			defer func() {
				route := routePattern(r)
				status := statusOf(ww)
				m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
				m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(t1).Seconds())
			}()
			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
