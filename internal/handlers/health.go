package handlers

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db      Pinger
	missing func() []string
	poller  func() bool
	now     func() time.Time
}

// NewHealthHandler takes the database, a report of required settings that
// are unset, and the poller's running state. poller may be nil when the
// poller is disabled.
func NewHealthHandler(db Pinger, missing func() []string, poller func() bool) *HealthHandler {
	return &HealthHandler{db: db, missing: missing, poller: poller, now: time.Now}
}

type healthCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type detailedHealth struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]healthCheck `json:"checks"`
}

func (h *HealthHandler) timestamp() string { return h.now().UTC().Format(time.RFC3339) }

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "timestamp": h.timestamp()})
}

// Detailed checks the database and the required settings. Any failure turns
// the response into a 503.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	out := detailedHealth{Status: "healthy", Timestamp: h.timestamp(), Checks: map[string]healthCheck{}}

	if err := h.ping(r.Context()); err != nil {
		out.Status = "unhealthy"
		out.Checks["database"] = healthCheck{Status: "unhealthy", Error: err.Error()}
	} else {
		out.Checks["database"] = healthCheck{Status: "healthy"}
	}

	if missing := h.missing(); len(missing) > 0 {
		out.Status = "unhealthy"
		out.Checks["environment"] = healthCheck{Status: "unhealthy", Error: "missing: " + joinComma(missing)}
	} else {
		out.Checks["environment"] = healthCheck{Status: "healthy"}
	}

	switch {
	case h.poller == nil:
		out.Checks["poller"] = healthCheck{Status: "disabled"}
	case h.poller():
		out.Checks["poller"] = healthCheck{Status: "running"}
	default:
		out.Checks["poller"] = healthCheck{Status: "stopped"}
	}

	status := http.StatusOK
	if out.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.db.PingContext(ctx)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
