// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/noah-isme/marketplace-pricing/internal/common"
)

var draining atomic.Bool

// SetReady flips readiness. The API marks itself not ready while draining
// connections on shutdown.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Check is a named readiness probe with its own timeout.
type Check struct {
	Name    string
	Probe   Probe
	Timeout time.Duration
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "draining"})
		return
	}
	statuses := make(map[string]string, len(h.Checks))
	healthy := true
	for _, c := range h.Checks {
		status := "ok"
		if err := run(r.Context(), c); err != nil {
			status = err.Error()
			healthy = false
		}
		statuses[c.Name] = status
	}
	code, overall := http.StatusOK, "ok"
	if !healthy {
		code, overall = http.StatusServiceUnavailable, "degraded"
	}
	common.JSON(w, code, map[string]any{"status": overall, "checks": statuses})
}

// Names lists configured probe names in order.
func (h Handler) Names() []string {
	names := make([]string, 0, len(h.Checks))
	for _, c := range h.Checks {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func run(ctx context.Context, c Check) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(ctx)
}
