package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/moddeck/store"
)

// HandleHealthz responds to liveness probe requests. With a database
// configured it also checks connectivity; without one, a running process is
// alive.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed checks:
// database connectivity and at least one connected chat channel when
// channels are configured.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.DB == nil {
				return nil
			}
			return h.DB.PingContext(r.Context())
		}},
		{"chat", func() error {
			summaries := h.Store.Summaries()
			if len(summaries) == 0 {
				return nil // no channels requested yet
			}
			for _, s := range summaries {
				if s.State == store.StateConnected {
					return nil
				}
			}
			return fmt.Errorf("no connected channels")
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus reports per-channel counters, keywords, and uptime.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels":       h.Store.Summaries(),
		"keywords":       h.Annotator.Keywords(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}
