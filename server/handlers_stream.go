package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const streamHeartbeat = 15 * time.Second

// handleStream pushes channel events over Server-Sent Events: appended
// messages, visibility changes, moderation outcomes, and connection state.
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := h.Hub.Subscribe(channel)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Comment line keeps proxies from closing an idle stream.
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if _, err := w.Write([]byte("event: " + string(ev.Kind) + "\ndata: ")); err != nil {
				slog.Warn("failed to write SSE event prefix", slog.Any("err", err))
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
