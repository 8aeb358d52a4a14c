package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/moddeck/db"
	"github.com/onnwee/moddeck/moderation"
)

// handleActions executes one moderation action against the channel.
func (h *Handlers) handleActions(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Action          string `json:"action"`
		MessageID       string `json:"message_id"`
		Username        string `json:"username"`
		DurationSeconds int    `json:"duration_seconds"`
		Reason          string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	action := moderation.Action{
		Channel:    channel,
		TargetUser: req.Username,
		MessageID:  req.MessageID,
		Duration:   time.Duration(req.DurationSeconds) * time.Second,
		Reason:     req.Reason,
	}
	switch req.Action {
	case "delete":
		action.Kind = moderation.ActionDelete
		if action.MessageID == "" {
			http.Error(w, "delete requires message_id", http.StatusBadRequest)
			return
		}
	case "timeout":
		action.Kind = moderation.ActionTimeout
		if action.TargetUser == "" || req.DurationSeconds <= 0 {
			http.Error(w, "timeout requires username and duration_seconds", http.StatusBadRequest)
			return
		}
	case "ban":
		action.Kind = moderation.ActionBan
		if action.TargetUser == "" {
			http.Error(w, "ban requires username", http.StatusBadRequest)
			return
		}
	case "unban":
		action.Kind = moderation.ActionUnban
		if action.TargetUser == "" {
			http.Error(w, "unban requires username", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	entry, err := h.Facade.Execute(r.Context(), action)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, entry)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleSend posts a chat message, threading it onto the pinned reply target
// when one is set for the channel.
func (h *Handlers) handleSend(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "missing text", http.StatusBadRequest)
		return
	}
	if err := h.Facade.Send(r.Context(), channel, req.Text); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleReplyTarget pins, reads, or clears the message the next send will
// reply to.
func (h *Handlers) handleReplyTarget(w http.ResponseWriter, r *http.Request, channel string) {
	switch r.Method {
	case http.MethodGet:
		target := h.Facade.ReplyTarget()
		if target == nil {
			writeJSON(w, http.StatusOK, map[string]any{"target": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"target": target})
	case http.MethodPut:
		var req struct {
			MessageID string `json:"message_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
			http.Error(w, "missing message_id", http.StatusBadRequest)
			return
		}
		if err := h.Facade.SetReplyTarget(channel, req.MessageID); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"target": h.Facade.ReplyTarget()})
	case http.MethodDelete:
		h.Facade.ClearReplyTarget()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePredictions creates, reads, or resolves channel predictions over
// Helix.
func (h *Handlers) handlePredictions(w http.ResponseWriter, r *http.Request, channel string) {
	switch r.Method {
	case http.MethodGet:
		pred, err := h.Facade.Prediction(r.Context(), channel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, pred)
	case http.MethodPost:
		var req struct {
			Title         string   `json:"title"`
			Outcomes      []string `json:"outcomes"`
			WindowSeconds int      `json:"window_seconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
			http.Error(w, "missing title", http.StatusBadRequest)
			return
		}
		pred, err := h.Facade.CreatePrediction(r.Context(), channel, req.Title, req.Outcomes, req.WindowSeconds)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusCreated, pred)
	case http.MethodPatch:
		var req struct {
			PredictionID     string `json:"prediction_id"`
			Status           string `json:"status"`
			WinningOutcomeID string `json:"winning_outcome_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PredictionID == "" || req.Status == "" {
			http.Error(w, "missing prediction_id/status", http.StatusBadRequest)
			return
		}
		pred, err := h.Facade.EndPrediction(r.Context(), channel, req.PredictionID, req.Status, req.WinningOutcomeID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, pred)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleModLog returns the in-memory audit log, newest first.
func (h *Handlers) HandleModLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 0)
	writeJSON(w, http.StatusOK, h.Facade.Log(limit))
}

// HandleModLogExport returns archived audit entries from the database, which
// reach past the in-memory cap. since is RFC3339; default last 24h.
func (h *Handlers) HandleModLogExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.DB == nil {
		http.Error(w, "no database configured", http.StatusServiceUnavailable)
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since (RFC3339): "+err.Error(), http.StatusBadRequest)
			return
		}
		since = t
	}
	limit := parseIntQuery(r, "limit", 1000)
	entries, err := db.ModerationLogSince(r.Context(), h.DB, since, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="modlog.json"`)
	writeJSON(w, http.StatusOK, entries)
}
