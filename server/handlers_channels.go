package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/moddeck/db"
	"github.com/onnwee/moddeck/filter"
	"github.com/onnwee/moddeck/store"
)

// HandleChannels serves the channel collection: GET lists summaries, POST
// joins a new channel.
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.Store.Summaries())
	case http.MethodPost:
		var req struct {
			Channel string `json:"channel"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Channel) == "" {
			http.Error(w, "missing channel", http.StatusBadRequest)
			return
		}
		channel := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.Channel), "#"))
		if h.Store.HasChannel(channel) {
			http.Error(w, "already joined", http.StatusConflict)
			return
		}
		h.joinChannel(w, r, channel)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) joinChannel(w http.ResponseWriter, r *http.Request, channel string) {
	h.Store.AddChannel(channel)
	h.Store.SetState(channel, store.StateConnecting)

	// Restore held history from the last snapshot before live messages start
	// flowing; duplicates are dropped by id on append.
	if h.DB != nil {
		if err := db.RestoreChannel(r.Context(), h.DB, h.Store, channel, h.Cfg.SnapshotLimit); err != nil {
			slog.Warn("snapshot restore failed", slog.String("channel", channel), slog.Any("err", err))
		}
	}

	if h.Chat != nil {
		if err := h.Chat.Connect(channel); err != nil {
			h.Store.RemoveChannel(channel)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
	h.Hub.Publish(store.Event{Kind: store.EventStateChanged, Channel: channel, State: store.StateConnecting})
	writeJSON(w, http.StatusCreated, map[string]string{"channel": channel, "state": string(store.StateConnecting)})
}

// HandleChannelDispatcher routes /channels/{name}[/...] requests.
func (h *Handlers) HandleChannelDispatcher(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/channels/")
	parts := strings.SplitN(rest, "/", 3)
	channel := strings.ToLower(parts[0])
	if channel == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method == http.MethodDelete {
			h.partChannel(w, r, channel)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.Store.HasChannel(channel) {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "messages":
		h.handleMessages(w, r, channel)
	case "stream":
		h.handleStream(w, r, channel)
	case "filter":
		h.handleFilter(w, r, channel)
	case "users":
		if len(parts) < 3 {
			http.Error(w, "missing user", http.StatusBadRequest)
			return
		}
		user, tail, _ := strings.Cut(parts[2], "/")
		if tail != "history" || user == "" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.handleUserHistory(w, r, channel, user)
	case "actions":
		h.handleActions(w, r, channel)
	case "send":
		h.handleSend(w, r, channel)
	case "reply-target":
		h.handleReplyTarget(w, r, channel)
	case "predictions":
		h.handlePredictions(w, r, channel)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handlers) partChannel(w http.ResponseWriter, r *http.Request, channel string) {
	if !h.Store.HasChannel(channel) {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	// Persist before dropping in-memory state so a re-join restores the tab.
	if h.DB != nil {
		if err := db.SaveChannelSnapshot(r.Context(), h.DB, h.Store, channel); err != nil {
			slog.Warn("snapshot on part failed", slog.String("channel", channel), slog.Any("err", err))
		}
	}
	if h.Chat != nil {
		if err := h.Chat.Disconnect(channel); err != nil {
			slog.Warn("disconnect failed", slog.String("channel", channel), slog.Any("err", err))
		}
	}
	h.Store.RemoveChannel(channel)
	h.Resolver.ForgetChannel(channel)
	h.Filters.Clear(channel)
	h.Hub.Publish(store.Event{Kind: store.EventStateChanged, Channel: channel, State: store.StateDisconnected})
	w.WriteHeader(http.StatusNoContent)
}

// handleMessages returns the channel's messages that pass the current filter
// config, in arrival order.
func (h *Handlers) handleMessages(w http.ResponseWriter, r *http.Request, channel string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	msgs := h.Filters.VisibleMessages(channel)
	limit := parseIntQuery(r, "limit", 0)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleFilter reads, replaces, or clears the channel's filter config.
func (h *Handlers) handleFilter(w http.ResponseWriter, r *http.Request, channel string) {
	switch r.Method {
	case http.MethodGet:
		cfg, ok := h.Filters.Get(channel)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"configured": false})
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var cfg filter.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "invalid filter config: "+err.Error(), http.StatusBadRequest)
			return
		}
		h.Filters.Set(channel, cfg)
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodDelete:
		h.Filters.Clear(channel)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUserHistory returns the most recent messages a user sent in the
// channel, oldest first.
func (h *Handlers) handleUserHistory(w http.ResponseWriter, r *http.Request, channel, user string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := parseIntQuery(r, "limit", 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, h.Store.RecentByUser(channel, user, limit))
}

// HandleMentions serves the cross-channel mention list (GET) and clears it
// (DELETE).
func (h *Handlers) HandleMentions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.Store.GlobalMentions())
	case http.MethodDelete:
		h.Store.ClearMentions()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleKeywords reads or hot-swaps the mention keyword list.
func (h *Handlers) HandleKeywords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"keywords": h.Annotator.Keywords()})
	case http.MethodPut:
		var req struct {
			Keywords string `json:"keywords"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		h.Annotator.SetKeywords(req.Keywords)
		writeJSON(w, http.StatusOK, map[string]any{"keywords": h.Annotator.Keywords()})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
