// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/moddeck/annotate"
	"github.com/onnwee/moddeck/config"
	"github.com/onnwee/moddeck/filter"
	"github.com/onnwee/moddeck/moderation"
	"github.com/onnwee/moddeck/resolver"
	"github.com/onnwee/moddeck/store"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// ChatConnector is the subset of the chat manager the join/part endpoints
// drive. Nil disables live connections (useful in tests and for replay-only
// deployments).
type ChatConnector interface {
	Connect(channel string) error
	Disconnect(channel string) error
}

// Deps bundles everything the handlers need. DB and Chat may be nil; the
// endpoints that need them degrade or report accordingly.
type Deps struct {
	DB        *sql.DB
	Cfg       *config.Config
	Store     *store.Store
	Hub       *store.Hub
	Filters   *filter.Engine
	Annotator *annotate.Annotator
	Facade    *moderation.Facade
	Resolver  *resolver.Resolver
	Chat      ChatConnector
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Deps
	ctx        context.Context
	started    time.Time
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	return &Handlers{
		Deps:       deps,
		ctx:        ctx,
		started:    time.Now(),
		stateStore: make(map[string]time.Time),
	}
}

// writeJSON encodes v with the standard content type; encode failures are
// logged, not surfaced (headers are already gone).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Over the cap, refuse to add more. The flow fails closed rather than
	// letting the map grow without bound.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}

// takeOAuthState validates and consumes a state value.
func (h *Handlers) takeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok || time.Now().After(exp) {
		return false
	}
	delete(h.stateStore, state)
	return true
}
