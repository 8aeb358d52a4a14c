// Package filter derives per-channel message visibility from a filter
// configuration. Filtering is pure presentation state: it never mutates or
// removes stored messages, so clearing a filter restores full visibility.
package filter

import (
	"strings"
	"sync"

	"github.com/onnwee/moddeck/store"
)

// Config is one channel's visibility filter. Empty fields match everything
// on their dimension; an empty EnabledRoles set means all roles.
type Config struct {
	UserSubstring    string       `json:"user_substring"`
	KeywordSubstring string       `json:"keyword_substring"`
	SpecialMembers   []string     `json:"special_members"`
	EnabledRoles     []store.Role `json:"enabled_roles"`
}

// Engine holds the per-channel configs and answers visibility queries
// against the channel store.
type Engine struct {
	store *store.Store
	hub   *store.Hub

	mu      sync.RWMutex
	configs map[string]Config
}

// NewEngine builds an engine over the shared store. The hub may be nil;
// config changes are then not broadcast.
func NewEngine(st *store.Store, hub *store.Hub) *Engine {
	return &Engine{store: st, hub: hub, configs: make(map[string]Config)}
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// Set replaces a channel's filter config and notifies subscribers that
// visibility must be recomputed.
func (e *Engine) Set(channel string, cfg Config) {
	channel = canonical(channel)
	e.mu.Lock()
	e.configs[channel] = cfg
	e.mu.Unlock()
	e.notify(channel)
}

// Clear drops a channel's filter config, restoring full visibility.
func (e *Engine) Clear(channel string) {
	channel = canonical(channel)
	e.mu.Lock()
	delete(e.configs, channel)
	e.mu.Unlock()
	e.notify(channel)
}

func (e *Engine) notify(channel string) {
	if e.hub != nil {
		e.hub.Publish(store.Event{Kind: store.EventVisibilityChanged, Channel: channel})
	}
}

// Get returns the channel's config and whether one is set.
func (e *Engine) Get(channel string) (Config, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cfg, ok := e.configs[canonical(channel)]
	return cfg, ok
}

// Visible reports whether a message passes the channel's filter. A message
// is visible iff the user dimension AND the keyword dimension AND the role
// dimension all match; special membership bypasses only the role dimension.
func (e *Engine) Visible(channel string, m *store.Message) bool {
	cfg, ok := e.Get(channel)
	if !ok {
		return true
	}
	if s := strings.ToLower(cfg.UserSubstring); s != "" {
		if !strings.Contains(strings.ToLower(m.Username), s) {
			return false
		}
	}
	if s := strings.ToLower(cfg.KeywordSubstring); s != "" {
		if !strings.Contains(strings.ToLower(m.Text), s) {
			return false
		}
	}
	if len(cfg.EnabledRoles) == 0 {
		return true
	}
	for _, member := range cfg.SpecialMembers {
		if strings.EqualFold(member, m.Username) {
			return true
		}
	}
	for _, role := range cfg.EnabledRoles {
		if role == m.Role {
			return true
		}
	}
	return false
}

// VisibleMessages returns the channel's messages that pass its filter, in
// insertion order.
func (e *Engine) VisibleMessages(channel string) []*store.Message {
	msgs := e.store.Messages(channel)
	out := make([]*store.Message, 0, len(msgs))
	for _, m := range msgs {
		if e.Visible(channel, m) {
			out = append(out, m)
		}
	}
	return out
}
