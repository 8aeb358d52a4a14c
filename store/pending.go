package store

import (
	"strings"
	"sync"
	"time"
)

// pendingReplyTTL bounds how long an outgoing reply is remembered while we
// wait for it to echo back from the network.
const pendingReplyTTL = 15 * time.Second

type pendingEntry struct {
	ctx     ReplyRef
	expires time.Time
}

// PendingReplies maps a synthesized (channel, sender, exact outgoing text)
// key to reply context so a just-sent reply echoing back is linked to its
// parent instead of being re-parsed as a fresh mention. Entries expire
// unconditionally after the TTL even if never matched.
type PendingReplies struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewPendingReplies returns an empty table with the default 15s TTL.
func NewPendingReplies() *PendingReplies {
	return &PendingReplies{
		entries: make(map[string]pendingEntry),
		ttl:     pendingReplyTTL,
		now:     time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (p *PendingReplies) SetClock(now func() time.Time) { p.now = now }

func pendingKey(channel, sender, text string) string {
	return canonical(channel) + ":" + strings.ToLower(sender) + ":" + text
}

// Register records the context for an outgoing reply keyed by its exact
// wire text. Stale entries are swept opportunistically.
func (p *PendingReplies) Register(channel, sender, text string, ctx ReplyRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for k, e := range p.entries {
		if now.After(e.expires) {
			delete(p.entries, k)
		}
	}
	p.entries[pendingKey(channel, sender, text)] = pendingEntry{ctx: ctx, expires: now.Add(p.ttl)}
}

// Take consumes and returns the context for an inbound message matching the
// key exactly, if one is registered and unexpired.
func (p *PendingReplies) Take(channel, sender, text string) (ReplyRef, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := pendingKey(channel, sender, text)
	e, ok := p.entries[k]
	if !ok {
		return ReplyRef{}, false
	}
	delete(p.entries, k)
	if p.now().After(e.expires) {
		return ReplyRef{}, false
	}
	return e.ctx, true
}
