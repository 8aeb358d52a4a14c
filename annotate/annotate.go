// Package annotate is the message ingestion core: it turns normalized chat
// events into fully annotated store messages (identity, role, reply linkage,
// mention flag, recurrence score, badges, emote fragments) and routes
// lifecycle events into the channel store.
package annotate

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/moddeck/chat"
	"github.com/onnwee/moddeck/resolver"
	"github.com/onnwee/moddeck/store"
	"github.com/onnwee/moddeck/telemetry"
)

// replyPrefix matches the "@username rest" reply convention at the start of
// a message body.
var replyPrefix = regexp.MustCompile(`^@(\w+)\s+(.+)$`)

const (
	replyContextLimit = 50 // chars of parent text kept in the back-reference
	replyScanDepth    = 5  // how many of the target's recent messages to consider
)

// palette supplies deterministic fallback colors for senders the platform
// did not color, assigned round-robin on first sight and cached for the
// process lifetime.
var palette = []string{
	"#FF4500", "#2E8B57", "#D2691E", "#5F9EA0", "#1E90FF",
	"#9ACD32", "#8A2BE2", "#00FF7F", "#B22222", "#FF69B4",
}

// Annotator builds store messages from inbound chat messages. One annotator
// serves all channels; per-channel state lives in the store.
type Annotator struct {
	Store    *store.Store
	Resolver *resolver.Resolver
	Pending  *store.PendingReplies

	// SelfUser is the authenticated login, lowercase, or "" when reading
	// anonymously. Self messages never count as mentions.
	SelfUser string

	mu         sync.Mutex
	keywords   []string
	colors     map[string]string
	colorIndex int
	now        func() time.Time
}

// New wires an annotator over the shared store and resolver.
func New(st *store.Store, res *resolver.Resolver, pending *store.PendingReplies, selfUser string) *Annotator {
	return &Annotator{
		Store:    st,
		Resolver: res,
		Pending:  pending,
		SelfUser: strings.ToLower(selfUser),
		colors:   make(map[string]string),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (a *Annotator) SetClock(now func() time.Time) { a.now = now }

// SetKeywords replaces the mention keyword set from its comma-separated
// persisted form. Blank entries are dropped; matching is case-insensitive.
func (a *Annotator) SetKeywords(csv string) {
	var kws []string
	for _, k := range strings.Split(csv, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kws = append(kws, k)
		}
	}
	a.mu.Lock()
	a.keywords = kws
	a.mu.Unlock()
}

// Keywords returns the active keyword set.
func (a *Annotator) Keywords() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.keywords...)
}

func (a *Annotator) matchesKeyword(text string) bool {
	lower := strings.ToLower(text)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, k := range a.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// colorFor returns the platform color, or assigns the next palette color to
// a first-seen username.
func (a *Annotator) colorFor(username, platformColor string) string {
	if platformColor != "" {
		return platformColor
	}
	key := strings.ToLower(username)
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.colors[key]; ok {
		return c
	}
	c := palette[a.colorIndex%len(palette)]
	a.colorIndex++
	a.colors[key] = c
	return c
}

func deriveRole(msg *chat.Message) store.Role {
	b := msg.Badges
	switch {
	case b["broadcaster"] > 0:
		return store.RoleBroadcaster
	case msg.IsModerator || b["moderator"] > 0:
		return store.RoleModerator
	case b["partner"] > 0:
		return store.RoleVerified
	case b["vip"] > 0:
		return store.RoleVIP
	case msg.IsSubscriber || b["subscriber"] > 0 || b["founder"] > 0:
		return store.RoleSubscriber
	default:
		return store.RoleViewer
	}
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// stripPrefix removes the "@username " reply prefix and shifts native emote
// offsets left so they still point at the right runes in the shortened
// text. Spans that land inside the removed prefix are dropped by the
// renderer's range check.
func stripPrefix(text string, emotes []resolver.NativeEmote) (string, []resolver.NativeEmote) {
	m := replyPrefix.FindStringSubmatch(text)
	if m == nil {
		return text, emotes
	}
	rest := m[2]
	removed := len([]rune(text)) - len([]rune(rest))
	shifted := make([]resolver.NativeEmote, 0, len(emotes))
	for _, e := range emotes {
		shifted = append(shifted, resolver.NativeEmote{ID: e.ID, Name: e.Name, Start: e.Start - removed, End: e.End - removed})
	}
	return rest, shifted
}

// Annotate turns one inbound chat message into an annotated, stored
// message. Returns nil for duplicates (same id already in the channel) and
// for messages arriving on channels the store does not know.
func (a *Annotator) Annotate(msg *chat.Message) *store.Message {
	now := a.now()

	// 1. identity: synthesized ids are flagged; they cannot anchor replies.
	id := msg.ID
	synthetic := false
	if id == "" {
		id = fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
		synthetic = true
	}

	// 2. dedup before any side effects (Append re-checks under its own lock).
	if a.Store.Has(msg.Channel, id) {
		return nil
	}

	native := make([]resolver.NativeEmote, 0, len(msg.Emotes))
	for _, e := range msg.Emotes {
		native = append(native, resolver.NativeEmote{ID: e.ID, Name: e.Name, Start: e.Start, End: e.End})
	}

	// 3-4. role, then reply resolution. Precedence: a pending entry for our
	// own echoed reply, then the platform's native reply tags, then the
	// @username heuristic against the target's recent messages.
	role := deriveRole(msg)
	text := msg.Text
	var replyTo *store.ReplyRef
	if ref, ok := a.Pending.Take(msg.Channel, msg.Username, text); ok {
		replyTo = &ref
		text, native = stripPrefix(text, native)
	} else if msg.ReplyParentUser != "" {
		replyTo = &store.ReplyRef{Username: msg.ReplyParentUser, Text: truncate(msg.ReplyParentText, replyContextLimit)}
		text, native = stripPrefix(text, native)
	} else if m := replyPrefix.FindStringSubmatch(text); m != nil {
		recent := a.Store.RecentByUser(msg.Channel, m[1], replyScanDepth)
		if len(recent) > 0 {
			parent := recent[len(recent)-1]
			replyTo = &store.ReplyRef{Username: parent.Sender(), Text: truncate(parent.Text, replyContextLimit)}
			text, native = stripPrefix(text, native)
		}
	}
	if replyTo != nil {
		telemetry.IncReplyLinked()
	}

	// 5. mention check runs on the display text (post-strip) so a stripped
	// reply prefix cannot fake a keyword hit.
	isSelf := msg.Self || (a.SelfUser != "" && strings.EqualFold(msg.Username, a.SelfUser))
	isMention := a.matchesKeyword(text)

	// 6. recurrence keys on the raw body; the tracker prunes its own window.
	recurrence := a.Store.Observe(msg.Channel, store.NormalizeText(msg.Text), now)

	// 7. badges and emote fragments; resolver misses degrade to plain text.
	sentAt := msg.Time
	if sentAt.IsZero() {
		sentAt = now
	}
	m := &store.Message{
		ID:          id,
		Synthetic:   synthetic,
		Channel:     msg.Channel,
		Username:    msg.Username,
		DisplayName: msg.DisplayName,
		Color:       a.colorFor(msg.Username, msg.Color),
		Text:        text,
		Fragments:   a.Resolver.Render(msg.Channel, text, native),
		Role:        role,
		Badges:      a.Resolver.Badges(msg.Channel, msg.Badges),
		IsMention:   isMention,
		IsSelf:      isSelf,
		ReplyTo:     replyTo,
		Recurrence:  recurrence,
		Timestamp:   sentAt,
	}
	if !a.Store.Append(m) {
		return nil
	}
	if isMention && !isSelf {
		a.Store.AddMention(m)
		telemetry.IncMention()
	}
	return m
}
