package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// ConnState tracks a channel's connection lifecycle.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// maxGlobalMentions caps the cross-channel mention list; the oldest entry is
// evicted once the cap is exceeded.
const maxGlobalMentions = 100

// Channel is one joined chat room and everything it owns: its append-only
// message history, mention subsequence, counters, and recurrence tracker.
type Channel struct {
	Name         string
	State        ConnState
	Messages     []*Message
	Mentions     []*Message
	MessageCount int // monotonic; survives history resets
	MentionCount int

	byID    map[string]*Message
	tracker *RecurrenceTracker
}

// ChannelSummary is an immutable snapshot of a channel's counters for the
// status surface.
type ChannelSummary struct {
	Name         string    `json:"name"`
	State        ConnState `json:"state"`
	MessageCount int       `json:"message_count"`
	MentionCount int       `json:"mention_count"`
	Held         int       `json:"held"` // messages currently in memory
}

// Store owns all per-channel state plus the global mention list. IRC reader
// goroutines append while HTTP handlers read, so every method takes the lock.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	mentions []*Message // most-recent-first, capped
}

// New returns an empty store.
func New() *Store {
	return &Store{channels: make(map[string]*Channel)}
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// AddChannel creates (or returns) the channel record for name.
func (s *Store) AddChannel(name string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = canonical(name)
	if ch, ok := s.channels[name]; ok {
		return ch
	}
	ch := &Channel{
		Name:    name,
		State:   StateConnecting,
		byID:    make(map[string]*Message),
		tracker: NewRecurrenceTracker(),
	}
	s.channels[name] = ch
	return ch
}

// RemoveChannel drops a channel and everything it owns. Global mentions that
// reference it are left in place; they are weak references by design.
func (s *Store) RemoveChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, canonical(name))
}

// HasChannel reports whether name is currently joined.
func (s *Store) HasChannel(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[canonical(name)]
	return ok
}

// Channels returns the joined channel names, sorted.
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetState updates a channel's connection state. Unknown channels are ignored.
func (s *Store) SetState(name string, state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[canonical(name)]; ok {
		ch.State = state
	}
}

// State returns the channel's connection state.
func (s *Store) State(name string) ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ch, ok := s.channels[canonical(name)]; ok {
		return ch.State
	}
	return StateDisconnected
}

// Append adds a message to its channel and bumps the monotonic counter.
// Returns false without side effects when the channel is unknown or a message
// with the same id is already present (duplicate arrivals are dropped, never
// re-appended or re-counted).
func (s *Store) Append(m *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[canonical(m.Channel)]
	if !ok {
		return false
	}
	if _, dup := ch.byID[m.ID]; dup {
		return false
	}
	ch.Messages = append(ch.Messages, m)
	ch.byID[m.ID] = m
	ch.MessageCount++
	return true
}

// Has reports whether a message id is already present in the channel.
func (s *Store) Has(channel, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok {
		return false
	}
	_, ok = ch.byID[id]
	return ok
}

// FindByID looks a message up by id inside one channel.
func (s *Store) FindByID(channel, id string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok {
		return nil, false
	}
	m, ok := ch.byID[id]
	return m, ok
}

// FindAcrossChannels scans every channel's index for id and returns the first
// hit plus its channel name.
func (s *Store) FindAcrossChannels(id string) (*Message, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, ch := range s.channels {
		if m, ok := ch.byID[id]; ok {
			return m, name, true
		}
	}
	return nil, "", false
}

// RecentByUser returns up to limit most recent messages from username in a
// channel, oldest first.
func (s *Store) RecentByUser(channel, username string, limit int) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok || limit <= 0 {
		return nil
	}
	var out []*Message
	for i := len(ch.Messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := ch.Messages[i]
		if strings.EqualFold(m.Username, username) || strings.EqualFold(m.DisplayName, username) {
			out = append(out, m)
		}
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Messages returns a copy of the channel's message slice in insertion order.
func (s *Store) Messages(channel string) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok {
		return nil
	}
	out := make([]*Message, len(ch.Messages))
	copy(out, ch.Messages)
	return out
}

// Observe runs the channel's recurrence tracker for one normalized key and
// returns the in-window count. Unknown channels score 1.
func (s *Store) Observe(channel, key string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok {
		return 1
	}
	return ch.tracker.Observe(key, now)
}

// AddMention records a non-self mention message on its channel and in the
// global most-recent-first list, evicting the oldest past the cap.
func (s *Store) AddMention(m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[canonical(m.Channel)]; ok {
		ch.Mentions = append(ch.Mentions, m)
		ch.MentionCount++
	}
	s.mentions = append([]*Message{m}, s.mentions...)
	if len(s.mentions) > maxGlobalMentions {
		s.mentions = s.mentions[:maxGlobalMentions]
	}
}

// GlobalMentions returns a copy of the cross-channel mention list,
// most-recent-first.
func (s *Store) GlobalMentions() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Message, len(s.mentions))
	copy(out, s.mentions)
	return out
}

// ClearMentions empties the global mention list. Per-channel mention
// subsequences and counters are untouched.
func (s *Store) ClearMentions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mentions = nil
}

// MarkDeleted flips the deleted flag on a message. Soft delete only: the
// entry stays in the list and keeps its position.
func (s *Store) MarkDeleted(channel, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok {
		return false
	}
	m, ok := ch.byID[id]
	if !ok {
		return false
	}
	m.Deleted = true
	return true
}

// MarkUserTimedOut flags every message from username in the channel and
// returns how many were touched.
func (s *Store) MarkUserTimedOut(channel, username string) int {
	return s.markUser(channel, username, func(m *Message) { m.TimedOut = true })
}

// MarkUserBanned flags every message from username in the channel.
func (s *Store) MarkUserBanned(channel, username string) int {
	return s.markUser(channel, username, func(m *Message) { m.Banned = true })
}

// MarkUserUnbanned clears ban and timeout flags on every message from
// username in the channel.
func (s *Store) MarkUserUnbanned(channel, username string) int {
	return s.markUser(channel, username, func(m *Message) { m.Banned = false; m.TimedOut = false })
}

func (s *Store) markUser(channel, username string, mutate func(*Message)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok {
		return 0
	}
	n := 0
	for _, m := range ch.Messages {
		if strings.EqualFold(m.Username, username) || strings.EqualFold(m.DisplayName, username) {
			mutate(m)
			n++
		}
	}
	return n
}

// Restore loads snapshot messages into a channel without re-running
// annotation or bumping the monotonic counters; the persisted counter values
// are applied directly, matching how a restored tab keeps its lifetime
// counts.
func (s *Store) Restore(channel string, msgs []*Message, messageCount, mentionCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[canonical(channel)]
	if !ok {
		return
	}
	for _, m := range msgs {
		if _, dup := ch.byID[m.ID]; dup {
			continue
		}
		ch.Messages = append(ch.Messages, m)
		ch.byID[m.ID] = m
	}
	if messageCount > ch.MessageCount {
		ch.MessageCount = messageCount
	}
	if mentionCount > ch.MentionCount {
		ch.MentionCount = mentionCount
	}
}

// Summaries returns per-channel counter snapshots, sorted by name.
func (s *Store) Summaries() []ChannelSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChannelSummary, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ChannelSummary{
			Name:         ch.Name,
			State:        ch.State,
			MessageCount: ch.MessageCount,
			MentionCount: ch.MentionCount,
			Held:         len(ch.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
