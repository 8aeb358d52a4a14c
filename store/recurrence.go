package store

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// recurrenceWindow is the trailing window inside which structurally similar
// messages count toward each other's recurrence score.
const recurrenceWindow = 60 * time.Second

var urlPattern = regexp.MustCompile(`https?://\S+`)

// NormalizeText reduces a message body to its recurrence key: lowercase,
// URLs stripped, punctuation removed, whitespace collapsed. The result is an
// approximate spam/repeat signal, intentionally fuzzy rather than an exact
// duplicate test.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(text)
	s = urlPattern.ReplaceAllString(s, "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

type recurrenceEvent struct {
	key  string
	time time.Time
}

// RecurrenceTracker is a per-channel sliding window of normalized message
// keys. Entries older than the window are pruned lazily on each observation,
// so an idle channel costs nothing.
type RecurrenceTracker struct {
	events []recurrenceEvent
	counts map[string]int
}

// NewRecurrenceTracker returns an empty tracker.
func NewRecurrenceTracker() *RecurrenceTracker {
	return &RecurrenceTracker{counts: make(map[string]int)}
}

// Observe records one occurrence of key at now and returns the number of
// occurrences currently inside the trailing window, including this one.
// Counts are never retroactively applied to earlier messages.
func (t *RecurrenceTracker) Observe(key string, now time.Time) int {
	for len(t.events) > 0 && now.Sub(t.events[0].time) > recurrenceWindow {
		expired := t.events[0]
		t.events = t.events[1:]
		if c := t.counts[expired.key] - 1; c <= 0 {
			delete(t.counts, expired.key)
		} else {
			t.counts[expired.key] = c
		}
	}
	t.events = append(t.events, recurrenceEvent{key: key, time: now})
	t.counts[key]++
	return t.counts[key]
}
