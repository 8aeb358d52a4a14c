package store

import (
	"testing"
	"time"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Hello World", "hello world"},
		{"punctuation stripped", "Hello, World!!", "hello world"},
		{"whitespace collapsed", "HELLO   WORLD", "hello world"},
		{"url stripped", "look https://example.com/x?y=1 here", "look here"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
		{"unicode letters kept", "héllo wörld", "héllo wörld"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecurrenceWindow(t *testing.T) {
	tr := NewRecurrenceTracker()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inputs := []string{"hello world", "Hello World!", "HELLO   WORLD"}
	for i, raw := range inputs {
		got := tr.Observe(NormalizeText(raw), base.Add(time.Duration(i*5)*time.Second))
		if got != i+1 {
			t.Errorf("observation %d: count = %d, want %d", i, got, i+1)
		}
	}

	// After the window passes the earlier events expire and the count resets.
	if got := tr.Observe(NormalizeText("hello world"), base.Add(71*time.Second)); got != 1 {
		t.Errorf("count after window gap = %d, want 1", got)
	}
}

func TestRecurrenceIndependentKeys(t *testing.T) {
	tr := NewRecurrenceTracker()
	now := time.Now()
	tr.Observe("spam spam", now)
	if got := tr.Observe("different", now); got != 1 {
		t.Errorf("unrelated key count = %d, want 1", got)
	}
	if got := tr.Observe("spam spam", now); got != 2 {
		t.Errorf("repeat key count = %d, want 2", got)
	}
}

func TestPendingReplies(t *testing.T) {
	p := NewPendingReplies()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return now })

	ctx := ReplyRef{Username: "targetuser", Text: "earlier text"}
	p.Register("chan", "modbot", "@targetuser hi", ctx)

	// wrong text does not match
	if _, ok := p.Take("chan", "modbot", "@targetuser hello"); ok {
		t.Error("mismatched text matched")
	}
	// case-insensitive sender, exact text
	got, ok := p.Take("chan", "ModBot", "@targetuser hi")
	if !ok || got != ctx {
		t.Fatalf("Take = %v, %v", got, ok)
	}
	// consumed
	if _, ok := p.Take("chan", "modbot", "@targetuser hi"); ok {
		t.Error("entry matched twice")
	}

	// expiry
	p.Register("chan", "modbot", "@targetuser later", ctx)
	now = now.Add(16 * time.Second)
	if _, ok := p.Take("chan", "modbot", "@targetuser later"); ok {
		t.Error("expired entry matched")
	}
}

func TestHubFanout(t *testing.T) {
	h := NewHub()
	all, cancelAll := h.Subscribe("")
	defer cancelAll()
	one, cancelOne := h.Subscribe("mychan")
	defer cancelOne()

	h.Publish(Event{Kind: EventMessageAppended, Channel: "mychan"})
	h.Publish(Event{Kind: EventMessageAppended, Channel: "other"})

	if ev := <-all; ev.Channel != "mychan" {
		t.Errorf("all sub first event channel = %q", ev.Channel)
	}
	if ev := <-all; ev.Channel != "other" {
		t.Errorf("all sub second event channel = %q", ev.Channel)
	}
	select {
	case ev := <-one:
		if ev.Channel != "mychan" {
			t.Errorf("filtered sub got %q", ev.Channel)
		}
	default:
		t.Error("filtered sub got nothing")
	}
	select {
	case ev := <-one:
		t.Errorf("filtered sub got extra event %+v", ev)
	default:
	}
}
