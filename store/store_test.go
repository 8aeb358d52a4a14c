package store

import (
	"fmt"
	"testing"
	"time"
)

func msg(channel, id, user, text string) *Message {
	return &Message{ID: id, Channel: channel, Username: user, DisplayName: user, Text: text, Role: RoleViewer, Timestamp: time.Now()}
}

func TestAppendDeduplicates(t *testing.T) {
	s := New()
	s.AddChannel("testchan")

	if !s.Append(msg("testchan", "id-1", "alice", "hello")) {
		t.Fatal("first append rejected")
	}
	if s.Append(msg("testchan", "id-1", "alice", "hello")) {
		t.Error("duplicate id appended")
	}

	sums := s.Summaries()
	if len(sums) != 1 || sums[0].MessageCount != 1 {
		t.Errorf("message count = %d, want 1", sums[0].MessageCount)
	}
	if got := len(s.Messages("testchan")); got != 1 {
		t.Errorf("held messages = %d, want 1", got)
	}
}

func TestAppendUnknownChannel(t *testing.T) {
	s := New()
	if s.Append(msg("nope", "id-1", "alice", "hi")) {
		t.Error("append to unknown channel succeeded")
	}
}

func TestFindByIDAndAcrossChannels(t *testing.T) {
	s := New()
	s.AddChannel("one")
	s.AddChannel("two")
	s.Append(msg("one", "a", "alice", "first"))
	s.Append(msg("two", "b", "bob", "second"))

	if m, ok := s.FindByID("one", "a"); !ok || m.Text != "first" {
		t.Errorf("FindByID(one, a) = %v, %v", m, ok)
	}
	if _, ok := s.FindByID("one", "b"); ok {
		t.Error("found message from wrong channel")
	}
	m, ch, ok := s.FindAcrossChannels("b")
	if !ok || ch != "two" || m.Username != "bob" {
		t.Errorf("FindAcrossChannels(b) = %v, %q, %v", m, ch, ok)
	}
}

func TestRecentByUser(t *testing.T) {
	s := New()
	s.AddChannel("c")
	for i := 0; i < 8; i++ {
		user := "alice"
		if i%2 == 1 {
			user = "bob"
		}
		s.Append(msg("c", fmt.Sprintf("id-%d", i), user, fmt.Sprintf("msg %d", i)))
	}

	got := s.RecentByUser("c", "ALICE", 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// oldest-first of alice's last three: 2, 4, 6
	want := []string{"msg 2", "msg 4", "msg 6"}
	for i, m := range got {
		if m.Text != want[i] {
			t.Errorf("got[%d].Text = %q, want %q", i, m.Text, want[i])
		}
	}
}

func TestMentionCap(t *testing.T) {
	s := New()
	s.AddChannel("a")
	s.AddChannel("b")
	for i := 0; i < 150; i++ {
		channel := "a"
		if i%2 == 0 {
			channel = "b"
		}
		m := msg(channel, fmt.Sprintf("m-%d", i), "viewer", "mention me")
		m.IsMention = true
		s.Append(m)
		s.AddMention(m)
	}

	mentions := s.GlobalMentions()
	if len(mentions) != 100 {
		t.Fatalf("global mentions = %d, want 100", len(mentions))
	}
	if mentions[0].ID != "m-149" {
		t.Errorf("newest mention = %s, want m-149", mentions[0].ID)
	}
	if mentions[99].ID != "m-50" {
		t.Errorf("oldest kept mention = %s, want m-50", mentions[99].ID)
	}
}

func TestMarkModerationFlags(t *testing.T) {
	s := New()
	s.AddChannel("c")
	s.Append(msg("c", "x1", "alice", "one"))
	s.Append(msg("c", "x2", "alice", "two"))
	s.Append(msg("c", "y1", "bob", "three"))

	if !s.MarkDeleted("c", "x1") {
		t.Fatal("MarkDeleted failed")
	}
	if m, _ := s.FindByID("c", "x1"); !m.Deleted {
		t.Error("deleted flag not set")
	}

	if n := s.MarkUserTimedOut("c", "alice"); n != 2 {
		t.Errorf("timed out %d messages, want 2", n)
	}
	if n := s.MarkUserBanned("c", "bob"); n != 1 {
		t.Errorf("banned %d messages, want 1", n)
	}
	if n := s.MarkUserUnbanned("c", "bob"); n != 1 {
		t.Errorf("unbanned %d messages, want 1", n)
	}
	if m, _ := s.FindByID("c", "y1"); m.Banned || m.TimedOut {
		t.Error("unban did not clear flags")
	}

	// order and presence preserved (soft delete only)
	if got := len(s.Messages("c")); got != 3 {
		t.Errorf("messages after moderation = %d, want 3", got)
	}
}

func TestRestoreKeepsCounters(t *testing.T) {
	s := New()
	s.AddChannel("c")
	s.Restore("c", []*Message{msg("c", "r1", "alice", "old")}, 42, 7)

	sums := s.Summaries()
	if sums[0].MessageCount != 42 || sums[0].MentionCount != 7 {
		t.Errorf("restored counters = %d/%d, want 42/7", sums[0].MessageCount, sums[0].MentionCount)
	}
	// restored messages still dedup against live arrivals
	if s.Append(msg("c", "r1", "alice", "old")) {
		t.Error("restored id appended twice")
	}
	if !s.Append(msg("c", "r2", "alice", "new")) {
		t.Fatal("live append rejected")
	}
	if got := s.Summaries()[0].MessageCount; got != 43 {
		t.Errorf("counter after live append = %d, want 43", got)
	}
}
