package moderation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/onnwee/moddeck/store"
	"github.com/onnwee/moddeck/twitchapi"
)

type fakeHelix struct {
	failWith error
	calls    []string

	sentChannel string
	sentText    string
	sentParent  string
}

func (h *fakeHelix) DeleteMessage(_ context.Context, channel, messageID string) error {
	h.calls = append(h.calls, "delete "+messageID)
	return h.failWith
}

func (h *fakeHelix) TimeoutUser(_ context.Context, channel, username string, d time.Duration, reason string) error {
	h.calls = append(h.calls, fmt.Sprintf("timeout %s %d", username, int(d.Seconds())))
	return h.failWith
}

func (h *fakeHelix) BanUser(_ context.Context, channel, username, reason string) error {
	h.calls = append(h.calls, "ban "+username)
	return h.failWith
}

func (h *fakeHelix) UnbanUser(_ context.Context, channel, username string) error {
	h.calls = append(h.calls, "unban "+username)
	return h.failWith
}

func (h *fakeHelix) SendMessage(_ context.Context, channel, text, replyParentID string) error {
	h.calls = append(h.calls, "send")
	h.sentChannel, h.sentText, h.sentParent = channel, text, replyParentID
	return h.failWith
}

func (h *fakeHelix) CreatePrediction(_ context.Context, channel, title string, outcomes []string, windowSeconds int) (*twitchapi.Prediction, error) {
	h.calls = append(h.calls, "prediction_create")
	return &twitchapi.Prediction{ID: "p-1", Title: title, Status: "ACTIVE"}, h.failWith
}

func (h *fakeHelix) LatestPrediction(_ context.Context, channel string) (*twitchapi.Prediction, error) {
	return &twitchapi.Prediction{ID: "p-1", Status: "ACTIVE"}, h.failWith
}

func (h *fakeHelix) EndPrediction(_ context.Context, channel, predictionID, status, winningOutcomeID string) (*twitchapi.Prediction, error) {
	h.calls = append(h.calls, "prediction_end "+status)
	return &twitchapi.Prediction{ID: predictionID, Status: status}, h.failWith
}

type fakeLegacy struct {
	failWith error
	calls    []string
	said     []string
	user     string
}

func (l *fakeLegacy) Say(channel, text string) error {
	l.calls = append(l.calls, "say")
	l.said = append(l.said, text)
	return l.failWith
}

func (l *fakeLegacy) DeleteMessage(channel, messageID string) error {
	l.calls = append(l.calls, "delete "+messageID)
	return l.failWith
}

func (l *fakeLegacy) Timeout(channel, username string, d time.Duration, reason string) error {
	l.calls = append(l.calls, "timeout "+username)
	return l.failWith
}

func (l *fakeLegacy) Ban(channel, username, reason string) error {
	l.calls = append(l.calls, "ban "+username)
	return l.failWith
}

func (l *fakeLegacy) Unban(channel, username string) error {
	l.calls = append(l.calls, "unban "+username)
	return l.failWith
}

func (l *fakeLegacy) Username() string { return l.user }

func newTestFacade(t *testing.T, helix HelixModerator, legacy LegacyCommander) (*Facade, *store.Store) {
	t.Helper()
	st := store.New()
	st.AddChannel("c")
	st.Append(&store.Message{ID: "target-1", Channel: "c", Username: "troll", DisplayName: "Troll", Text: "offending message text", Timestamp: time.Now()})
	f := New(st, nil, helix, legacy, store.NewPendingReplies(), "deckbot")
	return f, st
}

func TestExecuteHelixSuccess(t *testing.T) {
	helix := &fakeHelix{}
	legacy := &fakeLegacy{user: "deckbot"}
	f, st := newTestFacade(t, helix, legacy)

	entry, err := f.Execute(context.Background(), Action{Kind: ActionDelete, Channel: "c", MessageID: "target-1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if entry.Via != "helix" || !entry.Success || entry.Outcome != "ok" {
		t.Errorf("entry = %+v", entry)
	}
	if m, _ := st.FindByID("c", "target-1"); !m.Deleted {
		t.Error("deleted flag not set after confirmed success")
	}
	if len(legacy.calls) != 0 {
		t.Errorf("legacy called on helix success: %v", legacy.calls)
	}
	if got := f.Log(0); len(got) != 1 {
		t.Errorf("log entries = %d, want exactly 1", len(got))
	}
}

func TestExecutePermissionStopsFallback(t *testing.T) {
	helix := &fakeHelix{failWith: errors.New("helix DELETE failed: 403 Forbidden: not a moderator")}
	legacy := &fakeLegacy{}
	f, st := newTestFacade(t, helix, legacy)

	entry, err := f.Execute(context.Background(), Action{Kind: ActionDelete, Channel: "c", MessageID: "target-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(legacy.calls) != 0 {
		t.Errorf("legacy attempted after permission error: %v", legacy.calls)
	}
	if m, _ := st.FindByID("c", "target-1"); m.Deleted {
		t.Error("deleted flag set despite failure")
	}
	if entry.Outcome != "permission_denied" || entry.Success {
		t.Errorf("entry = %+v", entry)
	}
	if got := f.Log(0); len(got) != 1 {
		t.Errorf("log entries = %d, want exactly 1", len(got))
	}
}

func TestExecuteNotFoundStopsFallback(t *testing.T) {
	helix := &fakeHelix{failWith: errors.New("helix POST failed: 404 Not Found")}
	legacy := &fakeLegacy{}
	f, _ := newTestFacade(t, helix, legacy)

	entry, err := f.Execute(context.Background(), Action{Kind: ActionBan, Channel: "c", TargetUser: "ghost"})
	if err == nil || len(legacy.calls) != 0 {
		t.Fatalf("err = %v, legacy calls = %v", err, legacy.calls)
	}
	if entry.Outcome != "not_found" {
		t.Errorf("outcome = %q", entry.Outcome)
	}
}

func TestExecuteTransientFallsBackOnce(t *testing.T) {
	helix := &fakeHelix{failWith: errors.New("dial tcp: connection refused")}
	legacy := &fakeLegacy{}
	f, st := newTestFacade(t, helix, legacy)

	entry, err := f.Execute(context.Background(), Action{Kind: ActionDelete, Channel: "c", MessageID: "target-1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(helix.calls) != 1 || len(legacy.calls) != 1 {
		t.Errorf("helix calls = %v, legacy calls = %v, want one each", helix.calls, legacy.calls)
	}
	if m, _ := st.FindByID("c", "target-1"); !m.Deleted {
		t.Error("deleted flag not set after legacy success")
	}
	if entry.Via != "legacy" || entry.Outcome != "legacy" {
		t.Errorf("entry = %+v", entry)
	}
	if got := f.Log(0); len(got) != 1 {
		t.Errorf("log entries = %d, want exactly 1", len(got))
	}
}

func TestExecuteBothPathsFail(t *testing.T) {
	helix := &fakeHelix{failWith: errors.New("connection reset")}
	legacy := &fakeLegacy{failWith: errors.New("cannot send: connected anonymously")}
	f, st := newTestFacade(t, helix, legacy)

	entry, err := f.Execute(context.Background(), Action{Kind: ActionTimeout, Channel: "c", TargetUser: "troll", Duration: time.Minute})
	if err == nil {
		t.Fatal("expected error")
	}
	if m, _ := st.FindByID("c", "target-1"); m.TimedOut {
		t.Error("flag mutated without any confirmed success")
	}
	if entry.Success || entry.Outcome != "failed" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestExecuteWithoutHelix(t *testing.T) {
	legacy := &fakeLegacy{}
	f, st := newTestFacade(t, nil, legacy)

	_, err := f.Execute(context.Background(), Action{Kind: ActionUnban, Channel: "c", TargetUser: "troll"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(legacy.calls) != 1 {
		t.Errorf("legacy calls = %v", legacy.calls)
	}
	if m, _ := st.FindByID("c", "target-1"); m.Banned || m.TimedOut {
		t.Error("unban flags wrong")
	}
}

func TestLogCapNewestFirst(t *testing.T) {
	f, _ := newTestFacade(t, &fakeHelix{}, &fakeLegacy{})
	for i := 0; i < maxLogEntries+5; i++ {
		f.Execute(context.Background(), Action{Kind: ActionDelete, Channel: "c", MessageID: fmt.Sprintf("m-%d", i)})
	}
	log := f.Log(0)
	if len(log) != maxLogEntries {
		t.Fatalf("log length = %d, want %d", len(log), maxLogEntries)
	}
	if log[0].Target != fmt.Sprintf("m-%d", maxLogEntries+4) {
		t.Errorf("newest entry target = %s", log[0].Target)
	}
	if got := f.Log(10); len(got) != 10 {
		t.Errorf("Log(10) = %d entries", len(got))
	}
}

func TestSendReplyViaHelixParentLinkage(t *testing.T) {
	helix := &fakeHelix{}
	f, _ := newTestFacade(t, helix, &fakeLegacy{user: "deckbot"})

	if err := f.SetReplyTarget("c", "target-1"); err != nil {
		t.Fatalf("SetReplyTarget() error = %v", err)
	}
	if err := f.Send(context.Background(), "c", "please stop"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if helix.sentParent != "target-1" || helix.sentText != "please stop" {
		t.Errorf("helix send = %q parent %q", helix.sentText, helix.sentParent)
	}
	if f.ReplyTarget() != nil {
		t.Error("reply target not consumed")
	}
}

func TestSendReplyFallbackRegistersPending(t *testing.T) {
	// spec'd round trip, façade half: without REST the outgoing line is
	// "@Troll hi" and a PendingReplies entry is registered for the echo.
	legacy := &fakeLegacy{user: "deckbot"}
	f, _ := newTestFacade(t, nil, legacy)

	if err := f.SetReplyTarget("c", "target-1"); err != nil {
		t.Fatal(err)
	}
	if err := f.Send(context.Background(), "c", "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(legacy.said) != 1 || legacy.said[0] != "@Troll hi" {
		t.Fatalf("said = %v", legacy.said)
	}
	ref, ok := f.Pending.Take("c", "deckbot", "@Troll hi")
	if !ok {
		t.Fatal("pending reply not registered")
	}
	if ref.Username != "Troll" || ref.Text != "offending message text" {
		t.Errorf("pending ref = %+v", ref)
	}
}

func TestSendReplySyntheticIDUsesPrefixPath(t *testing.T) {
	helix := &fakeHelix{}
	legacy := &fakeLegacy{user: "deckbot"}
	f, st := newTestFacade(t, helix, legacy)
	st.Append(&store.Message{ID: "local-1", Synthetic: true, Channel: "c", Username: "someone", DisplayName: "Someone", Text: "no platform id", Timestamp: time.Now()})

	if err := f.SetReplyTarget("c", "local-1"); err != nil {
		t.Fatal(err)
	}
	if err := f.Send(context.Background(), "c", "ok"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(helix.calls) != 0 {
		t.Errorf("helix called for synthetic-id reply: %v", helix.calls)
	}
	if len(legacy.said) != 1 || legacy.said[0] != "@Someone ok" {
		t.Errorf("said = %v, want prefix reply", legacy.said)
	}
}

func TestSendPlainWhenTargetIsOtherChannel(t *testing.T) {
	legacy := &fakeLegacy{user: "deckbot"}
	f, st := newTestFacade(t, nil, legacy)
	st.AddChannel("other")

	if err := f.SetReplyTarget("c", "target-1"); err != nil {
		t.Fatal(err)
	}
	if err := f.Send(context.Background(), "other", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if legacy.said[0] != "hello" {
		t.Errorf("said = %v, want plain text", legacy.said)
	}
	// target is kept for its own channel
	if f.ReplyTarget() == nil {
		t.Error("cross-channel send consumed the reply target")
	}
}

func TestSetReplyTargetUnknownMessage(t *testing.T) {
	f, _ := newTestFacade(t, nil, &fakeLegacy{})
	if err := f.SetReplyTarget("c", "nope"); err == nil {
		t.Error("unknown message accepted as reply target")
	}
}

func TestPredictionsRequireHelix(t *testing.T) {
	f, _ := newTestFacade(t, nil, &fakeLegacy{})
	if _, err := f.CreatePrediction(context.Background(), "c", "t", []string{"a", "b"}, 60); err == nil {
		t.Error("prediction created without helix")
	}

	helix := &fakeHelix{}
	f2, _ := newTestFacade(t, helix, &fakeLegacy{})
	p, err := f2.CreatePrediction(context.Background(), "c", "Will it work?", []string{"Yes", "No"}, 60)
	if err != nil || p.ID != "p-1" {
		t.Fatalf("CreatePrediction() = %+v, %v", p, err)
	}
	if _, err := f2.EndPrediction(context.Background(), "c", "p-1", "CANCELED", ""); err != nil {
		t.Fatalf("EndPrediction() error = %v", err)
	}
	log := f2.Log(0)
	if len(log) != 2 || log[0].Action != ActionPredictionEnd || log[1].Action != ActionPredictionCreate {
		t.Errorf("log = %+v", log)
	}
}
