// Package moderation is the action façade: it translates moderation intents
// into Helix REST calls with a single-shot legacy IRC fallback, mutates
// message status flags only on confirmed success, and keeps the bounded
// audit log.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/moddeck/store"
	"github.com/onnwee/moddeck/telemetry"
	"github.com/onnwee/moddeck/twitchapi"
)

// ActionKind names an auditable moderation intent.
type ActionKind string

const (
	ActionDelete           ActionKind = "delete"
	ActionTimeout          ActionKind = "timeout"
	ActionBan              ActionKind = "ban"
	ActionUnban            ActionKind = "unban"
	ActionSend             ActionKind = "send"
	ActionReply            ActionKind = "reply"
	ActionPredictionCreate ActionKind = "prediction_create"
	ActionPredictionEnd    ActionKind = "prediction_end"
)

// maxLogEntries caps the in-memory audit log; the oldest entry is evicted
// past the cap.
const maxLogEntries = 1000

const replyContextLimit = 50

// Action is one moderation intent. MessageID is set for delete, TargetUser
// for timeout/ban/unban, Duration only for timeout.
type Action struct {
	Kind       ActionKind    `json:"kind"`
	Channel    string        `json:"channel"`
	TargetUser string        `json:"target_user,omitempty"`
	MessageID  string        `json:"message_id,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// LogEntry is one audit record, created on every attempted action, success
// or failure.
type LogEntry struct {
	Time      time.Time  `json:"time"`
	Action    ActionKind `json:"action"`
	Channel   string     `json:"channel"`
	Target    string     `json:"target"`
	Moderator string     `json:"moderator"`
	Via       string     `json:"via"` // helix, legacy, or none
	Success   bool       `json:"success"`
	Outcome   string     `json:"outcome"`
	Detail    string     `json:"detail,omitempty"`
}

// HelixModerator is the REST moderation surface. *twitchapi.ModClient
// implements it; nil means Helix is not configured and every action goes
// straight to the legacy path.
type HelixModerator interface {
	DeleteMessage(ctx context.Context, channel, messageID string) error
	TimeoutUser(ctx context.Context, channel, username string, d time.Duration, reason string) error
	BanUser(ctx context.Context, channel, username, reason string) error
	UnbanUser(ctx context.Context, channel, username string) error
	SendMessage(ctx context.Context, channel, text, replyParentID string) error
	CreatePrediction(ctx context.Context, channel, title string, outcomes []string, windowSeconds int) (*twitchapi.Prediction, error)
	LatestPrediction(ctx context.Context, channel string) (*twitchapi.Prediction, error)
	EndPrediction(ctx context.Context, channel, predictionID, status, winningOutcomeID string) (*twitchapi.Prediction, error)
}

// LegacyCommander is the slash-command fallback surface. *chat.Manager
// implements it.
type LegacyCommander interface {
	Say(channel, text string) error
	DeleteMessage(channel, messageID string) error
	Timeout(channel, username string, d time.Duration, reason string) error
	Ban(channel, username, reason string) error
	Unban(channel, username string) error
	Username() string
}

// LogSink persists audit entries. Persistence is best effort; a sink
// failure never fails the action.
type LogSink interface {
	SaveModerationLog(ctx context.Context, entry LogEntry) error
}

// Facade dispatches moderation actions. Safe for concurrent use.
type Facade struct {
	Store     *store.Store
	Hub       *store.Hub
	Helix     HelixModerator
	Legacy    LegacyCommander
	Pending   *store.PendingReplies
	Moderator string
	Sink      LogSink

	mu          sync.Mutex
	log         []LogEntry // newest first
	replyTarget *store.Message
	now         func() time.Time
}

// New builds a façade. Helix and Sink may be nil.
func New(st *store.Store, hub *store.Hub, helix HelixModerator, legacy LegacyCommander, pending *store.PendingReplies, moderator string) *Facade {
	return &Facade{
		Store:     st,
		Hub:       hub,
		Helix:     helix,
		Legacy:    legacy,
		Pending:   pending,
		Moderator: strings.ToLower(moderator),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (f *Facade) SetClock(now func() time.Time) { f.now = now }

// Execute runs one moderation action: Helix first, then the legacy command
// exactly once unless the Helix failure was a permission or not-found error
// (those fail the same everywhere and must not leave misleading partial
// state). Status flags mutate only after a confirmed success, and exactly
// one audit entry is recorded per attempt.
func (f *Facade) Execute(ctx context.Context, a Action) (LogEntry, error) {
	via, err := f.attempt(ctx, a)
	if err == nil {
		f.applyFlags(a)
	}
	entry := f.record(ctx, a.Kind, a.Channel, f.target(a), via, err)
	return entry, err
}

func (f *Facade) target(a Action) string {
	if a.TargetUser != "" {
		return a.TargetUser
	}
	return a.MessageID
}

func (f *Facade) attempt(ctx context.Context, a Action) (string, error) {
	if f.Helix != nil {
		err := f.helixCall(ctx, a)
		if err == nil {
			return "helix", nil
		}
		if class := ClassifyActionError(err); class != ErrorClassTransient {
			return "helix", err
		}
		slog.Warn("helix moderation failed, falling back to legacy command",
			slog.String("action", string(a.Kind)),
			slog.String("channel", a.Channel),
			slog.Any("err", err))
	}
	if f.Legacy == nil {
		return "none", fmt.Errorf("no moderation path configured")
	}
	return "legacy", f.legacyCall(a)
}

func (f *Facade) helixCall(ctx context.Context, a Action) error {
	switch a.Kind {
	case ActionDelete:
		return f.Helix.DeleteMessage(ctx, a.Channel, a.MessageID)
	case ActionTimeout:
		return f.Helix.TimeoutUser(ctx, a.Channel, a.TargetUser, a.Duration, a.Reason)
	case ActionBan:
		return f.Helix.BanUser(ctx, a.Channel, a.TargetUser, a.Reason)
	case ActionUnban:
		return f.Helix.UnbanUser(ctx, a.Channel, a.TargetUser)
	default:
		return fmt.Errorf("unsupported action kind %q", a.Kind)
	}
}

func (f *Facade) legacyCall(a Action) error {
	switch a.Kind {
	case ActionDelete:
		return f.Legacy.DeleteMessage(a.Channel, a.MessageID)
	case ActionTimeout:
		return f.Legacy.Timeout(a.Channel, a.TargetUser, a.Duration, a.Reason)
	case ActionBan:
		return f.Legacy.Ban(a.Channel, a.TargetUser, a.Reason)
	case ActionUnban:
		return f.Legacy.Unban(a.Channel, a.TargetUser)
	default:
		return fmt.Errorf("unsupported action kind %q", a.Kind)
	}
}

// applyFlags performs the store-side soft mutation for a confirmed action.
func (f *Facade) applyFlags(a Action) {
	changed := false
	switch a.Kind {
	case ActionDelete:
		changed = f.Store.MarkDeleted(a.Channel, a.MessageID)
	case ActionTimeout:
		changed = f.Store.MarkUserTimedOut(a.Channel, a.TargetUser) > 0
	case ActionBan:
		changed = f.Store.MarkUserBanned(a.Channel, a.TargetUser) > 0
	case ActionUnban:
		changed = f.Store.MarkUserUnbanned(a.Channel, a.TargetUser) > 0
	}
	if changed && f.Hub != nil {
		f.Hub.Publish(store.Event{Kind: store.EventVisibilityChanged, Channel: a.Channel})
	}
}

// record appends exactly one audit entry for an attempt and notifies
// subscribers. Sink persistence is best effort.
func (f *Facade) record(ctx context.Context, kind ActionKind, channel, target, via string, err error) LogEntry {
	entry := LogEntry{
		Time:      f.now().UTC(),
		Action:    kind,
		Channel:   channel,
		Target:    target,
		Moderator: f.moderatorLogin(),
		Via:       via,
		Success:   err == nil,
	}
	outcome := "ok"
	if err != nil {
		entry.Detail = err.Error()
		outcome = "failed"
		switch ClassifyActionError(err) {
		case ErrorClassPermission:
			outcome = "permission_denied"
		case ErrorClassNotFound:
			outcome = "not_found"
		}
	} else if via == "legacy" {
		outcome = "legacy"
	}
	entry.Outcome = outcome
	telemetry.IncModeration(string(kind), outcome)

	f.mu.Lock()
	f.log = append([]LogEntry{entry}, f.log...)
	if len(f.log) > maxLogEntries {
		f.log = f.log[:maxLogEntries]
	}
	f.mu.Unlock()

	if f.Sink != nil {
		if serr := f.Sink.SaveModerationLog(ctx, entry); serr != nil {
			slog.Warn("failed to persist moderation log entry", slog.Any("err", serr))
		}
	}
	if f.Hub != nil {
		f.Hub.Publish(store.Event{Kind: store.EventModerationOutcome, Channel: channel})
	}
	return entry
}

func (f *Facade) moderatorLogin() string {
	if f.Legacy != nil {
		if u := f.Legacy.Username(); u != "" {
			return u
		}
	}
	return f.Moderator
}

// Log returns up to limit audit entries, newest first; limit <= 0 returns
// everything.
func (f *Facade) Log(limit int) []LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.log) {
		limit = len(f.log)
	}
	out := make([]LogEntry, limit)
	copy(out, f.log[:limit])
	return out
}

// SetReplyTarget points the next Send at an existing message. Messages with
// synthesized ids are accepted but can only be replied to through the
// @-prefix path; the platform does not know their ids.
func (f *Facade) SetReplyTarget(channel, messageID string) error {
	m, ok := f.Store.FindByID(channel, messageID)
	if !ok {
		return fmt.Errorf("message %s not found in %s", messageID, channel)
	}
	f.mu.Lock()
	f.replyTarget = m
	f.mu.Unlock()
	return nil
}

// ClearReplyTarget drops the pending reply target.
func (f *Facade) ClearReplyTarget() {
	f.mu.Lock()
	f.replyTarget = nil
	f.mu.Unlock()
}

// ReplyTarget returns the current target, or nil.
func (f *Facade) ReplyTarget() *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replyTarget
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// Send posts a chat line. With a reply target set for the same channel the
// line goes out as a reply: via Helix parent linkage when possible,
// otherwise via the legacy @-prefix convention plus a PendingReplies entry
// so the echoed message links back instead of reading as a fresh mention.
// The reply target is consumed by the attempt regardless of outcome.
func (f *Facade) Send(ctx context.Context, channel, text string) error {
	f.mu.Lock()
	target := f.replyTarget
	f.mu.Unlock()
	if target != nil && !strings.EqualFold(target.Channel, channel) {
		target = nil
	}

	if target == nil {
		err := f.sendPlain(ctx, channel, text)
		f.record(ctx, ActionSend, channel, "", f.sendVia(), err)
		return err
	}

	defer f.ClearReplyTarget()

	if f.Helix != nil && !target.Synthetic {
		err := f.Helix.SendMessage(ctx, channel, text, target.ID)
		if err == nil {
			f.record(ctx, ActionReply, channel, target.Sender(), "helix", nil)
			return nil
		}
		if ClassifyActionError(err) != ErrorClassTransient {
			f.record(ctx, ActionReply, channel, target.Sender(), "helix", err)
			return err
		}
		slog.Warn("helix reply failed, falling back to prefix reply", slog.Any("err", err))
	}

	if f.Legacy == nil {
		err := fmt.Errorf("no send path configured")
		f.record(ctx, ActionReply, channel, target.Sender(), "none", err)
		return err
	}
	out := "@" + target.Sender() + " " + text
	if err := f.Legacy.Say(channel, out); err != nil {
		f.record(ctx, ActionReply, channel, target.Sender(), "legacy", err)
		return err
	}
	f.Pending.Register(channel, f.moderatorLogin(), out, store.ReplyRef{
		Username: target.Sender(),
		Text:     truncate(target.Text, replyContextLimit),
	})
	f.record(ctx, ActionReply, channel, target.Sender(), "legacy", nil)
	return nil
}

func (f *Facade) sendVia() string {
	if f.Legacy != nil {
		return "legacy"
	}
	return "helix"
}

func (f *Facade) sendPlain(ctx context.Context, channel, text string) error {
	if f.Legacy != nil {
		err := f.Legacy.Say(channel, text)
		if err == nil {
			return nil
		}
		if f.Helix == nil {
			return err
		}
		slog.Warn("legacy send failed, trying helix", slog.Any("err", err))
	}
	if f.Helix == nil {
		return fmt.Errorf("no send path configured")
	}
	return f.Helix.SendMessage(ctx, channel, text, "")
}

// CreatePrediction opens a channel points prediction. Helix only; there is
// no legacy equivalent.
func (f *Facade) CreatePrediction(ctx context.Context, channel, title string, outcomes []string, windowSeconds int) (*twitchapi.Prediction, error) {
	if f.Helix == nil {
		return nil, fmt.Errorf("predictions require helix credentials")
	}
	p, err := f.Helix.CreatePrediction(ctx, channel, title, outcomes, windowSeconds)
	f.record(ctx, ActionPredictionCreate, channel, title, "helix", err)
	return p, err
}

// Prediction returns the channel's most recent prediction. Read-only, not
// audited.
func (f *Facade) Prediction(ctx context.Context, channel string) (*twitchapi.Prediction, error) {
	if f.Helix == nil {
		return nil, fmt.Errorf("predictions require helix credentials")
	}
	return f.Helix.LatestPrediction(ctx, channel)
}

// EndPrediction resolves, locks, or cancels a prediction.
func (f *Facade) EndPrediction(ctx context.Context, channel, predictionID, status, winningOutcomeID string) (*twitchapi.Prediction, error) {
	if f.Helix == nil {
		return nil, fmt.Errorf("predictions require helix credentials")
	}
	p, err := f.Helix.EndPrediction(ctx, channel, predictionID, status, winningOutcomeID)
	f.record(ctx, ActionPredictionEnd, channel, predictionID, "helix", err)
	return p, err
}
