// Package store holds the in-memory chat state: per-channel message history,
// mention tracking, recurrence windows, and transient reply bookkeeping. It is
// the single source of truth consumed by the filter engine, the HTTP surface,
// and the annotator's duplicate/context lookups.
package store

import "time"

// Role is the single effective chat role derived for a message sender.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleModerator   Role = "moderator"
	RoleVerified    Role = "verified"
	RoleVIP         Role = "vip"
	RoleSubscriber  Role = "subscriber"
	RoleViewer      Role = "viewer"
)

// AllRoles lists every role in precedence order (highest first).
var AllRoles = []Role{RoleBroadcaster, RoleModerator, RoleVerified, RoleVIP, RoleSubscriber, RoleViewer}

// BadgeRef is a resolved, renderable badge reference.
type BadgeRef struct {
	Type     string `json:"type"`
	Version  string `json:"version"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

// EmoteRef points at a renderable emote image. Source is "twitch" or "7tv".
type EmoteRef struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Source   string `json:"source"`
}

// Fragment is one piece of a rendered message body: either literal text
// (Emote nil) or an inline emote substitution.
type Fragment struct {
	Text  string    `json:"text,omitempty"`
	Emote *EmoteRef `json:"emote,omitempty"`
}

// ReplyRef is an informational back-reference to the message being replied
// to. It is never an ownership link; the target may have been evicted or
// belong to another view entirely.
type ReplyRef struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Message is one annotated chat utterance. Immutable after annotation except
// for the moderation status flags, which only the moderation path mutates.
type Message struct {
	ID          string     `json:"id"`
	Synthetic   bool       `json:"synthetic,omitempty"` // locally generated id; not reply-capable
	Channel     string     `json:"channel"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Color       string     `json:"color"`
	Text        string     `json:"text"` // reply prefix stripped, pre-substitution
	Fragments   []Fragment `json:"fragments,omitempty"`
	Role        Role       `json:"role"`
	Badges      []BadgeRef `json:"badges,omitempty"`
	IsMention   bool       `json:"is_mention"`
	IsSelf      bool       `json:"is_self,omitempty"`
	ReplyTo     *ReplyRef  `json:"reply_to,omitempty"`
	Recurrence  int        `json:"recurrence"`
	Timestamp   time.Time  `json:"timestamp"`

	Deleted  bool `json:"deleted,omitempty"`
	TimedOut bool `json:"timed_out,omitempty"`
	Banned   bool `json:"banned,omitempty"`
}

// Sender returns the name used for display and reply matching: the display
// name when the platform provided one, else the login.
func (m *Message) Sender() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Username
}
