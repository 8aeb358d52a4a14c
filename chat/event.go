package chat

import "time"

// EventKind discriminates the normalized events the manager emits. Consumers
// never see the underlying IRC library types.
type EventKind string

const (
	EventMessage        EventKind = "message"
	EventConnected      EventKind = "connected"
	EventDisconnected   EventKind = "disconnected"
	EventReconnecting   EventKind = "reconnecting"
	EventNotice         EventKind = "notice"
	EventMessageDeleted EventKind = "message_deleted"
	EventUserTimedOut   EventKind = "user_timed_out"
	EventUserBanned     EventKind = "user_banned"
	EventUserUnbanned   EventKind = "user_unbanned"
)

// Event is the tagged-variant shape delivered to the ingestion pipeline.
// Message is set for EventMessage; Notice for EventNotice; TargetUser /
// TargetMsgID / Duration for the moderation notice kinds.
type Event struct {
	Kind        EventKind
	Channel     string
	Message     *Message
	Notice      *Notice
	TargetUser  string
	TargetMsgID string
	Duration    time.Duration
}

// EmoteSpan is one platform-native emote occurrence by character offsets
// (inclusive) into the raw message text.
type EmoteSpan struct {
	ID    string
	Name  string
	Start int
	End   int
}

// Message is the normalized inbound chat message. Badges carries the raw
// platform badge map (type -> version); role derivation happens downstream.
type Message struct {
	ID          string
	Channel     string
	Username    string
	DisplayName string
	Color       string
	Text        string
	Badges      map[string]int
	IsModerator bool
	IsSubscriber bool
	Bits        int
	Emotes      []EmoteSpan
	Self        bool
	Time        time.Time

	// Native reply threading tags, when the platform supplied them.
	ReplyParentUser string
	ReplyParentText string
}

// Notice is a server notice (moderation feedback, rate limits, etc).
type Notice struct {
	MsgID string
	Text  string
}
