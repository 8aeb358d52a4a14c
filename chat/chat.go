package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Handler receives normalized events. It is invoked from each connection's
// reader goroutine and must be safe for concurrent use.
type Handler func(Event)

// Manager owns one IRC connection per joined channel and translates the
// library's callbacks into the tagged Event shape. It also exposes the
// legacy slash-command moderation surface used as a fallback when the Helix
// path is unavailable.
type Manager struct {
	username string
	oauth    string
	handler  Handler

	mu      sync.Mutex
	clients map[string]*twitch.Client
}

// NewManager builds a manager. Empty credentials connect anonymously
// (read-only); this is reported once at connect time, not on every send.
func NewManager(username, oauth string, handler Handler) *Manager {
	return &Manager{
		username: strings.ToLower(strings.TrimSpace(username)),
		oauth:    oauth,
		handler:  handler,
		clients:  make(map[string]*twitch.Client),
	}
}

// Anonymous reports whether the manager runs without credentials.
func (m *Manager) Anonymous() bool { return m.username == "" || m.oauth == "" }

// Username returns the authenticated login, or "" when anonymous.
func (m *Manager) Username() string {
	if m.Anonymous() {
		return ""
	}
	return m.username
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}

// Connect joins a channel on its own connection. The connection lifecycle
// (including the library's automatic reconnect with backoff) runs on a
// background goroutine; failures surface as disconnected events, never as
// errors into the ingestion path.
func (m *Manager) Connect(channel string) error {
	channel = normalizeChannel(channel)
	if channel == "" {
		return fmt.Errorf("channel name empty")
	}

	m.mu.Lock()
	if _, exists := m.clients[channel]; exists {
		m.mu.Unlock()
		return nil
	}
	var client *twitch.Client
	if m.Anonymous() {
		client = twitch.NewAnonymousClient()
	} else {
		client = twitch.NewClient(m.username, m.oauth)
	}
	m.clients[channel] = client
	m.mu.Unlock()

	client.OnConnect(func() {
		// Fires on the initial connect and after every full reconnect
		// cycle; Join below keeps the channel subscribed either way.
		m.handler(Event{Kind: EventConnected, Channel: channel})
	})

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		m.handler(Event{Kind: EventMessage, Channel: channel, Message: m.normalize(channel, msg)})
	})

	client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		m.handler(Event{Kind: EventReconnecting, Channel: channel})
	})

	client.OnNoticeMessage(func(msg twitch.NoticeMessage) {
		m.handler(Event{Kind: EventNotice, Channel: channel, Notice: &Notice{MsgID: msg.MsgID, Text: msg.Message}})
	})

	client.OnClearMessage(func(msg twitch.ClearMessage) {
		m.handler(Event{Kind: EventMessageDeleted, Channel: channel, TargetUser: msg.Login, TargetMsgID: msg.TargetMsgID})
	})

	client.OnClearChatMessage(func(msg twitch.ClearChatMessage) {
		if msg.TargetUsername == "" {
			// Full /clear; nothing to attribute.
			return
		}
		if msg.BanDuration > 0 {
			m.handler(Event{
				Kind:       EventUserTimedOut,
				Channel:    channel,
				TargetUser: msg.TargetUsername,
				Duration:   time.Duration(msg.BanDuration) * time.Second,
			})
			return
		}
		m.handler(Event{Kind: EventUserBanned, Channel: channel, TargetUser: msg.TargetUsername})
	})

	client.Join(channel)

	go func() {
		if m.Anonymous() {
			slog.Info("joining channel read-only (no credentials)", slog.String("channel", channel))
		}
		if err := client.Connect(); err != nil {
			// Connect blocks for the life of the connection; an error here
			// means the connection is gone for good (or Disconnect was
			// called).
			slog.Warn("chat connection closed", slog.String("channel", channel), slog.Any("err", err))
			m.handler(Event{Kind: EventDisconnected, Channel: channel})
		}
	}()

	return nil
}

// Disconnect leaves a channel and tears down its connection.
func (m *Manager) Disconnect(channel string) error {
	channel = normalizeChannel(channel)
	m.mu.Lock()
	client, ok := m.clients[channel]
	if ok {
		delete(m.clients, channel)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("not connected to %s", channel)
	}
	return client.Disconnect()
}

// Channels returns the currently joined channel names.
func (m *Manager) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.clients))
	for ch := range m.clients {
		out = append(out, ch)
	}
	return out
}

func (m *Manager) client(channel string) (*twitch.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[normalizeChannel(channel)]
	if !ok {
		return nil, fmt.Errorf("not connected to %s", channel)
	}
	return client, nil
}

// Say sends a chat line. Requires credentials; an anonymous connection is
// read-only.
func (m *Manager) Say(channel, text string) error {
	if m.Anonymous() {
		return fmt.Errorf("cannot send: connected anonymously")
	}
	client, err := m.client(channel)
	if err != nil {
		return err
	}
	client.Say(normalizeChannel(channel), text)
	return nil
}

// DeleteMessage issues the legacy delete command for a message id.
func (m *Manager) DeleteMessage(channel, messageID string) error {
	return m.Say(channel, fmt.Sprintf("/delete %s", messageID))
}

// Timeout issues the legacy timeout command.
func (m *Manager) Timeout(channel, username string, d time.Duration, reason string) error {
	return m.Say(channel, strings.TrimSpace(fmt.Sprintf("/timeout %s %d %s", username, int(d.Seconds()), reason)))
}

// Ban issues the legacy ban command.
func (m *Manager) Ban(channel, username, reason string) error {
	return m.Say(channel, strings.TrimSpace(fmt.Sprintf("/ban %s %s", username, reason)))
}

// Unban issues the legacy unban command.
func (m *Manager) Unban(channel, username string) error {
	return m.Say(channel, fmt.Sprintf("/unban %s", username))
}

func (m *Manager) normalize(channel string, msg twitch.PrivateMessage) *Message {
	badges := make(map[string]int, len(msg.User.Badges))
	for k, v := range msg.User.Badges {
		badges[k] = v
	}
	emotes := make([]EmoteSpan, 0, len(msg.Emotes))
	for _, e := range msg.Emotes {
		for _, p := range e.Positions {
			emotes = append(emotes, EmoteSpan{ID: e.ID, Name: e.Name, Start: p.Start, End: p.End})
		}
	}
	sentAt := msg.Time
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	var replyParentUser, replyParentText string
	if msg.Reply != nil {
		replyParentUser = msg.Reply.ParentDisplayName
		replyParentText = msg.Reply.ParentMsgBody
	}
	return &Message{
		ID:           msg.ID,
		Channel:      channel,
		Username:     msg.User.Name,
		DisplayName:  msg.User.DisplayName,
		Color:        msg.User.Color,
		Text:         msg.Message,
		Badges:       badges,
		IsModerator:  msg.User.Badges["moderator"] > 0 || msg.Tags["mod"] == "1",
		IsSubscriber: msg.User.Badges["subscriber"] > 0 || msg.Tags["subscriber"] == "1",
		Bits:         msg.Bits,
		Emotes:       emotes,
		Self:         !m.Anonymous() && strings.EqualFold(msg.User.Name, m.username),
		Time:         sentAt,

		ReplyParentUser: replyParentUser,
		ReplyParentText: replyParentText,
	}
}
