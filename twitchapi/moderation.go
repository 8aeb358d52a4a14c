package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// TokenProvider yields a user access token carrying the moderator scopes
// (moderator:manage:chat_messages, moderator:manage:banned_users, chat:edit,
// channel:manage:predictions). App tokens are not accepted by these
// endpoints.
type TokenProvider interface {
	UserToken(ctx context.Context) (string, error)
}

// ModClient performs the Helix moderation, chat send, and prediction calls
// on behalf of an authenticated moderator account. Failed calls return
// errors carrying the HTTP status text so callers can distinguish permission
// problems from transient ones.
type ModClient struct {
	Helix          *HelixClient
	Tokens         TokenProvider
	ModeratorLogin string
}

func (mc *ModClient) ids(ctx context.Context, channel string) (broadcasterID, moderatorID string, err error) {
	broadcasterID, err = mc.Helix.GetUserID(ctx, channel)
	if err != nil {
		return "", "", err
	}
	moderatorID, err = mc.Helix.GetUserID(ctx, mc.ModeratorLogin)
	if err != nil {
		return "", "", err
	}
	return broadcasterID, moderatorID, nil
}

func (mc *ModClient) do(ctx context.Context, method, path string, q url.Values, payload any) ([]byte, error) {
	tok, err := mc.Tokens.UserToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("user token: %w", err)
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	u := "https://api.twitch.tv" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", mc.Helix.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := mc.Helix.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("helix %s %s failed: %s: %s", method, path, resp.Status, string(b))
	}
	return b, nil
}

// DeleteMessage removes a single chat message by id.
func (mc *ModClient) DeleteMessage(ctx context.Context, channel, messageID string) error {
	broadcasterID, moderatorID, err := mc.ids(ctx, channel)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("moderator_id", moderatorID)
	q.Set("message_id", messageID)
	_, err = mc.do(ctx, http.MethodDelete, "/helix/moderation/chat", q, nil)
	return err
}

type banPayload struct {
	Data struct {
		UserID   string `json:"user_id"`
		Duration int    `json:"duration,omitempty"`
		Reason   string `json:"reason,omitempty"`
	} `json:"data"`
}

func (mc *ModClient) ban(ctx context.Context, channel, username string, duration time.Duration, reason string) error {
	broadcasterID, moderatorID, err := mc.ids(ctx, channel)
	if err != nil {
		return err
	}
	userID, err := mc.Helix.GetUserID(ctx, username)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("moderator_id", moderatorID)
	var p banPayload
	p.Data.UserID = userID
	p.Data.Duration = int(duration.Seconds())
	p.Data.Reason = reason
	_, err = mc.do(ctx, http.MethodPost, "/helix/moderation/bans", q, p)
	return err
}

// TimeoutUser bans a user for a bounded duration.
func (mc *ModClient) TimeoutUser(ctx context.Context, channel, username string, d time.Duration, reason string) error {
	if d <= 0 {
		return fmt.Errorf("timeout duration must be positive")
	}
	return mc.ban(ctx, channel, username, d, reason)
}

// BanUser bans a user permanently.
func (mc *ModClient) BanUser(ctx context.Context, channel, username, reason string) error {
	return mc.ban(ctx, channel, username, 0, reason)
}

// UnbanUser lifts a ban or an active timeout.
func (mc *ModClient) UnbanUser(ctx context.Context, channel, username string) error {
	broadcasterID, moderatorID, err := mc.ids(ctx, channel)
	if err != nil {
		return err
	}
	userID, err := mc.Helix.GetUserID(ctx, username)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("moderator_id", moderatorID)
	q.Set("user_id", userID)
	_, err = mc.do(ctx, http.MethodDelete, "/helix/moderation/bans", q, nil)
	return err
}

// SendMessage posts a chat line, optionally threaded as a reply to an
// existing message id.
func (mc *ModClient) SendMessage(ctx context.Context, channel, text, replyParentID string) error {
	broadcasterID, senderID, err := mc.ids(ctx, channel)
	if err != nil {
		return err
	}
	payload := map[string]string{
		"broadcaster_id": broadcasterID,
		"sender_id":      senderID,
		"message":        text,
	}
	if replyParentID != "" {
		payload["reply_parent_message_id"] = replyParentID
	}
	b, err := mc.do(ctx, http.MethodPost, "/helix/chat/messages", nil, payload)
	if err != nil {
		return err
	}
	// A 200 can still carry a per-message drop reason.
	var body struct {
		Data []struct {
			IsSent     bool `json:"is_sent"`
			DropReason *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"drop_reason"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &body); err == nil && len(body.Data) > 0 {
		if d := body.Data[0]; !d.IsSent && d.DropReason != nil {
			return fmt.Errorf("message dropped: %s: %s", d.DropReason.Code, d.DropReason.Message)
		}
	}
	return nil
}
