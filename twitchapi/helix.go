// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs: user id resolution and chat badge sets (app access token), plus the
// moderation and chat endpoints that require a user token (see ModClient).
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// BadgeVersion is one version of a badge set as Helix returns it.
type BadgeVersion struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ImageURL1x string `json:"image_url_1x"`
	ImageURL2x string `json:"image_url_2x"`
	ImageURL4x string `json:"image_url_4x"`
}

// BadgeSet is a badge type (set_id) with its versions.
type BadgeSet struct {
	SetID    string         `json:"set_id"`
	Versions []BadgeVersion `json:"versions"`
}

// HelixClient provides the read-only Helix methods that work with an app
// access token. Login-to-id lookups are cached for the process lifetime;
// Twitch user ids are stable.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client

	mu      sync.Mutex
	userIDs map[string]string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	login = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(login), "#"))
	if login == "" {
		return "", fmt.Errorf("login empty")
	}

	hc.mu.Lock()
	if id, ok := hc.userIDs[login]; ok {
		hc.mu.Unlock()
		return id, nil
	}
	hc.mu.Unlock()

	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return "", err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.twitch.tv/helix/users", nil)
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("helix users lookup failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user %s not found", login)
	}

	hc.mu.Lock()
	if hc.userIDs == nil {
		hc.userIDs = make(map[string]string)
	}
	hc.userIDs[login] = body.Data[0].ID
	hc.mu.Unlock()
	return body.Data[0].ID, nil
}

// GetGlobalChatBadges fetches the platform-wide badge sets.
func (hc *HelixClient) GetGlobalChatBadges(ctx context.Context) ([]BadgeSet, error) {
	return hc.getBadges(ctx, "https://api.twitch.tv/helix/chat/badges/global", "")
}

// GetChannelChatBadges fetches the badge sets a broadcaster has customized
// (subscriber tiers, bits tiers).
func (hc *HelixClient) GetChannelChatBadges(ctx context.Context, channel string) ([]BadgeSet, error) {
	id, err := hc.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}
	return hc.getBadges(ctx, "https://api.twitch.tv/helix/chat/badges", id)
}

func (hc *HelixClient) getBadges(ctx context.Context, url, broadcasterID string) ([]BadgeSet, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if broadcasterID != "" {
		q := req.URL.Query()
		q.Set("broadcaster_id", broadcasterID)
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("helix badges fetch failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []BadgeSet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
