package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	dbpkg "github.com/onnwee/moddeck/db"
	"github.com/onnwee/moddeck/twitchapi"
)

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to
// Twitch. The resulting user token carries the moderator scopes the Helix
// moderation path requires.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.Cfg.TwitchClientID == "" || h.Cfg.TwitchRedirectURI == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	authURL, err := twitchapi.BuildAuthorizeURL(h.Cfg.TwitchClientID, h.Cfg.TwitchRedirectURI, h.Cfg.TwitchScopes, st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback handles the OAuth callback from Twitch and stores
// the user token (encrypted when ENCRYPTION_KEY is set).
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.takeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	if h.DB == nil {
		http.Error(w, "no database configured", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	res, err := twitchapi.ExchangeAuthCode(ctx, h.Cfg.TwitchClientID, h.Cfg.TwitchClientSecret, code, h.Cfg.TwitchRedirectURI)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := dbpkg.UpsertOAuthToken(ctx, h.DB, "twitch", res.AccessToken, res.RefreshToken,
		twitchapi.ComputeExpiry(res.ExpiresIn), strings.Join(res.Scope, " ")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scopes": res.Scope, "expires_in": res.ExpiresIn})
}
