// Package resolver maintains the badge and emote lookup tables used to
// annotate inbound chat messages. Badge lookups fall through three tiers:
// channel-specific sets, then global sets, then a small static table so the
// deck still renders recognizable badges when the Helix fetch is
// unavailable. Emote tables combine platform-native emotes (resolved by
// offset at render time) with third-party 7TV sets fetched per channel.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/onnwee/moddeck/store"
	"github.com/onnwee/moddeck/twitchapi"
)

// BadgeSource is the subset of the Helix client the resolver needs. Nil is
// allowed; the resolver then serves static fallbacks and global 7TV emotes
// only.
type BadgeSource interface {
	GetGlobalChatBadges(ctx context.Context) ([]twitchapi.BadgeSet, error)
	GetChannelChatBadges(ctx context.Context, channel string) ([]twitchapi.BadgeSet, error)
	GetUserID(ctx context.Context, login string) (string, error)
}

type badgeInfo struct {
	Title    string
	ImageURL string
}

type emoteInfo struct {
	ID       string
	Name     string
	ImageURL string
}

// Resolver is safe for concurrent use: lookups take a read lock, refreshes
// swap whole tables under the write lock.
type Resolver struct {
	Source         BadgeSource
	HTTPClient     *http.Client
	SevenTVBaseURL string

	mu            sync.RWMutex
	globalBadges  map[string]map[string]badgeInfo
	channelBadges map[string]map[string]map[string]badgeInfo
	globalEmotes  map[string]emoteInfo
	channelEmotes map[string]map[string]emoteInfo
}

func (r *Resolver) http() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

// RefreshGlobal fetches the platform-wide badge sets and the global 7TV
// emote set. Each side that succeeds is applied even when the other fails.
func (r *Resolver) RefreshGlobal(ctx context.Context) error {
	var errs []error
	if r.Source != nil {
		sets, err := r.Source.GetGlobalChatBadges(ctx)
		if err != nil {
			slog.Warn("global badge refresh failed", slog.Any("err", err))
			errs = append(errs, err)
		} else {
			r.mu.Lock()
			r.globalBadges = indexBadgeSets(sets)
			r.mu.Unlock()
		}
	}
	emotes, err := r.fetchGlobalEmotes(ctx)
	if err != nil {
		slog.Warn("global 7tv refresh failed", slog.Any("err", err))
		errs = append(errs, err)
	} else {
		r.mu.Lock()
		r.globalEmotes = emotes
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

// RefreshChannel fetches a channel's badge sets and its 7TV emote set.
func (r *Resolver) RefreshChannel(ctx context.Context, channel string) error {
	if r.Source == nil {
		return nil
	}
	var errs []error
	sets, err := r.Source.GetChannelChatBadges(ctx, channel)
	if err != nil {
		slog.Warn("channel badge refresh failed", slog.String("channel", channel), slog.Any("err", err))
		errs = append(errs, err)
	} else {
		r.mu.Lock()
		if r.channelBadges == nil {
			r.channelBadges = make(map[string]map[string]map[string]badgeInfo)
		}
		r.channelBadges[channel] = indexBadgeSets(sets)
		r.mu.Unlock()
	}
	emotes, err := r.fetchChannelEmotes(ctx, channel)
	if err != nil {
		slog.Warn("channel 7tv refresh failed", slog.String("channel", channel), slog.Any("err", err))
		errs = append(errs, err)
	} else {
		r.mu.Lock()
		if r.channelEmotes == nil {
			r.channelEmotes = make(map[string]map[string]emoteInfo)
		}
		r.channelEmotes[channel] = emotes
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

// ForgetChannel drops a channel's cached tables after the deck leaves it.
func (r *Resolver) ForgetChannel(channel string) {
	r.mu.Lock()
	delete(r.channelBadges, channel)
	delete(r.channelEmotes, channel)
	r.mu.Unlock()
}

func indexBadgeSets(sets []twitchapi.BadgeSet) map[string]map[string]badgeInfo {
	out := make(map[string]map[string]badgeInfo, len(sets))
	for _, s := range sets {
		versions := make(map[string]badgeInfo, len(s.Versions))
		for _, v := range s.Versions {
			url := v.ImageURL2x
			if url == "" {
				url = v.ImageURL1x
			}
			versions[v.ID] = badgeInfo{Title: v.Title, ImageURL: url}
		}
		out[s.SetID] = versions
	}
	return out
}

// ResolveBadge looks up one badge occurrence: channel tables first, then
// global, then the static fallback (which matches on set id alone).
func (r *Resolver) ResolveBadge(channel, set, version string) (store.BadgeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if versions, ok := r.channelBadges[channel][set]; ok {
		if info, ok := versions[version]; ok {
			return store.BadgeRef{Type: set, Version: version, Title: info.Title, ImageURL: info.ImageURL}, true
		}
	}
	if info, ok := r.globalBadges[set][version]; ok {
		return store.BadgeRef{Type: set, Version: version, Title: info.Title, ImageURL: info.ImageURL}, true
	}
	if info, ok := staticBadges[set]; ok {
		return store.BadgeRef{Type: set, Version: version, Title: info.Title, ImageURL: info.ImageURL}, true
	}
	return store.BadgeRef{}, false
}

// badgeOrder fixes the display order for the well-known badge types; any
// others follow alphabetically.
var badgeOrder = []string{
	"broadcaster", "staff", "admin", "global_mod", "moderator",
	"vip", "partner", "founder", "subscriber",
}

// Badges converts the raw platform badge map (type -> version number) into
// resolved, display-ordered badge refs. Unresolvable badges are dropped.
func (r *Resolver) Badges(channel string, raw map[string]int) []store.BadgeRef {
	if len(raw) == 0 {
		return nil
	}
	rank := func(set string) int {
		for i, s := range badgeOrder {
			if s == set {
				return i
			}
		}
		return len(badgeOrder)
	}
	sets := make([]string, 0, len(raw))
	for set := range raw {
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool {
		ri, rj := rank(sets[i]), rank(sets[j])
		if ri != rj {
			return ri < rj
		}
		return sets[i] < sets[j]
	})
	out := make([]store.BadgeRef, 0, len(sets))
	for _, set := range sets {
		if ref, ok := r.ResolveBadge(channel, set, strconv.Itoa(raw[set])); ok {
			out = append(out, ref)
		}
	}
	return out
}

// ResolveEmote looks a token up in the channel's 7TV set, then the global
// set.
func (r *Resolver) ResolveEmote(channel, token string) (store.EmoteRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveEmoteLocked(channel, token)
}

func (r *Resolver) resolveEmoteLocked(channel, token string) (store.EmoteRef, bool) {
	if info, ok := r.channelEmotes[channel][token]; ok {
		return store.EmoteRef{ID: info.ID, Name: info.Name, ImageURL: info.ImageURL, Source: "7tv"}, true
	}
	if info, ok := r.globalEmotes[token]; ok {
		return store.EmoteRef{ID: info.ID, Name: info.Name, ImageURL: info.ImageURL, Source: "7tv"}, true
	}
	return store.EmoteRef{}, false
}
