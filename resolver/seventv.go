package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultSevenTVBaseURL = "https://7tv.io"

type sevenTVFile struct {
	Name string `json:"name"`
}

type sevenTVHost struct {
	URL   string        `json:"url"`
	Files []sevenTVFile `json:"files"`
}

type sevenTVEmote struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data struct {
		Host sevenTVHost `json:"host"`
	} `json:"data"`
}

type sevenTVEmoteSet struct {
	ID     string         `json:"id"`
	Emotes []sevenTVEmote `json:"emotes"`
}

// sevenTVEmoteURL picks the image variant: 2x webp preferred, then 1x, then
// whatever the host lists first.
func sevenTVEmoteURL(host sevenTVHost) string {
	if host.URL == "" || len(host.Files) == 0 {
		return ""
	}
	pick := ""
	for _, want := range []string{"2x.webp", "1x.webp"} {
		for _, f := range host.Files {
			if f.Name == want {
				pick = f.Name
				break
			}
		}
		if pick != "" {
			break
		}
	}
	if pick == "" {
		pick = host.Files[0].Name
	}
	base := host.URL
	if strings.HasPrefix(base, "//") {
		base = "https:" + base
	}
	return base + "/" + pick
}

func (r *Resolver) sevenTVBase() string {
	if r.SevenTVBaseURL != "" {
		return r.SevenTVBaseURL
	}
	return defaultSevenTVBaseURL
}

func (r *Resolver) getSevenTV(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.sevenTVBase()+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("7tv fetch %s failed: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func indexSevenTVEmotes(emotes []sevenTVEmote) map[string]emoteInfo {
	out := make(map[string]emoteInfo, len(emotes))
	for _, e := range emotes {
		url := sevenTVEmoteURL(e.Data.Host)
		if url == "" {
			continue
		}
		out[e.Name] = emoteInfo{ID: e.ID, Name: e.Name, ImageURL: url}
	}
	return out
}

func (r *Resolver) fetchGlobalEmotes(ctx context.Context) (map[string]emoteInfo, error) {
	var set sevenTVEmoteSet
	if err := r.getSevenTV(ctx, "/v3/emote-sets/global", &set); err != nil {
		return nil, err
	}
	return indexSevenTVEmotes(set.Emotes), nil
}

// fetchChannelEmotes resolves the channel login to a Twitch user id and
// fetches the 7TV connection for it. A channel with no 7TV presence is not
// an error; it just has an empty table.
func (r *Resolver) fetchChannelEmotes(ctx context.Context, channel string) (map[string]emoteInfo, error) {
	id, err := r.Source.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}
	var user struct {
		EmoteSet *sevenTVEmoteSet `json:"emote_set"`
	}
	if err := r.getSevenTV(ctx, "/v3/users/twitch/"+id, &user); err != nil {
		if strings.Contains(err.Error(), "404") {
			return map[string]emoteInfo{}, nil
		}
		return nil, err
	}
	if user.EmoteSet == nil {
		return map[string]emoteInfo{}, nil
	}
	return indexSevenTVEmotes(user.EmoteSet.Emotes), nil
}
