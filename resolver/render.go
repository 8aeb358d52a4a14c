package resolver

import (
	"sort"
	"strings"
	"unicode"

	"github.com/onnwee/moddeck/store"
)

// NativeEmote is one platform-native emote occurrence by inclusive rune
// offsets into the message text, as the chat tags report them.
type NativeEmote struct {
	ID    string
	Name  string
	Start int
	End   int
}

func nativeEmoteURL(id string) string {
	return "https://static-cdn.jtvnw.net/emoticons/v2/" + id + "/default/dark/2.0"
}

// Render splits message text into ordered fragments: plain text runs and
// emote refs. Platform-native emotes are substituted first by their rune
// offsets; the 7TV pass then runs over the remaining text-only parts, token
// by token, so a substitution never lands inside an already-substituted
// span. Malformed or overlapping offsets are skipped, leaving that stretch
// as plain text.
func (r *Resolver) Render(channel, text string, native []NativeEmote) []store.Fragment {
	runes := []rune(text)
	spans := make([]NativeEmote, len(native))
	copy(spans, native)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	r.mu.RLock()
	defer r.mu.RUnlock()

	var frags []store.Fragment
	prev := 0
	for _, e := range spans {
		if e.Start < prev || e.End < e.Start || e.End >= len(runes) {
			continue
		}
		if e.Start > prev {
			frags = r.appendTextFragments(frags, channel, string(runes[prev:e.Start]))
		}
		frags = append(frags, store.Fragment{
			Text:  e.Name,
			Emote: &store.EmoteRef{ID: e.ID, Name: e.Name, ImageURL: nativeEmoteURL(e.ID), Source: "twitch"},
		})
		prev = e.End + 1
	}
	if prev < len(runes) {
		frags = r.appendTextFragments(frags, channel, string(runes[prev:]))
	}
	return frags
}

// appendTextFragments walks one text-only stretch token by token, replacing
// tokens that name a known 7TV emote. Whitespace and unmatched tokens
// accumulate into a single text fragment between emote hits.
func (r *Resolver) appendTextFragments(frags []store.Fragment, channel, text string) []store.Fragment {
	rs := []rune(text)
	var pending strings.Builder
	i := 0
	for i < len(rs) {
		j := i
		if unicode.IsSpace(rs[i]) {
			for j < len(rs) && unicode.IsSpace(rs[j]) {
				j++
			}
			pending.WriteString(string(rs[i:j]))
		} else {
			for j < len(rs) && !unicode.IsSpace(rs[j]) {
				j++
			}
			word := string(rs[i:j])
			if ref, ok := r.resolveEmoteLocked(channel, word); ok {
				if pending.Len() > 0 {
					frags = append(frags, store.Fragment{Text: pending.String()})
					pending.Reset()
				}
				emote := ref
				frags = append(frags, store.Fragment{Text: word, Emote: &emote})
			} else {
				pending.WriteString(word)
			}
		}
		i = j
	}
	if pending.Len() > 0 {
		frags = append(frags, store.Fragment{Text: pending.String()})
	}
	return frags
}
