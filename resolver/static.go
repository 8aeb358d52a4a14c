package resolver

// staticBadges is the last-resort badge table, keyed by set id alone. The
// CDN ids for these platform-wide badges have been stable for years; the
// table keeps role badges visible before the first Helix refresh completes
// (or when the deck runs without API credentials).
var staticBadges = map[string]badgeInfo{
	"broadcaster": {Title: "Broadcaster", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/5527c58c-fb7d-422d-b71b-f309dcb85cc1/2"},
	"moderator":   {Title: "Moderator", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/3267646d-33f0-4b17-b3df-f923a41db1d0/2"},
	"vip":         {Title: "VIP", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/b817aba4-fad8-49e2-b88a-7cc744dfa6ec/2"},
	"subscriber":  {Title: "Subscriber", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/5d9f2208-5dd8-11e7-8513-2ff4adfae661/2"},
	"founder":     {Title: "Founder", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/511b78a9-ab37-472f-9569-457753bbe7d3/2"},
	"partner":     {Title: "Verified", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/d12a2e27-16f6-41d0-ab77-b780518f00a3/2"},
	"staff":       {Title: "Twitch Staff", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/d97c37bd-a6f5-4c38-8f57-4e4bef88af34/2"},
	"turbo":       {Title: "Turbo", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/bd444ec6-8f34-4bf9-91f4-af1e3428d80f/2"},
	"premium":     {Title: "Prime Gaming", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/bbbe0db0-a598-423e-86d0-f9fb98ca1933/2"},
	"glhf-pledge": {Title: "GLHF Pledge", ImageURL: "https://static-cdn.jtvnw.net/badges/v1/3158e758-3cb4-43c5-94b3-7639810451c5/2"},
}
