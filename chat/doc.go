// Package chat is the connection manager: it owns one Twitch IRC connection
// per joined channel, normalizes the wire callbacks into tagged Events for
// the ingestion pipeline, and exposes the legacy slash-command moderation
// surface used as a fallback when Helix is unavailable.
//
// Connection failures never propagate as errors into the annotator path;
// they surface as disconnected/reconnecting events. The IRC library's own
// backoff handles reconnection, and joined channels are re-subscribed after
// every full reconnect cycle.
package chat
