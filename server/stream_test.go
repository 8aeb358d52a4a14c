package server

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/moddeck/store"
)

// readSSEEvent reads one complete SSE event (event + data lines) from the
// stream, skipping heartbeat comments.
func readSSEEvent(t *testing.T, r *bufio.Reader, timeout time.Duration) (kind, data string) {
	t.Helper()
	type lineResult struct {
		line string
		err  error
	}
	lines := make(chan lineResult, 16)
	go func() {
		for {
			l, err := r.ReadString('\n')
			lines <- lineResult{l, err}
			if err != nil {
				return
			}
		}
	}()
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for SSE event")
		case res := <-lines:
			if res.err != nil {
				t.Fatalf("read stream: %v", res.err)
			}
			line := strings.TrimRight(res.line, "\n")
			switch {
			case strings.HasPrefix(line, ": "):
				// heartbeat
			case strings.HasPrefix(line, "event: "):
				kind = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
				return kind, data
			}
		}
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddChannel("c")

	resp := env.do(t, http.MethodGet, "/channels/c/stream", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)

	// Give the subscriber a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	m := &store.Message{ID: "m1", Channel: "c", Username: "alicia", Text: "hi"}
	env.store.Append(m)
	env.hub.Publish(store.Event{Kind: store.EventMessageAppended, Channel: "c", Message: m})

	kind, data := readSSEEvent(t, reader, 5*time.Second)
	if kind != string(store.EventMessageAppended) {
		t.Errorf("event kind = %q, want message", kind)
	}
	if !strings.Contains(data, `"m1"`) {
		t.Errorf("event data = %q, want it to carry the message id", data)
	}
}

func TestStreamScopedToChannel(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddChannel("c")
	env.store.AddChannel("other")

	resp := env.do(t, http.MethodGet, "/channels/c/stream", "")
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	time.Sleep(50 * time.Millisecond)

	// An event for another channel must not arrive; follow it with one for
	// the subscribed channel and assert that is the first thing seen.
	env.hub.Publish(store.Event{Kind: store.EventStateChanged, Channel: "other", State: store.StateConnected})
	env.hub.Publish(store.Event{Kind: store.EventStateChanged, Channel: "c", State: store.StateConnected})

	kind, data := readSSEEvent(t, reader, 5*time.Second)
	if kind != string(store.EventStateChanged) || !strings.Contains(data, `"c"`) {
		t.Errorf("first event = %s %q, want state change for channel c", kind, data)
	}
	if strings.Contains(data, `"other"`) {
		t.Errorf("received event for unsubscribed channel: %q", data)
	}
}
