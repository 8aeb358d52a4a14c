package annotate

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/moddeck/chat"
	"github.com/onnwee/moddeck/resolver"
	"github.com/onnwee/moddeck/store"
	"github.com/onnwee/moddeck/telemetry"
)

const refreshTimeout = 15 * time.Second

// Pipeline routes normalized connection events: chat messages through the
// annotator, lifecycle events into channel state, and inbound moderation
// notices onto the matching stored messages. Every effect is published on
// the hub for presentation subscribers.
type Pipeline struct {
	Annotator *Annotator
	Store     *store.Store
	Resolver  *resolver.Resolver
	Hub       *store.Hub
}

// Handle is the chat.Handler entry point. It is called from connection
// reader goroutines; the store and annotator do their own locking.
func (p *Pipeline) Handle(ev chat.Event) {
	switch ev.Kind {
	case chat.EventMessage:
		var m *store.Message
		telemetry.TimeFunc(telemetry.AnnotateDuration, func() {
			m = p.Annotator.Annotate(ev.Message)
		})
		if m == nil {
			telemetry.IncDeduped()
			return
		}
		telemetry.IncIngested()
		p.Hub.Publish(store.Event{Kind: store.EventMessageAppended, Channel: m.Channel, Message: m})

	case chat.EventConnected:
		p.Store.SetState(ev.Channel, store.StateConnected)
		p.updateConnectedGauge()
		p.Hub.Publish(store.Event{Kind: store.EventStateChanged, Channel: ev.Channel, State: store.StateConnected})
		// Badge/emote tables refresh off the reader goroutine; a miss in the
		// meantime renders as plain text, never blocks.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			err := p.Resolver.RefreshChannel(ctx, ev.Channel)
			telemetry.IncResolverRefresh("channel", err == nil)
		}()

	case chat.EventDisconnected:
		p.Store.SetState(ev.Channel, store.StateDisconnected)
		p.updateConnectedGauge()
		p.Hub.Publish(store.Event{Kind: store.EventStateChanged, Channel: ev.Channel, State: store.StateDisconnected})

	case chat.EventReconnecting:
		p.Store.SetState(ev.Channel, store.StateConnecting)
		p.updateConnectedGauge()
		p.Hub.Publish(store.Event{Kind: store.EventStateChanged, Channel: ev.Channel, State: store.StateConnecting})

	case chat.EventNotice:
		if ev.Notice != nil {
			slog.Info("chat notice",
				slog.String("channel", ev.Channel),
				slog.String("msg_id", ev.Notice.MsgID),
				slog.String("text", ev.Notice.Text))
		}

	case chat.EventMessageDeleted:
		if ev.TargetMsgID != "" && p.Store.MarkDeleted(ev.Channel, ev.TargetMsgID) {
			p.Hub.Publish(store.Event{Kind: store.EventVisibilityChanged, Channel: ev.Channel})
		}

	case chat.EventUserTimedOut:
		if p.Store.MarkUserTimedOut(ev.Channel, ev.TargetUser) > 0 {
			p.Hub.Publish(store.Event{Kind: store.EventVisibilityChanged, Channel: ev.Channel})
		}

	case chat.EventUserBanned:
		if p.Store.MarkUserBanned(ev.Channel, ev.TargetUser) > 0 {
			p.Hub.Publish(store.Event{Kind: store.EventVisibilityChanged, Channel: ev.Channel})
		}

	case chat.EventUserUnbanned:
		if p.Store.MarkUserUnbanned(ev.Channel, ev.TargetUser) > 0 {
			p.Hub.Publish(store.Event{Kind: store.EventVisibilityChanged, Channel: ev.Channel})
		}
	}
}

func (p *Pipeline) updateConnectedGauge() {
	n := 0
	for _, s := range p.Store.Summaries() {
		if s.State == store.StateConnected {
			n++
		}
	}
	telemetry.SetConnectedChannels(n)
}
