// Package notify delivers operator notifications for the sniper bot. Trade
// events are dispatched to every registered sender (Telegram, Discord) and
// filtered by event type so an operator can subscribe to closes and alerts
// without being paged for every partial exit.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// sendTimeout bounds one dispatch across all senders. Callers fire events
// from inside the engine's transition path, so delivery must never hold
// anything up for longer than this.
const sendTimeout = 15 * time.Second

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans a notification out to all senders. Notify forwards only
// events whose type is in the configured allow list; NotifyAll bypasses the
// filter and is reserved for alerts that must always reach the operator.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. events is
// the allow list for Notify; an empty list allows every event type. Event
// names are matched case-insensitively.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to all senders if the event type passes the allow list.
// Delivery is asynchronous; Notify returns before any sender is contacted.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[strings.ToLower(event)] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return
	}

	n.dispatch(ctx, title, message)
}

// NotifyAll delivers to all senders regardless of event type. Delivery is
// asynchronous.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) {
	n.dispatch(ctx, title, message)
}

// dispatch sends to every sender on a background goroutine so a slow or
// down channel never blocks the caller; events fire from inside the
// engine's transition path and the coordinator's submit path. The sends
// detach from the caller's context but stay bounded by sendTimeout, and
// failures are logged per sender.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	if len(n.senders) == 0 {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	go func() {
		defer cancel()
		for _, s := range n.senders {
			if err := s.Send(sendCtx, title, message); err != nil {
				n.logger.Error("sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				continue
			}
			n.logger.Debug("notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}()
}
