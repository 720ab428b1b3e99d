// Package notify delivers operator notifications for ledger events (market
// resolutions, sweep results) over one or more channels. Delivery is fire and
// forget: failures are logged, never propagated to the engine that raised the
// event.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs (e.g. "discord").
	Name() string
}

// Notifier fans a notification out to every registered Sender, filtered by
// event type.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// named in the events list are forwarded; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to every sender when the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return
	}
	n.dispatch(ctx, title, message)
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}
