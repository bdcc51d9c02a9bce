// Package notify delivers operator alerts for risk events: circuit breaker
// trips, trading pauses and unhealthy markets. Alerts fan out to every
// registered sender (Telegram, Discord) and can be filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantish/rangemaker/internal/risk"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// titles maps risk event names to human-readable alert titles. Unknown events
// fall back to the raw event name.
var titles = map[string]string{
	"circuit_breaker_tripped": "Circuit Breaker Tripped",
	"trading_paused":          "Trading Paused",
	"trading_resumed":         "Trading Resumed",
	"market_unhealthy":        "Market Unhealthy",
}

// Notifier dispatches alerts to one or more Senders. It maintains a set of
// allowed event types; Alert drops events outside the set. An empty set
// allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders, filtered
// to the listed event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Alert delivers a risk event to all senders if the event type is allowed.
// Sender failures are logged; alerting is best-effort and never blocks the
// risk path on a broken webhook.
func (n *Notifier) Alert(ctx context.Context, event, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notify: event filtered out",
			slog.String("event", event),
		)
		return
	}

	title, ok := titles[event]
	if !ok {
		title = event
	}
	if err := n.dispatch(ctx, title, message); err != nil {
		n.logger.ErrorContext(ctx, "notify: alert delivery incomplete",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch sends to every sender, collecting failures so a single broken
// sender does not stop delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Compile-time interface check.
var _ risk.Notifier = (*Notifier)(nil)
