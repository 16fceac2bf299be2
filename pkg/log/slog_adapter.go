package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes engine events to an slog.Logger. Useful for
// development when you want to see engine events on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter that writes to the given
// slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.SubscriptionID != "" {
		attrs = append(attrs, slog.String("subscription_id", event.SubscriptionID))
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.BaseURL != "" {
		attrs = append(attrs, slog.String("base_url", event.BaseURL))
	}
	if event.Topic != "" {
		attrs = append(attrs, slog.String("topic", event.Topic))
	}

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", event.StateChange.Attempt))
		}
		if event.StateChange.Delay > 0 {
			attrs = append(attrs, slog.Duration("delay", event.StateChange.Delay))
		}
	case event.Notification != nil:
		attrs = append(attrs,
			slog.String("notification_id", event.Notification.ID),
			slog.Int("priority", event.Notification.Priority),
			slog.Bool("duplicate", event.Notification.Duplicate),
		)
	case event.Registration != nil:
		attrs = append(attrs,
			slog.String("app_id", event.Registration.AppID),
			slog.String("connector_token", event.Registration.ConnectorToken),
			slog.String("outcome", event.Registration.Outcome),
		)
		if event.Registration.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Registration.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "engine", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
