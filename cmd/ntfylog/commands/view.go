// Package commands implements the ntfylog CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
)

// ParseCategory maps a command-line category name to a log category.
func ParseCategory(name string) (*log.Category, error) {
	var c log.Category
	switch strings.ToLower(name) {
	case "state":
		c = log.CategoryState
	case "notification":
		c = log.CategoryNotification
	case "registration":
		c = log.CategoryRegistration
	case "error":
		c = log.CategoryError
	default:
		return nil, fmt.Errorf("unknown category: %s (want state, notification, registration or error)", name)
	}
	return &c, nil
}

// RunView prints events matching the filter in human-readable form.
func RunView(path string, filter *log.Filter, w io.Writer) error {
	events, err := log.ReadFile(path, filter)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	for _, event := range events {
		formatEvent(w, event)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")
	sub := shortenID(event.SubscriptionID)
	if sub == "" {
		sub = "-"
	}
	fmt.Fprintf(w, "%s [sub:%s] %s\n", ts, sub, event.Category)

	switch {
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  %s -> %s", sc.OldState, sc.NewState)
		if sc.Attempt > 0 {
			fmt.Fprintf(w, "  (attempt %d, next retry in %s)", sc.Attempt, sc.Delay)
		}
		fmt.Fprintln(w)
		if event.Topic != "" {
			fmt.Fprintf(w, "  Feed: %s/%s\n", event.BaseURL, event.Topic)
		}
	case event.Notification != nil:
		n := event.Notification
		fmt.Fprintf(w, "  ID: %s  Priority: %d", n.ID, n.Priority)
		if n.Duplicate {
			fmt.Fprint(w, "  (duplicate, dropped)")
		}
		fmt.Fprintln(w)
	case event.Registration != nil:
		r := event.Registration
		fmt.Fprintf(w, "  App: %s  Token: %s  Outcome: %s", r.AppID, shortenID(r.ConnectorToken), r.Outcome)
		if r.Reason != "" {
			fmt.Fprintf(w, " (%s)", r.Reason)
		}
		fmt.Fprintln(w)
	case event.Error != nil:
		fmt.Fprintf(w, "  %s: %s\n", event.Error.Context, event.Error.Message)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of an identifier.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
