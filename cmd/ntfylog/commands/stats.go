package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	Subscriptions    map[string]*SubscriptionStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// SubscriptionStats holds statistics for a single subscription.
type SubscriptionStats struct {
	FirstSeen     time.Time
	LastSeen      time.Time
	Events        int
	Topic         string
	Notifications int
	Duplicates    int
	Reconnects    int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	events, err := log.ReadFile(path, nil)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		Subscriptions:    make(map[string]*SubscriptionStats),
	}
	for _, event := range events {
		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++
		if event.Category == log.CategoryError {
			stats.Errors++
		}

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.SubscriptionID == "" {
			continue
		}
		sub, ok := stats.Subscriptions[event.SubscriptionID]
		if !ok {
			sub = &SubscriptionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Subscriptions[event.SubscriptionID] = sub
		}
		sub.Events++
		if event.Timestamp.After(sub.LastSeen) {
			sub.LastSeen = event.Timestamp
		}
		if event.Topic != "" && sub.Topic == "" {
			sub.Topic = event.Topic
		}
		if n := event.Notification; n != nil {
			if n.Duplicate {
				sub.Duplicates++
			} else {
				sub.Notifications++
			}
		}
		if sc := event.StateChange; sc != nil && sc.NewState == "RECONNECTING" {
			sub.Reconnects++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	if !stats.TimeRange.Start.IsZero() {
		fmt.Fprintf(w, "Time range:   %s .. %s (%s)\n",
			stats.TimeRange.Start.UTC().Format(time.RFC3339),
			stats.TimeRange.End.UTC().Format(time.RFC3339),
			stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "By category:")
	for _, c := range []log.Category{log.CategoryState, log.CategoryNotification, log.CategoryRegistration, log.CategoryError} {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-13s %d\n", c.String(), count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Subscriptions) == 0 {
		return
	}
	ids := make([]string, 0, len(stats.Subscriptions))
	for id := range stats.Subscriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(w, "Subscriptions:")
	for _, id := range ids {
		sub := stats.Subscriptions[id]
		name := shortenID(id)
		if sub.Topic != "" {
			name += " (" + sub.Topic + ")"
		}
		fmt.Fprintf(w, "  %-30s %d events, %d notifications, %d duplicates, %d reconnects\n",
			name, sub.Events, sub.Notifications, sub.Duplicates, sub.Reconnects)
	}
}
