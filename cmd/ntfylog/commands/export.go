package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
)

// exportedEvent is the JSON shape of one exported event.
type exportedEvent struct {
	Timestamp      time.Time              `json:"timestamp"`
	Category       string                 `json:"category"`
	SubscriptionID string                 `json:"subscription_id,omitempty"`
	ConnectionID   string                 `json:"connection_id,omitempty"`
	BaseURL        string                 `json:"base_url,omitempty"`
	Topic          string                 `json:"topic,omitempty"`
	StateChange    *log.StateChangeEvent  `json:"state_change,omitempty"`
	Notification   *log.NotificationEvent `json:"notification,omitempty"`
	Registration   *log.RegistrationEvent `json:"registration,omitempty"`
	Error          *log.ErrorEventData    `json:"error,omitempty"`
}

// RunExport writes events matching the filter as JSONL or CSV.
func RunExport(path, format string, filter *log.Filter, w io.Writer) error {
	events, err := log.ReadFile(path, filter)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	switch format {
	case "jsonl":
		return exportJSONL(events, w)
	case "csv":
		return exportCSV(events, w)
	default:
		return fmt.Errorf("unknown format: %s (want jsonl or csv)", format)
	}
}

func exportJSONL(events []log.Event, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, event := range events {
		e := exportedEvent{
			Timestamp:      event.Timestamp,
			Category:       event.Category.String(),
			SubscriptionID: event.SubscriptionID,
			ConnectionID:   event.ConnectionID,
			BaseURL:        event.BaseURL,
			Topic:          event.Topic,
			StateChange:    event.StateChange,
			Notification:   event.Notification,
			Registration:   event.Registration,
			Error:          event.Error,
		}
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func exportCSV(events []log.Event, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "category", "subscription_id", "topic", "detail"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, event := range events {
		record := []string{
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.Category.String(),
			event.SubscriptionID,
			event.Topic,
			csvDetail(event),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// csvDetail flattens the type-specific payload into one column.
func csvDetail(event log.Event) string {
	switch {
	case event.StateChange != nil:
		return event.StateChange.OldState + "->" + event.StateChange.NewState
	case event.Notification != nil:
		detail := event.Notification.ID + " p" + strconv.Itoa(event.Notification.Priority)
		if event.Notification.Duplicate {
			detail += " duplicate"
		}
		return detail
	case event.Registration != nil:
		detail := event.Registration.AppID + " " + event.Registration.Outcome
		if event.Registration.Reason != "" {
			detail += " " + event.Registration.Reason
		}
		return detail
	case event.Error != nil:
		return event.Error.Context + ": " + event.Error.Message
	}
	return ""
}
