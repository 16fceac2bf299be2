package log

import (
	"errors"
	"io"
	"os"
	"time"
)

// Filter specifies criteria for filtering log events. Empty/nil fields
// match all events for that criterion.
type Filter struct {
	// SubscriptionID filters by exact subscription ID match.
	SubscriptionID string

	// Category filters by event category.
	Category *Category

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time
}

// matches returns true if the event matches all filter criteria.
func (f *Filter) matches(event Event) bool {
	if f.SubscriptionID != "" && event.SubscriptionID != f.SubscriptionID {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Read decodes events from r, returning those that match the filter.
// A nil filter matches everything. Trailing garbage (for example a
// truncated final event after a crash) ends the read without error.
func Read(r io.Reader, filter *Filter) ([]Event, error) {
	decoder := NewDecoder(r)
	var events []Event
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, nil
		}
		if filter == nil || filter.matches(event) {
			events = append(events, event)
		}
	}
}

// ReadFile reads events from a CBOR log file written by FileLogger.
func ReadFile(path string, filter *Filter) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, filter)
}
