package log

import "time"

// Event is one engine log event. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SubscriptionID identifies the subscription the event belongs to,
	// if any.
	SubscriptionID string `cbor:"2,keyasint,omitempty"`

	// ConnectionID identifies one connection attempt lifecycle (UUID),
	// so events across reconnects can be told apart.
	ConnectionID string `cbor:"3,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Topic and BaseURL locate the subscription's feed.
	BaseURL string `cbor:"5,keyasint,omitempty"`
	Topic   string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange  *StateChangeEvent  `cbor:"7,keyasint,omitempty"`
	Notification *NotificationEvent `cbor:"8,keyasint,omitempty"`
	Registration *RegistrationEvent `cbor:"9,keyasint,omitempty"`
	Error        *ErrorEventData    `cbor:"10,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a connection state change.
	CategoryState Category = 0
	// CategoryNotification indicates a received notification.
	CategoryNotification Category = 1
	// CategoryRegistration indicates a push-registration outcome.
	CategoryRegistration Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryNotification:
		return "NOTIFICATION"
	case CategoryRegistration:
		return "REGISTRATION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a connection state transition.
type StateChangeEvent struct {
	// OldState and NewState are the state names (CONNECTING, CONNECTED,
	// RECONNECTING).
	OldState string `cbor:"1,keyasint"`
	NewState string `cbor:"2,keyasint"`

	// Attempt is the consecutive failure count, if the transition was
	// caused by a failed attempt.
	Attempt int `cbor:"3,keyasint,omitempty"`

	// Delay is the backoff wait before the next attempt.
	Delay time.Duration `cbor:"4,keyasint,omitempty"`
}

// NotificationEvent captures a received notification.
type NotificationEvent struct {
	// ID is the notification's server-assigned identifier.
	ID string `cbor:"1,keyasint"`

	// Priority is the notification priority (1..5).
	Priority int `cbor:"2,keyasint,omitempty"`

	// Duplicate indicates the notification was dropped by deduplication.
	Duplicate bool `cbor:"3,keyasint,omitempty"`
}

// RegistrationEvent captures a push-registration outcome.
type RegistrationEvent struct {
	AppID          string `cbor:"1,keyasint"`
	ConnectorToken string `cbor:"2,keyasint"`

	// Outcome is one of "endpoint", "failed", "unregistered".
	Outcome string `cbor:"3,keyasint"`

	// Reason is set for failed outcomes.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes what the engine was doing.
	Context string `cbor:"2,keyasint,omitempty"`
}

// StateChange builds a state-change event for a subscription.
func StateChange(subscriptionID, connectionID, oldState, newState string) Event {
	return Event{
		Timestamp:      time.Now(),
		SubscriptionID: subscriptionID,
		ConnectionID:   connectionID,
		Category:       CategoryState,
		StateChange:    &StateChangeEvent{OldState: oldState, NewState: newState},
	}
}

// NotificationReceived builds a notification event for a subscription.
func NotificationReceived(subscriptionID, notificationID string, priority int, duplicate bool) Event {
	return Event{
		Timestamp:      time.Now(),
		SubscriptionID: subscriptionID,
		Category:       CategoryNotification,
		Notification:   &NotificationEvent{ID: notificationID, Priority: priority, Duplicate: duplicate},
	}
}

// RegistrationOutcome builds a registration event.
func RegistrationOutcome(appID, connectorToken, outcome, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		Category:  CategoryRegistration,
		Registration: &RegistrationEvent{
			AppID:          appID,
			ConnectorToken: connectorToken,
			Outcome:        outcome,
			Reason:         reason,
		},
	}
}

// ErrorEvent builds an error event.
func ErrorEvent(subscriptionID, context string, err error) Event {
	return Event{
		Timestamp:      time.Now(),
		SubscriptionID: subscriptionID,
		Category:       CategoryError,
		Error:          &ErrorEventData{Message: err.Error(), Context: context},
	}
}
