package model

import "time"

// Notification priorities. Servers may omit the priority, in which case
// PriorityDefault applies.
const (
	PriorityMin     = 1
	PriorityLow     = 2
	PriorityDefault = 3
	PriorityHigh    = 4
	PriorityMax     = 5
)

// MinPriorityAny disables the per-subscription minimum-priority filter.
const MinPriorityAny = 0

// Subscription is a client-side record of interest in one topic on one
// server. It owns a connection (managed by the connection supervisor), a
// status, and a notification history.
type Subscription struct {
	// ID is an opaque, stable identifier, unique for the process lifetime.
	ID string

	// BaseURL is the server base URL, e.g. "https://ntfy.sh".
	BaseURL string

	// Topic is the topic name on the server.
	Topic string

	// Instant indicates that a persistent stream connection should be
	// kept open for this subscription.
	Instant bool

	// MutedUntil mutes local notification display until the given epoch
	// seconds. Zero means unmuted.
	MutedUntil int64

	// MinPriority is the minimum priority a notification must have to be
	// displayed locally. MinPriorityAny (zero) accepts every priority.
	MinPriority int

	// LastNotificationID is the cursor used to resume a stream or poll
	// without re-fetching already-seen notifications.
	LastNotificationID string

	// UpAppID and UpConnectorToken identify an external app registered
	// for push delivery on this subscription. Both are empty for plain
	// subscriptions.
	UpAppID          string
	UpConnectorToken string

	// DisplayName is an optional user-facing name for the subscription.
	DisplayName string

	// TotalCount is the number of notifications ever persisted for this
	// subscription. NewCount is the number not yet seen by the user.
	TotalCount int
	NewCount   int

	// LastActive is the epoch-seconds timestamp of the last activity.
	LastActive int64
}

// Muted reports whether local display is muted at the given time.
func (s *Subscription) Muted(now time.Time) bool {
	return s.MutedUntil > now.Unix()
}

// EffectiveMinPriority returns the priority a notification must meet to be
// displayed locally.
func (s *Subscription) EffectiveMinPriority() int {
	if s.MinPriority == MinPriorityAny {
		return PriorityMin
	}
	return s.MinPriority
}

// Registered reports whether an external app is registered for push
// delivery on this subscription.
func (s *Subscription) Registered() bool {
	return s.UpAppID != "" && s.UpConnectorToken != ""
}

// DisplayTopic returns the user-facing name of the subscription: the
// display name if set, the topic otherwise.
func (s *Subscription) DisplayTopic() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Topic
}

// Notification is one delivered message. The ID is assigned by the origin
// server and is stable across delivery paths; it is unique within a
// subscription and is the sole deduplication key.
type Notification struct {
	ID             string
	SubscriptionID string

	// Timestamp is the server-assigned epoch-seconds delivery time.
	Timestamp int64

	Title    string
	Message  string
	Encoding string
	Priority int

	// Tags is the comma-joined tag list.
	Tags string

	// Click is an optional URL opened when the notification is tapped.
	Click string

	// Icon is an optional icon URL.
	Icon string

	// Actions and Attachment are rich fields, opaque to the engine core.
	Actions    []Action
	Attachment *Attachment

	// Deleted is the tombstone flag. Tombstoned notifications stay in the
	// store so replayed deliveries are still recognized as duplicates.
	Deleted bool
}

// Attachment describes a file attached to a notification.
type Attachment struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Expires int64  `json:"expires,omitempty"`
	URL     string `json:"url"`
}

// Action describes a user action button attached to a notification.
type Action struct {
	ID      string            `json:"id"`
	Action  string            `json:"action"`
	Label   string            `json:"label"`
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Clear   bool              `json:"clear,omitempty"`
}
