package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/store"
)

// Store is the persistence surface the engine needs. *store.Store
// satisfies it.
type Store interface {
	GetSubscription(id string) (*model.Subscription, error)
	AddNotification(n *model.Notification) (bool, error)
	IncrementCounters(subscriptionID string, total, unseen int) error
}

// Decision is the dispatch outcome for one ingested notification. The
// engine computes it but performs no sink I/O; the caller is responsible
// for acting on it.
type Decision struct {
	// Subscription is the owning subscription, nil if it no longer
	// exists.
	Subscription *model.Subscription

	// Notification is the candidate as persisted.
	Notification model.Notification

	// Persisted indicates the notification was stored for the first
	// time. False means drop: either Duplicate is set or the
	// subscription is gone.
	Persisted bool

	// Duplicate indicates a notification with this ID already existed
	// for the subscription.
	Duplicate bool

	// NotifyLocal indicates the notification should be displayed to the
	// user: first delivery, subscription not muted, priority at or
	// above the subscription's minimum.
	NotifyLocal bool

	// Broadcast indicates the notification should be forwarded to the
	// subscription's registered push-delivery app.
	Broadcast bool

	// Muted mirrors the mute check for broadcast receivers, which get
	// the notification either way and decide display behavior
	// themselves.
	Muted bool
}

// Engine is the single ingestion entry point shared by the stream path
// and the push-delivery path. Both converge here so deduplication is
// independent of how a notification arrived. The engine holds no state
// of its own; the persistence key (subscription ID, notification ID) is
// the sole dedup authority, which keeps concurrent ingestion for the
// same notification safe without process-wide locking.
type Engine struct {
	store  Store
	logger log.Logger
	now    func() time.Time
}

// NewEngine creates an ingestion engine. A nil logger discards events.
func NewEngine(st Store, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Engine{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Ingest persists a candidate notification and computes its dispatch
// decision.
//
// A missing subscription and a duplicate notification are both expected
// outcomes, reported through the Decision with a nil error. Only
// persistence failures surface as errors; those are retryable and must
// not bring down the calling stream.
func (e *Engine) Ingest(n model.Notification) (Decision, error) {
	sub, err := e.store.GetSubscription(n.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Subscription removed while the notification was in
			// flight. A race outcome, not an error.
			return Decision{Notification: n}, nil
		}
		return Decision{}, fmt.Errorf("look up subscription: %w", err)
	}

	added, err := e.store.AddNotification(&n)
	if err != nil {
		return Decision{}, fmt.Errorf("persist notification: %w", err)
	}
	if !added {
		e.logger.Log(log.NotificationReceived(sub.ID, n.ID, n.Priority, true))
		return Decision{Subscription: sub, Notification: n, Duplicate: true}, nil
	}

	muted := sub.Muted(e.now())
	decision := Decision{
		Subscription: sub,
		Notification: n,
		Persisted:    true,
		NotifyLocal:  !muted && n.Priority >= sub.EffectiveMinPriority(),
		Broadcast:    sub.Registered(),
		Muted:        muted,
	}

	unseen := 0
	if decision.NotifyLocal {
		unseen = 1
	}
	if err := e.store.IncrementCounters(sub.ID, 1, unseen); err != nil {
		// The notification is already persisted and deduplicated;
		// stale counters are not worth failing the ingestion over.
		e.logger.Log(log.ErrorEvent(sub.ID, "update counters", err))
	}

	e.logger.Log(log.NotificationReceived(sub.ID, n.ID, n.Priority, false))
	return decision, nil
}
