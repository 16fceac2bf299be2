package ingest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewEngine(st, nil), st
}

func addTestSubscription(t *testing.T, st *store.Store, sub *model.Subscription) {
	t.Helper()
	if sub.BaseURL == "" {
		sub.BaseURL = "https://example.org"
	}
	if sub.Topic == "" {
		sub.Topic = "alerts"
	}
	require.NoError(t, st.AddSubscription(sub))
}

func candidate(subscriptionID, id string, priority int) model.Notification {
	return model.Notification{
		ID:             id,
		SubscriptionID: subscriptionID,
		Timestamp:      time.Now().Unix(),
		Message:        "hello",
		Priority:       priority,
	}
}

func TestIngestFirstDelivery(t *testing.T) {
	e, st := newTestEngine(t)
	addTestSubscription(t, st, &model.Subscription{ID: "sub1"})

	d, err := e.Ingest(candidate("sub1", "n1", model.PriorityDefault))
	require.NoError(t, err)
	assert.True(t, d.Persisted)
	assert.True(t, d.NotifyLocal)
	assert.False(t, d.Duplicate)
	assert.False(t, d.Broadcast, "unregistered subscription must not broadcast")
	require.NotNil(t, d.Subscription)

	sub, err := st.GetSubscription("sub1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.TotalCount)
	assert.Equal(t, 1, sub.NewCount)
	assert.Equal(t, "n1", sub.LastNotificationID)
}

func TestIngestDuplicateDropped(t *testing.T) {
	e, st := newTestEngine(t)
	addTestSubscription(t, st, &model.Subscription{ID: "sub1"})

	n := candidate("sub1", "n1", model.PriorityDefault)
	_, err := e.Ingest(n)
	require.NoError(t, err)

	d, err := e.Ingest(n)
	require.NoError(t, err)
	assert.True(t, d.Duplicate)
	assert.False(t, d.Persisted)
	assert.False(t, d.NotifyLocal)
	assert.False(t, d.Broadcast)

	// Counters unchanged by the duplicate
	sub, err := st.GetSubscription("sub1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.TotalCount)
	assert.Equal(t, 1, sub.NewCount)
}

func TestIngestMissingSubscription(t *testing.T) {
	e, _ := newTestEngine(t)

	d, err := e.Ingest(candidate("gone", "n1", model.PriorityDefault))
	require.NoError(t, err, "a concurrently removed subscription is not an error")
	assert.False(t, d.Persisted)
	assert.False(t, d.NotifyLocal)
	assert.False(t, d.Broadcast)
	assert.Nil(t, d.Subscription)
}

func TestIngestMutedSubscription(t *testing.T) {
	e, st := newTestEngine(t)
	addTestSubscription(t, st, &model.Subscription{
		ID:               "sub1",
		MutedUntil:       time.Now().Add(time.Hour).Unix(),
		UpAppID:          "org.example.app",
		UpConnectorToken: "tok1",
	})

	d, err := e.Ingest(candidate("sub1", "n1", model.PriorityMax))
	require.NoError(t, err)
	assert.True(t, d.Persisted)
	assert.False(t, d.NotifyLocal)
	assert.True(t, d.Muted)
	assert.True(t, d.Broadcast, "broadcast receivers get muted notifications too")

	// Muted deliveries count as seen
	sub, err := st.GetSubscription("sub1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.TotalCount)
	assert.Equal(t, 0, sub.NewCount)
}

func TestIngestMuteExpired(t *testing.T) {
	e, st := newTestEngine(t)
	addTestSubscription(t, st, &model.Subscription{
		ID:         "sub1",
		MutedUntil: time.Now().Add(-time.Minute).Unix(),
	})

	d, err := e.Ingest(candidate("sub1", "n1", model.PriorityDefault))
	require.NoError(t, err)
	assert.True(t, d.NotifyLocal)
	assert.False(t, d.Muted)
}

func TestIngestPriorityFilter(t *testing.T) {
	e, st := newTestEngine(t)
	addTestSubscription(t, st, &model.Subscription{ID: "sub1", MinPriority: model.PriorityHigh})

	d, err := e.Ingest(candidate("sub1", "n1", model.PriorityDefault))
	require.NoError(t, err)
	assert.True(t, d.Persisted)
	assert.False(t, d.NotifyLocal, "below-minimum priority must not display")
	assert.False(t, d.Muted)

	d, err = e.Ingest(candidate("sub1", "n2", model.PriorityHigh))
	require.NoError(t, err)
	assert.True(t, d.NotifyLocal)
}

func TestIngestConcurrentSameNotification(t *testing.T) {
	e, st := newTestEngine(t)
	addTestSubscription(t, st, &model.Subscription{ID: "sub1"})

	const workers = 16
	var wg sync.WaitGroup
	decisions := make(chan Decision, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := e.Ingest(candidate("sub1", "n1", model.PriorityDefault))
			if err != nil {
				t.Error(err)
				return
			}
			decisions <- d
		}()
	}
	wg.Wait()
	close(decisions)

	persisted := 0
	for d := range decisions {
		if d.Persisted {
			persisted++
		}
	}
	assert.Equal(t, 1, persisted, "exactly one concurrent ingest must persist")

	sub, err := st.GetSubscription("sub1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.TotalCount)
}

type failingStore struct {
	err error
}

func (f *failingStore) GetSubscription(id string) (*model.Subscription, error) {
	return &model.Subscription{ID: id}, nil
}

func (f *failingStore) AddNotification(n *model.Notification) (bool, error) {
	return false, f.err
}

func (f *failingStore) IncrementCounters(subscriptionID string, total, unseen int) error {
	return nil
}

func TestIngestPersistenceFailure(t *testing.T) {
	e := NewEngine(&failingStore{err: errors.New("disk full")}, nil)

	_, err := e.Ingest(candidate("sub1", "n1", model.PriorityDefault))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
