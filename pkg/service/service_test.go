package service

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/connection"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/store"
)

// testBackoff keeps reconnect delays short.
var testBackoff = connection.BackoffConfig{
	Initial:    10 * time.Millisecond,
	Max:        20 * time.Millisecond,
	Multiplier: 2.0,
	Jitter:     0,
}

type displayRecorder struct {
	ch chan model.Notification
}

func newDisplayRecorder() *displayRecorder {
	return &displayRecorder{ch: make(chan model.Notification, 32)}
}

func (d *displayRecorder) Display(sub *model.Subscription, n model.Notification) {
	d.ch <- n
}

func (d *displayRecorder) wait(t *testing.T) model.Notification {
	t.Helper()
	select {
	case n := <-d.ch:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for display")
		return model.Notification{}
	}
}

func (d *displayRecorder) assertNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case n := <-d.ch:
		t.Fatalf("unexpected display of %q", n.ID)
	case <-time.After(wait):
	}
}

type broadcastRecord struct {
	notification model.Notification
	muted        bool
}

type broadcastRecorder struct {
	ch chan broadcastRecord
}

func newBroadcastRecorder() *broadcastRecorder {
	return &broadcastRecorder{ch: make(chan broadcastRecord, 32)}
}

func (b *broadcastRecorder) Broadcast(sub *model.Subscription, n model.Notification, muted bool) {
	b.ch <- broadcastRecord{notification: n, muted: muted}
}

func messageJSON(id, text string) string {
	return fmt.Sprintf("{\"id\":%q,\"time\":100,\"event\":\"message\",\"topic\":\"alerts\",\"message\":%q}", id, text)
}

// streamFrame wraps a message payload in a stream frame.
func streamFrame(payload string) string {
	return "event: message\ndata: " + payload + "\n\n"
}

func newTestService(t *testing.T, opts Options) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	opts.Connection.Backoff = testBackoff
	svc := New(st, opts)
	t.Cleanup(svc.Stop)
	return svc, st
}

func TestServiceDisplaysStreamNotification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: open\n\n")
		fmt.Fprint(w, streamFrame(messageJSON("n1", "hello")))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	display := newDisplayRecorder()
	svc, st := newTestService(t, Options{Display: display})

	sub, err := svc.Subscribe(server.URL, "alerts", true)
	require.NoError(t, err)

	n := display.wait(t)
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, "hello", n.Message)

	stored, err := st.GetNotification(sub.ID, "n1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Message)
}

func TestServiceReplayDisplayedOnce(t *testing.T) {
	// Every connection replays the same message, then closes. The
	// reconnect loop will see it repeatedly; the user must not.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, streamFrame(messageJSON("n1", "hello")))
		w.(http.Flusher).Flush()
	}))
	defer server.Close()

	display := newDisplayRecorder()
	svc, _ := newTestService(t, Options{Display: display})

	_, err := svc.Subscribe(server.URL, "alerts", true)
	require.NoError(t, err)

	n := display.wait(t)
	assert.Equal(t, "n1", n.ID)

	// Give the loop time for a few replayed connections
	display.assertNone(t, 200*time.Millisecond)
}

func TestServicePushPathDeduplicates(t *testing.T) {
	display := newDisplayRecorder()
	svc, _ := newTestService(t, Options{Display: display})

	_, err := svc.Subscribe("https://example.org", "alerts", false)
	require.NoError(t, err)

	payload := []byte(messageJSON("n1", "hello"))
	require.NoError(t, svc.HandlePushMessage("https://example.org", "alerts", payload))
	require.NoError(t, svc.HandlePushMessage("https://example.org", "alerts", payload))

	n := display.wait(t)
	assert.Equal(t, "n1", n.ID)
	display.assertNone(t, 100*time.Millisecond)
}

func TestServiceStreamAndPushConverge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, streamFrame(messageJSON("n1", "hello")))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	display := newDisplayRecorder()
	svc, _ := newTestService(t, Options{Display: display})

	_, err := svc.Subscribe(server.URL, "alerts", true)
	require.NoError(t, err)
	display.wait(t)

	// The same notification arriving over the push path is a duplicate
	require.NoError(t, svc.HandlePushMessage(server.URL, "alerts", []byte(messageJSON("n1", "hello"))))
	display.assertNone(t, 100*time.Millisecond)
}

func TestServicePushToUnknownTopicDropped(t *testing.T) {
	display := newDisplayRecorder()
	svc, _ := newTestService(t, Options{Display: display})

	err := svc.HandlePushMessage("https://example.org", "ghost", []byte(messageJSON("n1", "hello")))
	require.NoError(t, err, "unknown topic is a race outcome, not an error")
	display.assertNone(t, 100*time.Millisecond)
}

func TestServiceMutedSubscriptionBroadcastsOnly(t *testing.T) {
	display := newDisplayRecorder()
	broadcast := newBroadcastRecorder()
	svc, st := newTestService(t, Options{Display: display, Broadcast: broadcast})

	sub := &model.Subscription{
		ID:               "sub1",
		BaseURL:          "https://example.org",
		Topic:            "alerts",
		MutedUntil:       time.Now().Add(time.Hour).Unix(),
		UpAppID:          "org.example.app",
		UpConnectorToken: "tok1",
	}
	require.NoError(t, st.AddSubscription(sub))

	require.NoError(t, svc.HandlePushMessage("https://example.org", "alerts", []byte(messageJSON("n1", "hello"))))

	select {
	case rec := <-broadcast.ch:
		assert.Equal(t, "n1", rec.notification.ID)
		assert.True(t, rec.muted, "broadcast must carry the muted flag")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
	display.assertNone(t, 100*time.Millisecond)
}

func TestServiceRegisterStartsStream(t *testing.T) {
	received := make(chan string, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.URL.Path
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: open\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	svc, st := newTestService(t, Options{DefaultBaseURL: server.URL})

	endpoint, err := svc.Register("org.example.app", "tok1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(endpoint, "?up=1"))

	sub, err := st.GetSubscriptionByConnectorToken("tok1")
	require.NoError(t, err)

	select {
	case path := <-received:
		assert.Equal(t, "/"+sub.Topic+"/sse", path)
	case <-time.After(5 * time.Second):
		t.Fatal("registration did not open a stream")
	}
	assert.True(t, svc.supervisor.Running(sub.ID))
}

func TestServiceUnregisterStopsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	svc, st := newTestService(t, Options{DefaultBaseURL: server.URL})

	_, err := svc.Register("org.example.app", "tok1")
	require.NoError(t, err)
	sub, err := st.GetSubscriptionByConnectorToken("tok1")
	require.NoError(t, err)

	require.NoError(t, svc.Unregister("tok1"))
	assert.False(t, svc.supervisor.Running(sub.ID))
	_, err = st.GetSubscription(sub.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestServiceUnsubscribeStopsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	svc, st := newTestService(t, Options{})

	sub, err := svc.Subscribe(server.URL, "alerts", true)
	require.NoError(t, err)
	require.True(t, svc.supervisor.Running(sub.ID))

	require.NoError(t, svc.Unsubscribe(sub.ID))
	assert.False(t, svc.supervisor.Running(sub.ID))
	_, err = st.GetSubscription(sub.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestServicePollRequestFetchesBacklog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sse"):
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "event: open\n\n")
			fmt.Fprint(w, "event: poll_request\n\n")
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		case strings.HasSuffix(r.URL.Path, "/json"):
			assert.Equal(t, "1", r.URL.Query().Get("poll"))
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, messageJSON("n1", "backlog"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	display := newDisplayRecorder()
	svc, _ := newTestService(t, Options{Display: display})

	_, err := svc.Subscribe(server.URL, "alerts", true)
	require.NoError(t, err)

	n := display.wait(t)
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, "backlog", n.Message)
}

func TestServiceStartResumesInstantSubscriptions(t *testing.T) {
	sinceParams := make(chan string, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sinceParams <- r.URL.Query().Get("since")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.AddSubscription(&model.Subscription{
		ID: "sub1", BaseURL: server.URL, Topic: "alerts", Instant: true, LastNotificationID: "n5",
	}))
	require.NoError(t, st.AddSubscription(&model.Subscription{
		ID: "sub2", BaseURL: server.URL, Topic: "polled", Instant: false,
	}))

	svc := New(st, Options{Connection: connection.Config{Backoff: testBackoff}})
	t.Cleanup(svc.Stop)
	require.NoError(t, svc.Start())

	select {
	case since := <-sinceParams:
		assert.Equal(t, "n5", since, "stream must resume from the stored cursor")
	case <-time.After(5 * time.Second):
		t.Fatal("no stream opened on Start")
	}
	assert.True(t, svc.supervisor.Running("sub1"))
	assert.False(t, svc.supervisor.Running("sub2"), "polling-only subscriptions get no stream")
}
