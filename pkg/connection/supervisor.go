package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/event"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/message"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
)

// Supervisor errors.
var (
	ErrAlreadyRunning = errors.New("stream already running")
	ErrNotRunning     = errors.New("stream not running")
)

// DefaultReadTimeout is how long a stream may stay silent before the
// connection is torn down and reopened. Servers send keepalives well
// within this window, so a silent stream is a dead one.
const DefaultReadTimeout = 77 * time.Second

// Status represents the lifecycle state of one subscription's stream.
type Status uint8

const (
	// StatusDisconnected indicates no stream is running.
	StatusDisconnected Status = iota

	// StatusConnecting indicates a connection attempt is in progress.
	StatusConnecting

	// StatusConnected indicates an open stream delivering events.
	StatusConnected

	// StatusReconnecting indicates the stream is waiting out a backoff
	// delay before the next attempt.
	StatusReconnecting
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Target identifies the feed a stream connects to.
type Target struct {
	// SubscriptionID keys the stream within the supervisor.
	SubscriptionID string

	// BaseURL and Topic locate the feed.
	BaseURL string
	Topic   string

	// Since is the replay cursor for the first attempt. The supervisor
	// advances it as notifications arrive, so reconnects resume where
	// the previous connection left off.
	Since string
}

// StatusListener is notified of stream status transitions. For
// transitions into StatusReconnecting, attempt and delay describe the
// upcoming backoff wait.
type StatusListener func(target Target, connectionID string, oldStatus, newStatus Status, attempt int, delay time.Duration)

// NotificationListener is notified of every message event parsed off a
// stream. Delivery order follows stream order within one subscription.
type NotificationListener func(target Target, n model.Notification)

// PollHook is invoked when the server asks the client to perform a poll
// round-trip. It runs on its own goroutine so a slow poll cannot stall
// the stream reader.
type PollHook func(subscriptionID string)

// Config customizes supervisor behavior. The zero value is usable.
type Config struct {
	// Client is the HTTP client used for stream requests. Defaults to
	// http.DefaultClient. The client must not set a global timeout;
	// stream requests are long-lived by design.
	Client *http.Client

	// ReadTimeout is the maximum silence before a stream is considered
	// dead. Defaults to DefaultReadTimeout.
	ReadTimeout time.Duration

	// Backoff configures reconnection delays.
	Backoff BackoffConfig

	// Logger receives state-change and error events. Defaults to
	// log.NoopLogger.
	Logger log.Logger
}

// stream tracks one running per-subscription connection loop.
type stream struct {
	target Target
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor maintains one long-lived stream per subscription, with
// automatic reconnection. Streams are independent; one subscription's
// failures never affect another's delivery.
type Supervisor struct {
	mu sync.RWMutex

	cfg     Config
	streams map[string]*stream

	// Listeners
	statusListeners       []StatusListener
	notificationListeners []NotificationListener
	onPollRequest         PollHook
}

// NewSupervisor creates a supervisor with no running streams.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	return &Supervisor{
		cfg:     cfg,
		streams: make(map[string]*stream),
	}
}

// AddStatusListener registers a status transition listener. Listeners
// are invoked in registration order.
func (s *Supervisor) AddStatusListener(fn StatusListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusListeners = append(s.statusListeners, fn)
}

// AddNotificationListener registers a notification delivery listener.
// Listeners are invoked in registration order, on the stream's
// goroutine; a listener that blocks stalls that one stream.
func (s *Supervisor) AddNotificationListener(fn NotificationListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notificationListeners = append(s.notificationListeners, fn)
}

// OnPollRequest sets the poll request callback.
func (s *Supervisor) OnPollRequest(fn PollHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPollRequest = fn
}

// Start launches a stream for the target. Starting a subscription that
// already has a running stream returns ErrAlreadyRunning and leaves the
// existing stream untouched.
func (s *Supervisor) Start(target Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[target.SubscriptionID]; ok {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &stream{
		target: target,
		status: StatusDisconnected,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.streams[target.SubscriptionID] = st
	go s.run(ctx, st)
	return nil
}

// Stop tears down the stream for a subscription and waits for its
// goroutine to exit.
func (s *Supervisor) Stop(subscriptionID string) error {
	s.mu.Lock()
	st, ok := s.streams[subscriptionID]
	if !ok {
		s.mu.Unlock()
		return ErrNotRunning
	}
	delete(s.streams, subscriptionID)
	s.mu.Unlock()

	st.cancel()
	<-st.done
	return nil
}

// StopAll tears down every running stream.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	streams := make([]*stream, 0, len(s.streams))
	for id, st := range s.streams {
		streams = append(streams, st)
		delete(s.streams, id)
	}
	s.mu.Unlock()

	for _, st := range streams {
		st.cancel()
		<-st.done
	}
}

// Running returns true if the subscription has a running stream.
func (s *Supervisor) Running(subscriptionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[subscriptionID]
	return ok
}

// Status returns the current status of a subscription's stream.
// Subscriptions without a stream report StatusDisconnected.
func (s *Supervisor) Status(subscriptionID string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.streams[subscriptionID]; ok {
		return st.status
	}
	return StatusDisconnected
}

// run is the per-subscription connection loop: connect, read until the
// stream dies, back off, repeat. It exits only when the context is
// canceled.
func (s *Supervisor) run(ctx context.Context, st *stream) {
	defer close(st.done)

	backoff := NewBackoffWithConfig(s.cfg.Backoff)
	since := st.target.Since

	for {
		connectionID := uuid.NewString()
		s.transition(st, connectionID, StatusConnecting, 0, 0)

		lastID, err := s.attempt(ctx, st, backoff, connectionID, since)
		if lastID != "" {
			since = lastID
		}

		if ctx.Err() != nil {
			s.transition(st, connectionID, StatusDisconnected, 0, 0)
			return
		}
		if err != nil {
			s.cfg.Logger.Log(log.ErrorEvent(st.target.SubscriptionID, "stream", err))
		}

		delay := backoff.Next()
		s.transition(st, connectionID, StatusReconnecting, backoff.Attempts(), delay)

		select {
		case <-ctx.Done():
			s.transition(st, connectionID, StatusDisconnected, 0, 0)
			return
		case <-time.After(delay):
		}
	}
}

// attempt opens one stream connection and reads it to exhaustion. It
// returns the ID of the last notification delivered, so the caller can
// advance the replay cursor even when the connection later fails.
func (s *Supervisor) attempt(ctx context.Context, st *stream, backoff *Backoff, connectionID, since string) (lastID string, err error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	url := model.TopicURLStream(st.target.BaseURL, st.target.Topic, since)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	backoff.Reset()
	s.transition(st, connectionID, StatusConnected, 0, 0)

	// Silence watchdog: any line resets it, including keepalives. When
	// it fires, canceling the request context unblocks the reader.
	watchdog := time.AfterFunc(s.cfg.ReadTimeout, cancel)
	defer watchdog.Stop()

	parser := event.NewParser()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		watchdog.Reset(s.cfg.ReadTimeout)

		ev, ok := parser.Line(scanner.Text())
		if !ok {
			continue
		}
		switch ev.Kind {
		case event.KindMessage:
			if len(ev.Data) == 0 {
				continue
			}
			n, perr := message.Parse(ev.Data)
			if perr != nil {
				s.cfg.Logger.Log(log.ErrorEvent(st.target.SubscriptionID, "parse message", perr))
				continue
			}
			n.SubscriptionID = st.target.SubscriptionID
			lastID = n.ID
			s.deliver(st.target, n)
		case event.KindPollRequest:
			s.mu.RLock()
			hook := s.onPollRequest
			s.mu.RUnlock()
			if hook != nil {
				go hook(st.target.SubscriptionID)
			}
		}
		// Open and keepalive events carry nothing to act on.
	}

	if serr := scanner.Err(); serr != nil {
		return lastID, fmt.Errorf("read stream: %w", serr)
	}
	return lastID, errors.New("stream ended")
}

// transition records a status change and fans it out to the listener and
// the event log.
func (s *Supervisor) transition(st *stream, connectionID string, newStatus Status, attempt int, delay time.Duration) {
	s.mu.Lock()
	oldStatus := st.status
	st.status = newStatus
	listeners := make([]StatusListener, len(s.statusListeners))
	copy(listeners, s.statusListeners)
	s.mu.Unlock()

	if oldStatus == newStatus {
		return
	}

	ev := log.StateChange(st.target.SubscriptionID, connectionID, oldStatus.String(), newStatus.String())
	ev.BaseURL = st.target.BaseURL
	ev.Topic = st.target.Topic
	if newStatus == StatusReconnecting {
		ev.StateChange.Attempt = attempt
		ev.StateChange.Delay = delay
	}
	s.cfg.Logger.Log(ev)

	for _, listener := range listeners {
		listener(st.target, connectionID, oldStatus, newStatus, attempt, delay)
	}
}

// deliver fans a notification out to the listeners.
func (s *Supervisor) deliver(target Target, n model.Notification) {
	s.mu.RLock()
	listeners := make([]NotificationListener, len(s.notificationListeners))
	copy(listeners, s.notificationListeners)
	s.mu.RUnlock()
	for _, listener := range listeners {
		listener(target, n)
	}
}
