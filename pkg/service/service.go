package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/connection"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/distributor"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/ingest"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/message"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/store"
)

// pollTimeout bounds one poll round-trip.
const pollTimeout = 15 * time.Second

// DisplaySink shows a notification to the user.
type DisplaySink interface {
	Display(sub *model.Subscription, n model.Notification)
}

// Broadcaster forwards a notification to the external app registered
// for the subscription. Muted notifications are forwarded too; the
// receiver decides display behavior from the muted flag.
type Broadcaster interface {
	Broadcast(sub *model.Subscription, n model.Notification, muted bool)
}

// Options configures a Service. Zero-value fields get sensible
// defaults; nil sinks are simply not invoked.
type Options struct {
	// DefaultBaseURL is the server used for push-registration
	// subscriptions.
	DefaultBaseURL string

	// Connection configures the stream supervisor.
	Connection connection.Config

	// Logger receives engine events. Defaults to log.NoopLogger.
	Logger log.Logger

	// Outcomes receives push-registration results.
	Outcomes distributor.Outcomes

	// Display shows notifications to the user.
	Display DisplaySink

	// Broadcast forwards notifications to registered external apps.
	Broadcast Broadcaster
}

// Service is the engine's composition root. It owns the store, the
// stream supervisor, the ingestion engine and the push-registration
// distributor, and fans dispatch decisions out to the configured sinks.
// All dependencies are constructed and wired explicitly; there is no
// package-level state.
type Service struct {
	store       *store.Store
	supervisor  *connection.Supervisor
	engine      *ingest.Engine
	distributor *distributor.Distributor
	logger      log.Logger
	client      *http.Client
	display     DisplaySink
	broadcast   Broadcaster
}

// New creates a service on top of an opened store.
func New(st *store.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.NoopLogger{}
	}
	if opts.Connection.Logger == nil {
		opts.Connection.Logger = opts.Logger
	}

	s := &Service{
		store:     st,
		logger:    opts.Logger,
		display:   opts.Display,
		broadcast: opts.Broadcast,
	}
	s.client = opts.Connection.Client
	if s.client == nil {
		s.client = http.DefaultClient
	}

	s.supervisor = connection.NewSupervisor(opts.Connection)
	s.supervisor.AddNotificationListener(func(target connection.Target, n model.Notification) {
		s.dispatch(n)
	})
	s.supervisor.OnPollRequest(s.pollSubscription)

	s.engine = ingest.NewEngine(st, opts.Logger)
	s.distributor = distributor.New(opts.DefaultBaseURL, st, s, opts.Outcomes, opts.Logger)
	return s
}

// Start launches streams for every instant subscription. Polling-only
// subscriptions are fetched on demand instead.
func (s *Service) Start() error {
	subs, err := s.store.Subscriptions()
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	for _, sub := range subs {
		if !sub.Instant {
			continue
		}
		if err := s.StartStream(sub); err != nil {
			s.logger.Log(log.ErrorEvent(sub.ID, "start stream", err))
		}
	}
	return nil
}

// Stop tears down all streams and waits for their goroutines to exit.
// Pending backoff timers are canceled along with the streams.
func (s *Service) Stop() {
	s.supervisor.StopAll()
}

// Subscribe creates a subscription and, for instant subscriptions,
// starts its stream.
func (s *Service) Subscribe(baseURL, topic string, instant bool) (*model.Subscription, error) {
	sub := &model.Subscription{
		ID:      uuid.NewString(),
		BaseURL: baseURL,
		Topic:   topic,
		Instant: instant,
	}
	if err := s.store.AddSubscription(sub); err != nil {
		return nil, err
	}
	if instant {
		if err := s.StartStream(sub); err != nil {
			s.logger.Log(log.ErrorEvent(sub.ID, "start stream", err))
		}
	}
	return sub, nil
}

// Unsubscribe stops a subscription's stream and deletes its persisted
// state, notifications included.
func (s *Service) Unsubscribe(subscriptionID string) error {
	if err := s.StopStream(subscriptionID); err != nil {
		return err
	}
	return s.store.RemoveSubscription(subscriptionID)
}

// SetMutedUntil mutes a subscription until the given Unix timestamp.
// Zero unmutes.
func (s *Service) SetMutedUntil(subscriptionID string, mutedUntil int64) error {
	return s.store.SetMutedUntil(subscriptionID, mutedUntil)
}

// Subscriptions lists all subscriptions.
func (s *Service) Subscriptions() ([]*model.Subscription, error) {
	return s.store.Subscriptions()
}

// Notifications lists a subscription's visible notifications, newest
// first.
func (s *Service) Notifications(subscriptionID string) ([]*model.Notification, error) {
	return s.store.Notifications(subscriptionID)
}

// ClearNewCount marks a subscription's notifications as seen.
func (s *Service) ClearNewCount(subscriptionID string) error {
	return s.store.ClearNewCount(subscriptionID)
}

// StreamStatus reports the stream state for a subscription.
func (s *Service) StreamStatus(subscriptionID string) connection.Status {
	return s.supervisor.Status(subscriptionID)
}

// Register issues a push endpoint for (appID, connectorToken).
func (s *Service) Register(appID, connectorToken string) (string, error) {
	return s.distributor.Register(appID, connectorToken)
}

// Unregister removes the push registration for connectorToken.
func (s *Service) Unregister(connectorToken string) error {
	return s.distributor.Unregister(connectorToken)
}

// StartStream launches the stream for a subscription. Starting an
// already-streaming subscription is a no-op.
func (s *Service) StartStream(sub *model.Subscription) error {
	err := s.supervisor.Start(connection.Target{
		SubscriptionID: sub.ID,
		BaseURL:        sub.BaseURL,
		Topic:          sub.Topic,
		Since:          sub.LastNotificationID,
	})
	if errors.Is(err, connection.ErrAlreadyRunning) {
		return nil
	}
	return err
}

// StopStream tears down the stream for a subscription. Stopping a
// subscription without a stream is a no-op.
func (s *Service) StopStream(subscriptionID string) error {
	err := s.supervisor.Stop(subscriptionID)
	if errors.Is(err, connection.ErrNotRunning) {
		return nil
	}
	return err
}

// HandlePushMessage ingests a notification payload delivered over an
// external push transport rather than a stream. Both paths converge on
// the same ingestion engine, so a notification that arrives over both
// is still displayed at most once.
func (s *Service) HandlePushMessage(baseURL, topic string, payload []byte) error {
	sub, err := s.store.GetSubscriptionByTopic(baseURL, topic)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No such subscription anymore; drop.
			return nil
		}
		return fmt.Errorf("look up subscription: %w", err)
	}

	n, err := message.Parse(payload)
	if err != nil {
		if errors.Is(err, message.ErrNotMessage) {
			return nil
		}
		return fmt.Errorf("parse push payload: %w", err)
	}
	n.SubscriptionID = sub.ID
	s.dispatch(n)
	return nil
}

// dispatch runs a notification through the ingestion engine and acts on
// the decision. Ingestion failures are logged and dropped; they must
// never take down the calling stream.
func (s *Service) dispatch(n model.Notification) {
	decision, err := s.engine.Ingest(n)
	if err != nil {
		s.logger.Log(log.ErrorEvent(n.SubscriptionID, "ingest", err))
		return
	}
	if decision.NotifyLocal && s.display != nil {
		s.display.Display(decision.Subscription, decision.Notification)
	}
	if decision.Broadcast && s.broadcast != nil {
		s.broadcast.Broadcast(decision.Subscription, decision.Notification, decision.Muted)
	}
}

// pollSubscription performs one poll round-trip for a subscription and
// feeds the results through the regular ingestion path. The server
// requests this when it has buffered messages it prefers not to push
// over the stream.
func (s *Service) pollSubscription(subscriptionID string) {
	sub, err := s.store.GetSubscription(subscriptionID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	url := model.TopicURLPoll(sub.BaseURL, sub.Topic, sub.LastNotificationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.Log(log.ErrorEvent(subscriptionID, "poll", err))
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Log(log.ErrorEvent(subscriptionID, "poll", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.logger.Log(log.ErrorEvent(subscriptionID, "poll", fmt.Errorf("unexpected status %d", resp.StatusCode)))
		return
	}

	// One JSON message per line
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		n, err := message.Parse(line)
		if err != nil {
			continue
		}
		n.SubscriptionID = subscriptionID
		s.dispatch(n)
	}
}
