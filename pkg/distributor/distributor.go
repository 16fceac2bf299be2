package distributor

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/store"
)

// Registration errors.
var (
	ErrBlankAppID     = errors.New("app id is blank")
	ErrTokenCollision = errors.New("connector token registered to another app")
)

// Reserved topic prefix for push-delivery subscriptions.
const topicPrefix = "up"

// Length of the random topic suffix.
const topicSuffixLength = 12

const topicAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Reason explains why a registration failed.
type Reason uint8

const (
	// ReasonInternalError covers invalid requests and conflicts the app
	// cannot fix by retrying, such as a blank app ID or a token owned
	// by another app.
	ReasonInternalError Reason = iota

	// ReasonNetwork covers transient failures; the app may retry.
	ReasonNetwork

	// ReasonActionRequired means the user must intervene before
	// registrations can succeed, for example by choosing a default
	// server.
	ReasonActionRequired
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonInternalError:
		return "INTERNAL_ERROR"
	case ReasonNetwork:
		return "NETWORK"
	case ReasonActionRequired:
		return "ACTION_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// Store is the persistence surface the distributor needs. *store.Store
// satisfies it.
type Store interface {
	GetSubscriptionByConnectorToken(token string) (*model.Subscription, error)
	AddSubscription(sub *model.Subscription) error
	RemoveSubscription(id string) error
}

// Streamer starts and stops the event stream backing a subscription.
type Streamer interface {
	StartStream(sub *model.Subscription) error
	StopStream(subscriptionID string) error
}

// Outcomes receives registration results destined for the requesting
// app. All methods are invoked synchronously from the registration
// critical section.
type Outcomes interface {
	EndpointIssued(appID, connectorToken, endpoint string)
	RegistrationFailed(appID, connectorToken string, reason Reason)
	Unregistered(appID, connectorToken string)
}

// noopOutcomes discards all outcomes.
type noopOutcomes struct{}

func (noopOutcomes) EndpointIssued(appID, connectorToken, endpoint string)          {}
func (noopOutcomes) RegistrationFailed(appID, connectorToken string, reason Reason) {}
func (noopOutcomes) Unregistered(appID, connectorToken string)                      {}

// Distributor manages push-delivery registrations. All register and
// unregister calls share one mutex; without it, two near-simultaneous
// registrations for the same new token could both observe "not found"
// and both create a subscription.
type Distributor struct {
	mu sync.Mutex

	baseURL  string
	store    Store
	streamer Streamer
	outcomes Outcomes
	logger   log.Logger
}

// New creates a distributor issuing endpoints on baseURL. A nil outcomes
// sink discards outcomes; a nil logger discards events.
func New(baseURL string, st Store, streamer Streamer, outcomes Outcomes, logger log.Logger) *Distributor {
	if outcomes == nil {
		outcomes = noopOutcomes{}
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Distributor{
		baseURL:  baseURL,
		store:    st,
		streamer: streamer,
		outcomes: outcomes,
		logger:   logger,
	}
}

// Register issues a push endpoint for (appID, connectorToken). The call
// is idempotent: re-registering an existing token for the same app
// re-emits the existing endpoint. A token registered to a different app
// is refused; tokens must never be silently reassigned.
func (d *Distributor) Register(appID, connectorToken string) (string, error) {
	if appID == "" {
		d.fail(appID, connectorToken, ReasonInternalError)
		return "", ErrBlankAppID
	}
	if d.baseURL == "" {
		d.fail(appID, connectorToken, ReasonActionRequired)
		return "", errors.New("no default server configured")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.store.GetSubscriptionByConnectorToken(connectorToken)
	switch {
	case err == nil:
		if existing.UpAppID != appID {
			d.fail(appID, connectorToken, ReasonInternalError)
			return "", ErrTokenCollision
		}
		endpoint := model.TopicURLUp(existing.BaseURL, existing.Topic)
		d.issue(appID, connectorToken, endpoint)
		return endpoint, nil
	case !errors.Is(err, store.ErrNotFound):
		d.fail(appID, connectorToken, ReasonNetwork)
		return "", fmt.Errorf("look up connector token: %w", err)
	}

	topic, err := randomTopic()
	if err != nil {
		d.fail(appID, connectorToken, ReasonInternalError)
		return "", fmt.Errorf("generate topic: %w", err)
	}
	sub := &model.Subscription{
		ID:               uuid.NewString(),
		BaseURL:          d.baseURL,
		Topic:            topic,
		Instant:          true,
		UpAppID:          appID,
		UpConnectorToken: connectorToken,
	}
	if err := d.store.AddSubscription(sub); err != nil {
		// A concurrent writer to shared storage may still win the
		// uniqueness race; report it, do not start a stream.
		d.fail(appID, connectorToken, ReasonNetwork)
		return "", fmt.Errorf("persist subscription: %w", err)
	}

	endpoint := model.TopicURLUp(sub.BaseURL, sub.Topic)
	d.issue(appID, connectorToken, endpoint)

	if err := d.streamer.StartStream(sub); err != nil {
		// Registration already succeeded; the stream can be started
		// later (for example on the next engine restart).
		d.logger.Log(log.ErrorEvent(sub.ID, "start stream", err))
	}
	return endpoint, nil
}

// Unregister removes the subscription registered for connectorToken,
// stopping its stream first. An unknown token is a no-op: the
// registration is already gone, and no outcome is emitted.
func (d *Distributor) Unregister(connectorToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, err := d.store.GetSubscriptionByConnectorToken(connectorToken)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up connector token: %w", err)
	}

	if err := d.streamer.StopStream(sub.ID); err != nil {
		d.logger.Log(log.ErrorEvent(sub.ID, "stop stream", err))
	}
	if err := d.store.RemoveSubscription(sub.ID); err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}

	d.logger.Log(log.RegistrationOutcome(sub.UpAppID, connectorToken, "unregistered", ""))
	d.outcomes.Unregistered(sub.UpAppID, connectorToken)
	return nil
}

func (d *Distributor) issue(appID, connectorToken, endpoint string) {
	d.logger.Log(log.RegistrationOutcome(appID, connectorToken, "endpoint", ""))
	d.outcomes.EndpointIssued(appID, connectorToken, endpoint)
}

func (d *Distributor) fail(appID, connectorToken string, reason Reason) {
	d.logger.Log(log.RegistrationOutcome(appID, connectorToken, "failed", reason.String()))
	d.outcomes.RegistrationFailed(appID, connectorToken, reason)
}

// randomTopic generates a topic name under the reserved prefix, e.g.
// "upxKq3fT9bWm2Z".
func randomTopic() (string, error) {
	suffix := make([]byte, topicSuffixLength)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(topicAlphabet))))
		if err != nil {
			return "", err
		}
		suffix[i] = topicAlphabet[n.Int64()]
	}
	return topicPrefix + string(suffix), nil
}
