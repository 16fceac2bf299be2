package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
)

// Store errors.
var (
	// ErrNotFound indicates the requested subscription does not exist.
	ErrNotFound = errors.New("subscription not found")

	// ErrDuplicateSubscription indicates a uniqueness constraint was hit
	// while adding a subscription: either (base URL, topic) or the
	// connector token already exists.
	ErrDuplicateSubscription = errors.New("subscription already exists")
)

// Store provides SQLite persistence for subscriptions and notifications.
// It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store backed by the database at the given path.
// Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writes and keeps ":memory:"
	// databases from silently splitting per pool connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subscription (
		id TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		topic TEXT NOT NULL,
		instant INTEGER NOT NULL DEFAULT 0,
		muted_until INTEGER NOT NULL DEFAULT 0,
		min_priority INTEGER NOT NULL DEFAULT 0,
		last_notification_id TEXT NOT NULL DEFAULT '',
		up_app_id TEXT NOT NULL DEFAULT '',
		up_connector_token TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		total_count INTEGER NOT NULL DEFAULT 0,
		new_count INTEGER NOT NULL DEFAULT 0,
		last_active INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscription_feed
		ON subscription(base_url, topic);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscription_token
		ON subscription(up_connector_token) WHERE up_connector_token != '';

	CREATE TABLE IF NOT EXISTS notification (
		id TEXT NOT NULL,
		subscription_id TEXT NOT NULL REFERENCES subscription(id) ON DELETE CASCADE,
		timestamp INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		encoding TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 3,
		tags TEXT NOT NULL DEFAULT '',
		click TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		actions TEXT,
		attachment TEXT,
		deleted INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (subscription_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_notification_timestamp
		ON notification(subscription_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddSubscription persists a new subscription. It returns
// ErrDuplicateSubscription if the (base URL, topic) pair or the connector
// token is already taken.
func (s *Store) AddSubscription(sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO subscription (id, base_url, topic, instant, muted_until, min_priority,
			last_notification_id, up_app_id, up_connector_token, display_name,
			total_count, new_count, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.BaseURL, sub.Topic, sub.Instant, sub.MutedUntil, sub.MinPriority,
		sub.LastNotificationID, sub.UpAppID, sub.UpConnectorToken, sub.DisplayName,
		sub.TotalCount, sub.NewCount, sub.LastActive)
	if isConstraintErr(err) {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateSubscription, sub.BaseURL, sub.Topic)
	}
	return err
}

const subscriptionColumns = `id, base_url, topic, instant, muted_until, min_priority,
	last_notification_id, up_app_id, up_connector_token, display_name,
	total_count, new_count, last_active`

// GetSubscription retrieves a subscription by ID.
func (s *Store) GetSubscription(id string) (*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySubscription(`SELECT `+subscriptionColumns+` FROM subscription WHERE id = ?`, id)
}

// GetSubscriptionByTopic retrieves a subscription by its (base URL, topic)
// pair.
func (s *Store) GetSubscriptionByTopic(baseURL, topic string) (*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySubscription(
		`SELECT `+subscriptionColumns+` FROM subscription WHERE base_url = ? AND topic = ?`,
		baseURL, topic)
}

// GetSubscriptionByConnectorToken retrieves a subscription by its push
// connector token.
func (s *Store) GetSubscriptionByConnectorToken(token string) (*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.querySubscription(
		`SELECT `+subscriptionColumns+` FROM subscription WHERE up_connector_token = ? AND up_connector_token != ''`,
		token)
}

func (s *Store) querySubscription(query string, args ...any) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.QueryRow(query, args...).Scan(
		&sub.ID, &sub.BaseURL, &sub.Topic, &sub.Instant, &sub.MutedUntil, &sub.MinPriority,
		&sub.LastNotificationID, &sub.UpAppID, &sub.UpConnectorToken, &sub.DisplayName,
		&sub.TotalCount, &sub.NewCount, &sub.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscriptions lists all subscriptions.
func (s *Store) Subscriptions() ([]*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT ` + subscriptionColumns + ` FROM subscription ORDER BY base_url, topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		var sub model.Subscription
		if err := rows.Scan(
			&sub.ID, &sub.BaseURL, &sub.Topic, &sub.Instant, &sub.MutedUntil, &sub.MinPriority,
			&sub.LastNotificationID, &sub.UpAppID, &sub.UpConnectorToken, &sub.DisplayName,
			&sub.TotalCount, &sub.NewCount, &sub.LastActive); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// UpdateSubscription updates all mutable fields of a subscription.
func (s *Store) UpdateSubscription(sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE subscription
		SET base_url = ?, topic = ?, instant = ?, muted_until = ?, min_priority = ?,
			last_notification_id = ?, up_app_id = ?, up_connector_token = ?,
			display_name = ?, total_count = ?, new_count = ?, last_active = ?
		WHERE id = ?
	`, sub.BaseURL, sub.Topic, sub.Instant, sub.MutedUntil, sub.MinPriority,
		sub.LastNotificationID, sub.UpAppID, sub.UpConnectorToken,
		sub.DisplayName, sub.TotalCount, sub.NewCount, sub.LastActive, sub.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetMutedUntil mutes or unmutes a subscription. Zero unmutes.
func (s *Store) SetMutedUntil(id string, mutedUntil int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE subscription SET muted_until = ? WHERE id = ?`, mutedUntil, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RemoveSubscription deletes a subscription and, via the foreign key
// cascade, its notifications.
func (s *Store) RemoveSubscription(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM subscription WHERE id = ?`, id)
	return err
}

// AddNotification persists a notification keyed by (subscription ID,
// notification ID). It returns added=false when a notification with that
// key already exists; the uniqueness constraint is the sole source of
// truth, so concurrent callers for the same key see exactly one true.
// On a successful insert the subscription's resume cursor advances.
func (s *Store) AddNotification(n *model.Notification) (added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, attachment, err := encodeRichFields(n)
	if err != nil {
		return false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT OR IGNORE INTO notification (id, subscription_id, timestamp, title, message,
			encoding, priority, tags, click, icon, actions, attachment, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.SubscriptionID, n.Timestamp, n.Title, n.Message,
		n.Encoding, n.Priority, n.Tags, n.Click, n.Icon, actions, attachment, n.Deleted)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	_, err = tx.Exec(`
		UPDATE subscription SET last_notification_id = ?, last_active = ? WHERE id = ?
	`, n.ID, time.Now().Unix(), n.SubscriptionID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// IncrementCounters adds the given deltas to a subscription's total and
// new notification counters.
func (s *Store) IncrementCounters(subscriptionID string, total, unseen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE subscription SET total_count = total_count + ?, new_count = new_count + ?
		WHERE id = ?
	`, total, unseen, subscriptionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ClearNewCount marks all of a subscription's notifications as seen.
func (s *Store) ClearNewCount(subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE subscription SET new_count = 0 WHERE id = ?`, subscriptionID)
	return err
}

// GetNotification retrieves one notification by its (subscription ID,
// notification ID) key.
func (s *Store) GetNotification(subscriptionID, id string) (*model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, subscription_id, timestamp, title, message, encoding, priority,
			tags, click, icon, actions, attachment, deleted
		FROM notification WHERE subscription_id = ? AND id = ?
	`, subscriptionID, id)
	return scanNotification(row)
}

// Notifications lists a subscription's notifications, newest first,
// excluding tombstoned entries.
func (s *Store) Notifications(subscriptionID string) ([]*model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, subscription_id, timestamp, title, message, encoding, priority,
			tags, click, icon, actions, attachment, deleted
		FROM notification
		WHERE subscription_id = ? AND deleted = 0
		ORDER BY timestamp DESC, id
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationDeleted tombstones a notification. The row stays in
// place so replayed deliveries of the same ID are still deduplicated.
func (s *Store) MarkNotificationDeleted(subscriptionID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE notification SET deleted = 1 WHERE subscription_id = ? AND id = ?
	`, subscriptionID, id)
	return err
}

// PruneNotifications removes tombstoned notifications older than the
// given epoch-seconds timestamp.
func (s *Store) PruneNotifications(subscriptionID string, olderThan int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM notification
		WHERE subscription_id = ? AND deleted = 1 AND timestamp < ?
	`, subscriptionID, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	var n model.Notification
	var actions, attachment sql.NullString
	err := row.Scan(&n.ID, &n.SubscriptionID, &n.Timestamp, &n.Title, &n.Message,
		&n.Encoding, &n.Priority, &n.Tags, &n.Click, &n.Icon, &actions, &attachment, &n.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if actions.Valid && actions.String != "" {
		if err := json.Unmarshal([]byte(actions.String), &n.Actions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
	}
	if attachment.Valid && attachment.String != "" {
		n.Attachment = &model.Attachment{}
		if err := json.Unmarshal([]byte(attachment.String), n.Attachment); err != nil {
			return nil, fmt.Errorf("decode attachment: %w", err)
		}
	}
	return &n, nil
}

func encodeRichFields(n *model.Notification) (actions, attachment sql.NullString, err error) {
	if len(n.Actions) > 0 {
		data, err := json.Marshal(n.Actions)
		if err != nil {
			return actions, attachment, fmt.Errorf("encode actions: %w", err)
		}
		actions = sql.NullString{String: string(data), Valid: true}
	}
	if n.Attachment != nil {
		data, err := json.Marshal(n.Attachment)
		if err != nil {
			return actions, attachment, fmt.Errorf("encode attachment: %w", err)
		}
		attachment = sql.NullString{String: string(data), Valid: true}
	}
	return actions, attachment, nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}
