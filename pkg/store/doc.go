// Package store provides SQLite persistence for subscriptions and
// notifications.
//
// The store enforces the engine's uniqueness invariants at the database
// level: one subscription per (base URL, topic), one subscription per
// connector token, and one notification per (subscription, notification
// ID). The notification key is the sole source of truth for
// deduplication; concurrent writers for the same key see exactly one
// insert succeed regardless of in-process locking.
package store
