// Package model defines the core data types shared across the subscriber
// engine: subscriptions, notifications and their rich fields, priority
// levels, and the topic URL helpers used by the connection, polling and
// push-registration layers.
package model
