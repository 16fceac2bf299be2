// Package connection maintains long-lived event streams, one per
// subscription, with automatic reconnection.
//
// Each stream runs its own goroutine through a connect / read / back off
// loop. Backoff is exponential with jitter and resets once a stream is
// confirmed open, so a brief outage after a long stable connection
// recovers quickly. A silence watchdog tears down connections that stop
// producing lines, catching half-open TCP connections that would
// otherwise hang forever.
package connection
