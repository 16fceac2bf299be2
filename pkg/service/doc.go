// Package service assembles the subscription engine: persistence,
// stream supervision, notification ingestion and push registration,
// wired together behind one facade.
//
// Notifications reach the engine over two paths: long-lived event
// streams managed by the supervisor, and push payloads handed in via
// HandlePushMessage. Both converge on the same ingestion engine, which
// deduplicates against the store and decides whether to display and
// whether to broadcast. The service performs the resulting side effects
// through the DisplaySink and Broadcaster ports.
package service
