// Package ingest decides what happens to an incoming notification:
// persist, deduplicate, display, broadcast, or drop.
//
// Every delivery path feeds the same engine, so a notification that
// arrives twice over different transports is still stored and displayed
// at most once. The engine returns a dispatch decision and performs no
// sink I/O itself, keeping the policy unit-testable.
package ingest
