// Package log provides structured event logging for the subscriber engine.
//
// Components emit typed events (connection state changes, received
// notifications, registration outcomes, errors) through the Logger
// interface. Implementations include:
//
//   - NoopLogger: discards everything (the default)
//   - FileLogger: appends CBOR-encoded events to a file
//   - SlogAdapter: forwards events to a log/slog logger
//   - MultiLogger: fans events out to several loggers
//
// The CBOR file format uses integer keys for compactness and can be read
// back with Reader, optionally filtered by subscription, category, or time
// range.
package log
