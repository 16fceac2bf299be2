package log

// Logger receives engine events. Pass nil-safe implementations only;
// components treat NoopLogger as "logging disabled".
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent
	// use and should return quickly; blocking stalls the stream loops.
	Log(event Event)
}

// NoopLogger discards all events. It is safe for concurrent use and
// usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
