package event

import (
	"encoding/json"
	"strings"
)

// Kind identifies the type of a stream event.
type Kind string

// Event kinds sent by the server.
const (
	// KindOpen acknowledges a newly opened stream.
	KindOpen Kind = "open"

	// KindKeepalive is a periodic liveness signal carrying no content.
	KindKeepalive Kind = "keepalive"

	// KindMessage carries a notification payload in Data.
	KindMessage Kind = "message"

	// KindPollRequest asks the client to perform a poll round-trip.
	KindPollRequest Kind = "poll_request"
)

// Event is one parsed unit from the stream. Data is only set for message
// events and only when the payload was valid JSON.
type Event struct {
	Kind Kind
	Data json.RawMessage
}

// Parser accumulates lines into events. A Parser is valid for one
// connection; create a new one after a reconnect. The zero value is ready
// to use.
type Parser struct {
	pending Event
}

// NewParser returns a parser with empty accumulation state.
func NewParser() *Parser {
	return &Parser{}
}

// Line consumes one line from the stream. When the line terminates an
// event (a blank line), the accumulated event is returned with ok=true and
// the accumulation state resets. Lines that match no protocol rule are
// ignored.
func (p *Parser) Line(line string) (ev Event, ok bool) {
	switch {
	case strings.HasPrefix(line, "event:"):
		p.pending.Kind = Kind(strings.TrimSpace(line[len("event:"):]))
	case strings.HasPrefix(line, "data:"):
		data := strings.TrimSpace(line[len("data:"):])
		if json.Valid([]byte(data)) {
			p.pending.Data = json.RawMessage(data)
		}
		// Invalid payloads are dropped; the stream continues.
	case line == "":
		ev = p.pending
		p.pending = Event{}
		return ev, true
	}
	return Event{}, false
}

// Reset discards any partially accumulated event.
func (p *Parser) Reset() {
	p.pending = Event{}
}
