package event

import (
	"testing"
)

func feed(t *testing.T, p *Parser, lines []string) []Event {
	t.Helper()
	var events []Event
	for _, line := range lines {
		if ev, ok := p.Line(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

func TestParserSingleMessage(t *testing.T) {
	p := NewParser()
	events := feed(t, p, []string{
		"event: message",
		`data: {"id":"n1","message":"hi"}`,
		"",
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != KindMessage {
		t.Errorf("Kind = %q, want %q", events[0].Kind, KindMessage)
	}
	if string(events[0].Data) != `{"id":"n1","message":"hi"}` {
		t.Errorf("Data = %s", events[0].Data)
	}
}

func TestParserEventCountMatchesTerminators(t *testing.T) {
	p := NewParser()
	events := feed(t, p, []string{
		"event: open",
		"",
		"event: keepalive",
		"",
		"event: message",
		`data: {"id":"n1"}`,
		"",
		"event: message", // no terminator, must not emit
	})

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	want := []Kind{KindOpen, KindKeepalive, KindMessage}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d: Kind = %q, want %q", i, events[i].Kind, k)
		}
	}
}

func TestParserLastLineWins(t *testing.T) {
	p := NewParser()
	events := feed(t, p, []string{
		"event: open",
		"event: message",
		`data: {"id":"a"}`,
		`data: {"id":"b"}`,
		"",
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != KindMessage {
		t.Errorf("Kind = %q, want message", events[0].Kind)
	}
	if string(events[0].Data) != `{"id":"b"}` {
		t.Errorf("Data = %s, want last data line", events[0].Data)
	}
}

func TestParserMalformedDataDropped(t *testing.T) {
	p := NewParser()
	events := feed(t, p, []string{
		"event: message",
		"data: {not json",
		"",
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != KindMessage {
		t.Errorf("Kind = %q, want message", events[0].Kind)
	}
	if events[0].Data != nil {
		t.Errorf("Data = %s, want nil for malformed payload", events[0].Data)
	}
}

func TestParserStateResetsBetweenEvents(t *testing.T) {
	p := NewParser()
	events := feed(t, p, []string{
		"event: message",
		`data: {"id":"n1"}`,
		"",
		"", // second blank line emits an empty event, not a stale copy
	})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Kind != "" || events[1].Data != nil {
		t.Errorf("second event not empty: kind=%q data=%s", events[1].Kind, events[1].Data)
	}
}

func TestParserIgnoresUnknownLines(t *testing.T) {
	p := NewParser()
	events := feed(t, p, []string{
		": comment",
		"id: 42",
		"event: keepalive",
		"",
	})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != KindKeepalive {
		t.Errorf("Kind = %q, want keepalive", events[0].Kind)
	}
}

func TestParserReset(t *testing.T) {
	p := NewParser()
	p.Line("event: message")
	p.Line(`data: {"id":"n1"}`)
	p.Reset()

	ev, ok := p.Line("")
	if !ok {
		t.Fatal("terminator after reset should still emit")
	}
	if ev.Kind != "" || ev.Data != nil {
		t.Errorf("event after reset not empty: kind=%q data=%s", ev.Kind, ev.Data)
	}
}
