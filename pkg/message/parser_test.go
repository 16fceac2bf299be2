package message

import (
	"errors"
	"testing"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
)

func TestParseFullMessage(t *testing.T) {
	payload := `{
		"id": "abc123",
		"time": 1700000000,
		"event": "message",
		"topic": "alerts",
		"priority": 4,
		"tags": ["warning", "skull"],
		"click": "https://example.org",
		"title": "Disk space",
		"message": "Disk is almost full",
		"icon": "https://example.org/icon.png",
		"attachment": {"name": "graph.png", "type": "image/png", "size": 1234, "url": "https://example.org/graph.png"},
		"actions": [{"id": "a1", "action": "view", "label": "Open", "url": "https://example.org"}]
	}`

	n, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.ID != "abc123" {
		t.Errorf("ID = %q", n.ID)
	}
	if n.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d", n.Timestamp)
	}
	if n.Priority != 4 {
		t.Errorf("Priority = %d, want 4", n.Priority)
	}
	if n.Tags != "warning,skull" {
		t.Errorf("Tags = %q", n.Tags)
	}
	if n.Title != "Disk space" || n.Message != "Disk is almost full" {
		t.Errorf("Title/Message = %q/%q", n.Title, n.Message)
	}
	if n.Attachment == nil || n.Attachment.URL != "https://example.org/graph.png" {
		t.Errorf("Attachment = %+v", n.Attachment)
	}
	if len(n.Actions) != 1 || n.Actions[0].Label != "Open" {
		t.Errorf("Actions = %+v", n.Actions)
	}
	if n.SubscriptionID != "" {
		t.Errorf("SubscriptionID = %q, want unset", n.SubscriptionID)
	}
}

func TestParseDefaultsPriority(t *testing.T) {
	n, err := Parse([]byte(`{"id":"n1","message":"hi"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Priority != model.PriorityDefault {
		t.Errorf("Priority = %d, want default %d", n.Priority, model.PriorityDefault)
	}
}

func TestParseClampsInvalidPriority(t *testing.T) {
	n, err := Parse([]byte(`{"id":"n1","message":"hi","priority":99}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Priority != model.PriorityDefault {
		t.Errorf("Priority = %d, want default for out-of-range", n.Priority)
	}
}

func TestParseRejectsNonMessageEvent(t *testing.T) {
	_, err := Parse([]byte(`{"id":"k1","event":"keepalive"}`))
	if !errors.Is(err, ErrNotMessage) {
		t.Errorf("err = %v, want ErrNotMessage", err)
	}
}

func TestParseRejectsMissingID(t *testing.T) {
	_, err := Parse([]byte(`{"message":"hi"}`))
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("err = %v, want ErrMissingID", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte(`{"id":`)); err == nil {
		t.Error("Parse of invalid JSON should fail")
	}
}

func TestParseAttachmentWithoutURLDropped(t *testing.T) {
	n, err := Parse([]byte(`{"id":"n1","message":"hi","attachment":{"name":"x"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Attachment != nil {
		t.Errorf("Attachment = %+v, want nil without URL", n.Attachment)
	}
}
