package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
)

// Parse errors.
var (
	ErrNotMessage = errors.New("not a message event")
	ErrMissingID  = errors.New("message has no id")
)

// Parse decodes a JSON message payload into a notification. Payloads whose
// event field is present but not "message" return ErrNotMessage; the
// caller should skip those rather than treat them as failures. An absent
// event field is accepted, since stream payloads carry the event name in
// the surrounding protocol frame instead.
func Parse(data []byte) (model.Notification, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return model.Notification{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Event != "" && m.Event != EventMessage {
		return model.Notification{}, ErrNotMessage
	}
	if m.ID == "" {
		return model.Notification{}, ErrMissingID
	}
	return m.notification(), nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}
