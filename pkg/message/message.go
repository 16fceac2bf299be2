// Package message defines the JSON wire format of server messages and
// converts them into notifications. Both the stream path and the poll/push
// paths deliver payloads in this format.
package message

import "github.com/binwiederhier/ntfy-android-sub001/pkg/model"

// Wire event names. These mirror the stream event kinds; poll and push
// payloads embed the event name in the JSON body instead.
const (
	EventMessage     = "message"
	EventKeepalive   = "keepalive"
	EventPollRequest = "poll_request"
)

// EncodingBase64 marks a message whose body is base64-encoded binary data.
// Decoding is left to the display sink.
const EncodingBase64 = "base64"

// Message is the wire representation of one server message.
type Message struct {
	ID         string      `json:"id"`
	Time       int64       `json:"time"`
	Event      string      `json:"event"`
	Topic      string      `json:"topic"`
	Priority   int         `json:"priority,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	Click      string      `json:"click,omitempty"`
	Title      string      `json:"title,omitempty"`
	Message    string      `json:"message"`
	Encoding   string      `json:"encoding,omitempty"`
	Icon       string      `json:"icon,omitempty"`
	Actions    []Action    `json:"actions,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment is the wire representation of a message attachment.
type Attachment struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Expires int64  `json:"expires,omitempty"`
	URL     string `json:"url"`
}

// Action is the wire representation of a user action.
type Action struct {
	ID      string            `json:"id"`
	Action  string            `json:"action"`
	Label   string            `json:"label"`
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Clear   bool              `json:"clear,omitempty"`
}

// notification converts the wire message into the domain type. The
// subscription ID is assigned later, by the ingestion engine.
func (m *Message) notification() model.Notification {
	priority := m.Priority
	if priority < model.PriorityMin || priority > model.PriorityMax {
		priority = model.PriorityDefault
	}
	var attachment *model.Attachment
	if m.Attachment != nil && m.Attachment.URL != "" {
		attachment = &model.Attachment{
			Name:    m.Attachment.Name,
			Type:    m.Attachment.Type,
			Size:    m.Attachment.Size,
			Expires: m.Attachment.Expires,
			URL:     m.Attachment.URL,
		}
	}
	var actions []model.Action
	for _, a := range m.Actions {
		actions = append(actions, model.Action{
			ID:      a.ID,
			Action:  a.Action,
			Label:   a.Label,
			URL:     a.URL,
			Method:  a.Method,
			Headers: a.Headers,
			Body:    a.Body,
			Clear:   a.Clear,
		})
	}
	return model.Notification{
		ID:         m.ID,
		Timestamp:  m.Time,
		Title:      m.Title,
		Message:    m.Message,
		Encoding:   m.Encoding,
		Priority:   priority,
		Tags:       joinTags(m.Tags),
		Click:      m.Click,
		Icon:       m.Icon,
		Actions:    actions,
		Attachment: attachment,
	}
}
