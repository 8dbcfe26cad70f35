package webhook

import (
	"errors"

	"github.com/tidwall/gjson"
)

const (
	EventTypeMessage = "message"
	MessageTypeText  = "text"
)

// ErrMalformedBody is returned when a verified body is not valid JSON.
var ErrMalformedBody = errors.New("webhook body is not valid json")

// MessageEvent is the part of one webhook event the pipeline cares about.
type MessageEvent struct {
	EventType   string
	MessageType string
	UserID      string
	Text        string
}

// IsTextMessage reports whether the event should run through image generation.
func (e MessageEvent) IsTextMessage() bool {
	return e.EventType == EventTypeMessage && e.MessageType == MessageTypeText && e.UserID != ""
}

// ParseEvents extracts events in delivery order. Unknown event shapes are kept with
// whatever fields they carry so callers can skip them; a missing events array yields none.
func ParseEvents(body []byte) ([]MessageEvent, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedBody
	}

	list := gjson.GetBytes(body, "events")
	if !list.IsArray() {
		return nil, nil
	}

	items := list.Array()
	events := make([]MessageEvent, 0, len(items))
	for _, item := range items {
		event := MessageEvent{
			EventType: item.Get("type").String(),
			UserID:    item.Get("source.userId").String(),
		}
		if event.EventType == EventTypeMessage {
			event.MessageType = item.Get("message.type").String()
			if event.MessageType == MessageTypeText {
				event.Text = item.Get("message.text").String()
			}
		}
		events = append(events, event)
	}

	return events, nil
}
