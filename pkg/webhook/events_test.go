package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEventsPreservesOrderAndShape(t *testing.T) {
	body := []byte(`{"destination":"Uxxx","events":[
	  {"type":"message","message":{"type":"text","id":"1","text":"a red fox"},"source":{"type":"user","userId":"U1"},"replyToken":"r1"},
	  {"type":"follow","source":{"type":"user","userId":"U2"}},
	  {"type":"message","message":{"type":"sticker","packageId":"1","stickerId":"2"},"source":{"type":"user","userId":"U3"}},
	  {"type":"message","message":{"type":"text","text":"blue sky"},"source":{"type":"group","groupId":"G1","userId":"U4"}}
	]}`)

	events, err := ParseEvents(body)
	require.NoError(t, err)
	require.Equal(t, []MessageEvent{
		{EventType: "message", MessageType: "text", UserID: "U1", Text: "a red fox"},
		{EventType: "follow", UserID: "U2"},
		{EventType: "message", MessageType: "sticker", UserID: "U3"},
		{EventType: "message", MessageType: "text", UserID: "U4", Text: "blue sky"},
	}, events)

	require.True(t, events[0].IsTextMessage())
	require.False(t, events[1].IsTextMessage())
	require.False(t, events[2].IsTextMessage())
	require.True(t, events[3].IsTextMessage())
}

func TestParseEventsWithoutEvents(t *testing.T) {
	for _, body := range []string{`{}`, `{"events":[]}`, `{"events":{"type":"message"}}`} {
		events, err := ParseEvents([]byte(body))
		require.NoError(t, err, body)
		require.Empty(t, events, body)
	}
}

func TestParseEventsMalformed(t *testing.T) {
	_, err := ParseEvents([]byte(`{"events":[`))
	require.ErrorIs(t, err, ErrMalformedBody)
}

func TestTextEventWithoutUserIsNotProcessed(t *testing.T) {
	event := MessageEvent{EventType: "message", MessageType: "text", Text: "hi"}
	require.False(t, event.IsTextMessage())
}
