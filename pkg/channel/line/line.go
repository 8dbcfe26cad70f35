package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"imagebot/pkg/channel"
	"imagebot/pkg/config"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const messagePreviewLimit = 240

type pushFunc func(ctx context.Context, req *messaging_api.PushMessageRequest) error

// Notifier pushes text and image messages through the LINE Messaging API.
type Notifier struct {
	push pushFunc
	log  *slog.Logger
}

var _ channel.Notifier = (*Notifier)(nil)

// NewNotifier validates the access token and builds a Messaging API client.
// Extra options (for example messaging_api.WithEndpoint) are forwarded to the SDK.
func NewNotifier(cfg config.LineConfig, log *slog.Logger, opts ...messaging_api.MessagingApiAPIOption) (*Notifier, error) {
	token := strings.TrimSpace(cfg.ChannelAccessToken)
	if token == "" {
		return nil, errors.New("line.channel_access_token is required")
	}

	api, err := messaging_api.NewMessagingApiAPI(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize line messaging api: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		push: func(ctx context.Context, req *messaging_api.PushMessageRequest) error {
			_, err := api.WithContext(ctx).PushMessage(req, "")
			return err
		},
		log: log.With("component", "channel.line"),
	}, nil
}

// PushText sends a plain text message.
func (n *Notifier) PushText(ctx context.Context, userID, text string) error {
	n.log.Info("Sending message", "user_id", userID, "kind", channel.KindText, "content", previewText(text))

	return n.send(ctx, userID, channel.KindText, &messaging_api.TextMessage{Text: text})
}

// PushImage sends an image message; LINE fetches both URLs itself.
func (n *Notifier) PushImage(ctx context.Context, userID, url, previewURL string) error {
	n.log.Info("Sending message", "user_id", userID, "kind", channel.KindImage)

	return n.send(ctx, userID, channel.KindImage, &messaging_api.ImageMessage{
		OriginalContentUrl: url,
		PreviewImageUrl:    previewURL,
	})
}

func (n *Notifier) send(ctx context.Context, userID string, kind channel.MessageKind, message messaging_api.MessageInterface) error {
	if strings.TrimSpace(userID) == "" {
		return &channel.NotificationError{UserID: userID, Kind: kind, Err: errors.New("user id is empty")}
	}

	err := n.push(ctx, &messaging_api.PushMessageRequest{
		To:       userID,
		Messages: []messaging_api.MessageInterface{message},
	})
	if err != nil {
		return &channel.NotificationError{UserID: userID, Kind: kind, Err: err}
	}

	return nil
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= messagePreviewLimit {
		return trimmed
	}

	return string(runes[:messagePreviewLimit]) + "..."
}
