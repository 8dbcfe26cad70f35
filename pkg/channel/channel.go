package channel

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotification marks every failed push to the messaging platform.
var ErrNotification = errors.New("notification error")

// MessageKind names the outbound message shape.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

// NotificationError describes a push that the platform did not accept.
type NotificationError struct {
	UserID string
	Kind   MessageKind
	Err    error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("push %s message to %s: %v", e.Kind, e.UserID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func (e *NotificationError) Is(target error) bool { return target == ErrNotification }

// Notifier pushes messages to one user on an external messaging platform.
type Notifier interface {
	PushText(ctx context.Context, userID, text string) error
	PushImage(ctx context.Context, userID, url, previewURL string) error
}
