package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"imagebot/pkg/channel"
	"imagebot/pkg/compute"
	"imagebot/pkg/metrics"
	"imagebot/pkg/storage"
)

const (
	maxBodyBytes        = 1 << 20
	messagePreviewLimit = 240
)

// Invoker turns a generation request into raw image bytes.
type Invoker interface {
	Invoke(ctx context.Context, req compute.GenerationRequest) ([]byte, error)
}

// Store persists image bytes and returns a presigned URL for them.
type Store interface {
	Store(ctx context.Context, data []byte) (storage.StoredImage, error)
}

// Response is the HTTP reply for one webhook delivery.
type Response struct {
	StatusCode int
	Body       map[string]string
}

var (
	responseOK               = Response{StatusCode: http.StatusOK, Body: map[string]string{"message": "OK"}}
	responseInvalidSignature = Response{StatusCode: http.StatusBadRequest, Body: map[string]string{"error": "Invalid signature"}}
)

// Options wires a Dispatcher to its collaborators.
type Options struct {
	ChannelSecret string
	Notifier      channel.Notifier
	Invoker       Invoker
	Store         Store
	Policy        compute.Policy
	StatusText    string
	ErrorText     string
	Logger        *slog.Logger

	// OnResult, when set, observes every finished pipeline run.
	OnResult func(Result)
}

// Dispatcher verifies webhook deliveries and runs image generation for each text message.
type Dispatcher struct {
	secret     string
	notifier   channel.Notifier
	invoker    Invoker
	store      Store
	policy     compute.Policy
	statusText string
	errorText  string
	onResult   func(Result)
	log        *slog.Logger
}

// New validates opts and builds a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	var errs []error
	if opts.ChannelSecret == "" {
		errs = append(errs, errors.New("channel secret is required"))
	}
	if opts.Notifier == nil {
		errs = append(errs, errors.New("notifier is required"))
	}
	if opts.Invoker == nil {
		errs = append(errs, errors.New("invoker is required"))
	}
	if opts.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if strings.TrimSpace(opts.StatusText) == "" {
		errs = append(errs, errors.New("status text is required"))
	}
	if strings.TrimSpace(opts.ErrorText) == "" {
		errs = append(errs, errors.New("error text is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		secret:     opts.ChannelSecret,
		notifier:   opts.Notifier,
		invoker:    opts.Invoker,
		store:      opts.Store,
		policy:     opts.Policy,
		statusText: opts.StatusText,
		errorText:  opts.ErrorText,
		onResult:   opts.OnResult,
		log:        log.With("component", "webhook.dispatcher"),
	}, nil
}

// Handle processes one delivery. Only a signature mismatch produces a non-200 response;
// per-event failures are reported to the user and logged.
func (d *Dispatcher) Handle(ctx context.Context, signature string, body []byte) Response {
	if !Verify(d.secret, signature, body) {
		metrics.WebhookDeliveries.WithLabelValues("invalid_signature").Inc()
		d.log.Warn("Rejected webhook with invalid signature", "signature_present", signature != "")
		return responseInvalidSignature
	}
	metrics.WebhookDeliveries.WithLabelValues("ok").Inc()

	// Calls issued for an event run to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	events, err := ParseEvents(body)
	if err != nil {
		d.log.Warn("Ignoring webhook body", "error", err)
		return responseOK
	}

	for i, event := range events {
		if !event.IsTextMessage() {
			metrics.WebhookEvents.WithLabelValues("ignored").Inc()
			d.log.Debug("Ignoring event", "event_index", i, "type", event.EventType, "message_type", event.MessageType)
			continue
		}

		metrics.WebhookEvents.WithLabelValues("processed").Inc()
		d.process(ctx, i, event)
	}

	return responseOK
}

// ServeHTTP adapts Handle to net/http, reading the raw body and signature header.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		// An unreadable body cannot match any signature.
		d.log.Warn("Failed to read webhook body", "error", err)
		d.write(w, responseInvalidSignature)
		return
	}

	d.write(w, d.Handle(r.Context(), r.Header.Get(SignatureHeader), body))
}

func (d *Dispatcher) write(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if err := json.NewEncoder(w).Encode(resp.Body); err != nil {
		d.log.Error("Failed to write webhook response", "error", err)
	}
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
