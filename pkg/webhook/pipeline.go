package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagebot/pkg/compute"
	"imagebot/pkg/metrics"
	"imagebot/pkg/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "imagebot/pkg/webhook"

// Stage names one step of the per-event pipeline.
type Stage string

const (
	StageNotifyStart  Stage = "notify_start"
	StageBuildRequest Stage = "build_request"
	StageInvoke       Stage = "invoke"
	StagePersist      Stage = "persist"
	StageNotifyResult Stage = "notify_result"
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or "" when err carries none.
func FailedStage(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// Outcome is the terminal result of one pipeline run.
type Outcome string

const (
	OutcomeImageSent    Outcome = "image_sent"
	OutcomeErrorSent    Outcome = "error_sent"
	OutcomeNotifyFailed Outcome = "notify_failed"
)

// Result summarises one processed message event.
type Result struct {
	Event    MessageEvent
	Outcome  Outcome
	ImageURL string
	Err      error
}

// runStage executes fn inside a span, records its duration and wraps failures with the
// stage name. A panic inside fn becomes a stage failure.
func runStage[T any](ctx context.Context, stage Stage, fn func(context.Context) (T, error)) (out T, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline."+string(stage))
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(started).Seconds())
		if err != nil {
			metrics.StageFailures.WithLabelValues(string(stage)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var zero T
			out = zero
			err = &StageError{Stage: stage, Err: err}
		}
		span.End()
	}()

	return fn(ctx)
}

// generate runs Build Request, Invoke and Persist, stopping at the first failure.
func (d *Dispatcher) generate(ctx context.Context, prompt string) (storage.StoredImage, error) {
	req, err := runStage(ctx, StageBuildRequest, func(context.Context) (compute.GenerationRequest, error) {
		return d.policy.BuildRequest(prompt), nil
	})
	if err != nil {
		return storage.StoredImage{}, err
	}

	image, err := runStage(ctx, StageInvoke, func(ctx context.Context) ([]byte, error) {
		return d.invoker.Invoke(ctx, req)
	})
	if err != nil {
		return storage.StoredImage{}, err
	}

	return runStage(ctx, StagePersist, func(ctx context.Context) (storage.StoredImage, error) {
		return d.store.Store(ctx, image)
	})
}

// process runs the full pipeline for one text message event. It always attempts exactly one
// terminal notification: the image on success, the generic error text otherwise.
func (d *Dispatcher) process(ctx context.Context, index int, event MessageEvent) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.event")
	defer span.End()

	log := d.log.With("user_id", event.UserID, "event_index", index)
	log.Info("Received prompt", "content", previewText(event.Text))

	if _, err := runStage(ctx, StageNotifyStart, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.notifier.PushText(ctx, event.UserID, d.statusText)
	}); err != nil {
		log.Warn("Failed to send status message", "stage", StageNotifyStart, "error", err)
	}

	result := Result{Event: event}

	image, genErr := d.generate(ctx, event.Text)
	if genErr != nil {
		log.Error("Image generation failed", "stage", FailedStage(genErr), "cause", causeKind(genErr), "error", genErr)

		if _, err := runStage(ctx, StageNotifyResult, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.notifier.PushText(ctx, event.UserID, d.errorText)
		}); err != nil {
			log.Error("Failed to send error message", "stage", StageNotifyResult, "error", err)
			result.Outcome = OutcomeNotifyFailed
			result.Err = errors.Join(genErr, err)
			return d.finish(span, result)
		}

		result.Outcome = OutcomeErrorSent
		result.Err = genErr
		return d.finish(span, result)
	}

	if _, err := runStage(ctx, StageNotifyResult, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.notifier.PushImage(ctx, event.UserID, image.URL, image.URL)
	}); err != nil {
		log.Error("Failed to send image message", "stage", StageNotifyResult, "key", image.Key, "error", err)
		result.Outcome = OutcomeNotifyFailed
		result.Err = err
		return d.finish(span, result)
	}

	log.Info("Image delivered", "key", image.Key, "expires_at", image.ExpiresAt)
	result.Outcome = OutcomeImageSent
	result.ImageURL = image.URL
	return d.finish(span, result)
}

func (d *Dispatcher) finish(span trace.Span, result Result) Result {
	metrics.PipelineOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	if result.Err != nil {
		span.SetStatus(codes.Error, string(result.Outcome))
	}
	if d.onResult != nil {
		d.onResult(result)
	}
	return result
}

// causeKind classifies a pipeline failure for logs.
func causeKind(err error) string {
	switch {
	case errors.Is(err, compute.ErrBackend):
		return "backend"
	case errors.Is(err, storage.ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}
