package compute

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"imagebot/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// ErrBackend marks every failure raised while generating an image.
var ErrBackend = errors.New("backend error")

// BackendError describes why an invocation produced no image.
type BackendError struct {
	Reason string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return "compute backend: " + e.Reason
	}
	return fmt.Sprintf("compute backend: %s: %v", e.Reason, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// invokeEnvelope is the API Gateway style event the ComfyUI function reads.
type invokeEnvelope struct {
	Body string `json:"body"`
}

// resultEnvelope is the function's reply; Body holds the base64 image on success.
type resultEnvelope struct {
	StatusCode *int   `json:"statusCode,omitempty"`
	Body       string `json:"body"`
}

type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker calls the ComfyUI Lambda synchronously.
type LambdaInvoker struct {
	functionName string
	client       lambdaInvoker
	log          *slog.Logger
}

// NewLambdaInvoker validates compute settings and wraps a Lambda client.
func NewLambdaInvoker(cfg config.ComputeConfig, client *lambda.Client, log *slog.Logger) (*LambdaInvoker, error) {
	if client == nil {
		return nil, errors.New("lambda client is required")
	}
	return newLambdaInvoker(cfg, client, log)
}

func newLambdaInvoker(cfg config.ComputeConfig, client lambdaInvoker, log *slog.Logger) (*LambdaInvoker, error) {
	functionName := strings.TrimSpace(cfg.FunctionName)
	if functionName == "" {
		return nil, errors.New("compute.function_name is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &LambdaInvoker{
		functionName: functionName,
		client:       client,
		log:          log.With("component", "compute.lambda"),
	}, nil
}

// Invoke blocks until the function returns and yields the decoded image bytes.
func (i *LambdaInvoker) Invoke(ctx context.Context, req GenerationRequest) ([]byte, error) {
	payload, err := encodeInvokePayload(req)
	if err != nil {
		return nil, &BackendError{Reason: "encode request", Err: err}
	}

	started := time.Now()
	out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(i.functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, &BackendError{Reason: "invoke " + i.functionName, Err: err}
	}

	i.log.Debug("Compute function returned", "function", i.functionName, "status", out.StatusCode, "latency", time.Since(started), "bytes", len(out.Payload))

	if fnErr := aws.ToString(out.FunctionError); fnErr != "" {
		return nil, &BackendError{Reason: "function error " + fnErr, Err: errors.New(previewPayload(out.Payload))}
	}

	return decodeResult(out.Payload)
}

func encodeInvokePayload(req GenerationRequest) ([]byte, error) {
	inner, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	return json.Marshal(invokeEnvelope{Body: string(inner)})
}

func decodeResult(payload []byte) ([]byte, error) {
	var envelope resultEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &BackendError{Reason: "decode envelope", Err: err}
	}

	if envelope.StatusCode != nil && *envelope.StatusCode >= http.StatusBadRequest {
		return nil, &BackendError{Reason: fmt.Sprintf("status %d", *envelope.StatusCode), Err: errors.New(previewPayload([]byte(envelope.Body)))}
	}

	if envelope.Body == "" {
		return nil, &BackendError{Reason: "empty body"}
	}

	image, err := base64.StdEncoding.DecodeString(envelope.Body)
	if err != nil {
		return nil, &BackendError{Reason: "decode image", Err: err}
	}

	return image, nil
}

const payloadPreviewLimit = 200

func previewPayload(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	runes := []rune(text)
	if len(runes) <= payloadPreviewLimit {
		return text
	}
	return string(runes[:payloadPreviewLimit]) + "..."
}
