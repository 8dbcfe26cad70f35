package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"imagebot/pkg/telemetry"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/spf13/cobra"
)

const (
	payloadV1 = "v1"
	payloadV2 = "v2"

	flushTimeout = 2 * time.Second
)

var lambdaPayloadVersion string

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run the webhook gateway inside AWS Lambda",
	Long: "Serves the same router inside Lambda. --payload v2 (default) accepts function URL and " +
		"API Gateway HTTP API events; --payload v1 accepts API Gateway REST API proxy events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		if err := validatePayloadVersion(lambdaPayloadVersion); err != nil {
			return err
		}

		a, err := newApp(context.Background(), "cmd.lambda")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to start: %v\n", err)
			return err
		}

		handler, err := lambdaHandlerFor(lambdaPayloadVersion, a.service.Handler(), telemetry.ForceFlush, a.log)
		if err != nil {
			return err
		}

		a.service.MarkStarted()
		a.log.Info("Lambda handler started", "payload", lambdaPayloadVersion)

		awslambda.Start(handler)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
	lambdaCmd.Flags().StringVar(&lambdaPayloadVersion, "payload", payloadV2, "event payload version: v1 (REST API) or v2 (HTTP API, function URL)")
}

func validatePayloadVersion(version string) error {
	if version != payloadV1 && version != payloadV2 {
		return fmt.Errorf("unsupported payload version %q (want %s or %s)", version, payloadV1, payloadV2)
	}
	return nil
}

// lambdaHandlerFor adapts the router to the Lambda event shape of the given payload version.
func lambdaHandlerFor(version string, router http.Handler, flush func(context.Context) error, log *slog.Logger) (any, error) {
	if err := validatePayloadVersion(version); err != nil {
		return nil, err
	}
	if version == payloadV1 {
		return flushAfter(httpadapter.New(router).ProxyWithContext, flush, log), nil
	}
	return flushAfter(httpadapter.NewV2(router).ProxyWithContext, flush, log), nil
}

// flushAfter exports buffered spans before each invocation returns, since the environment may
// be frozen as soon as the response is sent.
func flushAfter[Req, Resp any](proxy func(context.Context, Req) (Resp, error), flush func(context.Context) error, log *slog.Logger) func(context.Context, Req) (Resp, error) {
	if flush == nil {
		return proxy
	}
	if log == nil {
		log = slog.Default()
	}

	return func(ctx context.Context, req Req) (Resp, error) {
		resp, err := proxy(ctx, req)

		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if flushErr := flush(flushCtx); flushErr != nil {
			log.Warn("Failed to flush traces", "error", flushErr)
		}
		return resp, err
	}
}

