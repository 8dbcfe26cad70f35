package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"imagebot/pkg/channel/line"
	"imagebot/pkg/compute"
	"imagebot/pkg/config"
	"imagebot/pkg/gateway"
	"imagebot/pkg/logger"
	"imagebot/pkg/storage"
	"imagebot/pkg/telemetry"
	"imagebot/pkg/webhook"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// app holds the process-wide collaborators shared by the serve and lambda commands.
type app struct {
	cfg            *config.Config
	log            *slog.Logger
	service        *gateway.Service
	shutdownTracer telemetry.ShutdownFunc
}

// loadSettings reads and validates configuration and installs the default logger.
func loadSettings() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, appLogger, nil
}

// newApp builds every client once and injects them into the dispatcher.
func newApp(ctx context.Context, component string) (*app, error) {
	cfg, appLogger, err := loadSettings()
	if err != nil {
		return nil, err
	}
	log := appLogger.With("component", component)

	shutdownTracer, err := telemetry.InitTracer(cfg.Tracing, os.Stderr, log)
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Region != "" {
			o.Region = cfg.Storage.Region
		}
	})
	lambdaClient := lambdasvc.NewFromConfig(awsCfg, func(o *lambdasvc.Options) {
		if cfg.Compute.Region != "" {
			o.Region = cfg.Compute.Region
		}
	})

	store, err := storage.NewS3Store(cfg.Storage, s3Client, appLogger)
	if err != nil {
		return nil, fmt.Errorf("configure storage: %w", err)
	}

	invoker, err := compute.NewLambdaInvoker(cfg.Compute, lambdaClient, appLogger)
	if err != nil {
		return nil, fmt.Errorf("configure compute: %w", err)
	}

	notifier, err := line.NewNotifier(cfg.Line, appLogger)
	if err != nil {
		return nil, fmt.Errorf("configure line channel: %w", err)
	}

	var service *gateway.Service
	dispatcher, err := webhook.New(webhook.Options{
		ChannelSecret: cfg.Line.ChannelSecret,
		Notifier:      notifier,
		Invoker:       invoker,
		Store:         store,
		Policy:        compute.PolicyFromConfig(cfg.Compute),
		StatusText:    cfg.Line.StatusText,
		ErrorText:     cfg.Line.ErrorText,
		Logger:        appLogger,
		OnResult:      func(result webhook.Result) { service.RecordResult(result) },
	})
	if err != nil {
		return nil, fmt.Errorf("configure webhook dispatcher: %w", err)
	}

	service, err = gateway.NewService(cfg.Gateway, dispatcher, appLogger)
	if err != nil {
		return nil, fmt.Errorf("configure gateway: %w", err)
	}

	log.Info("Image bridge configured",
		"function", cfg.Compute.FunctionName,
		"bucket", cfg.Storage.Bucket,
		"prompt_file", cfg.Compute.PromptFile,
		"presign_ttl_seconds", cfg.Storage.PresignTTLSeconds,
	)

	return &app{
		cfg:            cfg,
		log:            log,
		service:        service,
		shutdownTracer: shutdownTracer,
	}, nil
}
