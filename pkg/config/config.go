package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envConfigPath         = "IMAGEBOT_CONFIG"
	envChannelSecret      = "LINE_CHANNEL_SECRET"
	envChannelAccessToken = "LINE_CHANNEL_ACCESS_TOKEN"
	envComputeFunction    = "COMFYUI_LAMBDA_ARN"
	envImageBucket        = "IMAGE_BUCKET"
	envAWSRegion          = "AWS_REGION"
)

const (
	DefaultNegativePrompt    = "nsfw, nude, naked,"
	DefaultPromptFile        = "workflow_api.json"
	DefaultKeyPrefix         = "generated"
	DefaultContentType       = "image/jpeg"
	DefaultPresignTTLSeconds = 3600
	DefaultStatusText        = "画像を生成中です..."
	DefaultErrorText         = "申し訳ありません。画像の生成中にエラーが発生しました。"
	DefaultGatewayHost       = "0.0.0.0"
	DefaultGatewayPort       = 8080
	DefaultWebhookPath       = "/webhook"
	DefaultServiceName       = "imagebot"
)

// Config is the root runtime configuration loaded from config.json and the environment.
type Config struct {
	Line    LineConfig    `json:"line"`
	Compute ComputeConfig `json:"compute"`
	Storage StorageConfig `json:"storage"`
	Gateway GatewayConfig `json:"gateway"`
	Logging LoggingConfig `json:"logging,omitempty"`
	Tracing TracingConfig `json:"tracing,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// LineConfig configures the LINE Messaging API channel.
type LineConfig struct {
	ChannelSecret      string `json:"channel_secret"`
	ChannelAccessToken string `json:"channel_access_token"`
	StatusText         string `json:"status_text"`
	ErrorText          string `json:"error_text"`
}

// ComputeConfig configures the image-generation Lambda and its fixed request policy.
type ComputeConfig struct {
	FunctionName   string `json:"function_name"`
	NegativePrompt string `json:"negative_prompt"`
	PromptFile     string `json:"prompt_file"`
	Region         string `json:"region"`
}

// StorageConfig configures where generated images are written.
type StorageConfig struct {
	Bucket            string `json:"bucket"`
	KeyPrefix         string `json:"key_prefix"`
	ContentType       string `json:"content_type"`
	PresignTTLSeconds int    `json:"presign_ttl_seconds"`
	Region            string `json:"region"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	WebhookPath string `json:"webhook_path"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"service_name"`
}

// LoadConfig resolves config.json when present, unmarshals it, applies defaults and
// environment overrides. Validation is left to the caller.
func LoadConfig() (*Config, error) {
	// Real environment wins over .env values.
	_ = godotenv.Load()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Validate reports every missing or invalid required setting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	var errs []error
	if strings.TrimSpace(c.Line.ChannelSecret) == "" {
		errs = append(errs, errors.New("line.channel_secret is required"))
	}
	if strings.TrimSpace(c.Line.ChannelAccessToken) == "" {
		errs = append(errs, errors.New("line.channel_access_token is required"))
	}
	if strings.TrimSpace(c.Compute.FunctionName) == "" {
		errs = append(errs, errors.New("compute.function_name is required"))
	}
	if strings.TrimSpace(c.Compute.NegativePrompt) == "" {
		errs = append(errs, errors.New("compute.negative_prompt is required"))
	}
	if strings.TrimSpace(c.Compute.PromptFile) == "" {
		errs = append(errs, errors.New("compute.prompt_file is required"))
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	if c.Storage.PresignTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("storage.presign_ttl_seconds must be positive, got %d", c.Storage.PresignTTLSeconds))
	}

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	setDefault(&cfg.Line.StatusText, DefaultStatusText)
	setDefault(&cfg.Line.ErrorText, DefaultErrorText)
	setDefault(&cfg.Compute.NegativePrompt, DefaultNegativePrompt)
	setDefault(&cfg.Compute.PromptFile, DefaultPromptFile)
	setDefault(&cfg.Storage.KeyPrefix, DefaultKeyPrefix)
	setDefault(&cfg.Storage.ContentType, DefaultContentType)
	setDefault(&cfg.Gateway.Host, DefaultGatewayHost)
	setDefault(&cfg.Gateway.WebhookPath, DefaultWebhookPath)
	setDefault(&cfg.Tracing.ServiceName, DefaultServiceName)

	if cfg.Storage.PresignTTLSeconds == 0 {
		cfg.Storage.PresignTTLSeconds = DefaultPresignTTLSeconds
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// applyEnvOverrides injects secrets and deployment identifiers on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	overrides := map[string]*string{
		envChannelSecret:      &cfg.Line.ChannelSecret,
		envChannelAccessToken: &cfg.Line.ChannelAccessToken,
		envComputeFunction:    &cfg.Compute.FunctionName,
		envImageBucket:        &cfg.Storage.Bucket,
	}
	for key, field := range overrides {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*field = value
		}
	}

	if region := strings.TrimSpace(os.Getenv(envAWSRegion)); region != "" {
		if cfg.Compute.Region == "" {
			cfg.Compute.Region = region
		}
		if cfg.Storage.Region == "" {
			cfg.Storage.Region = region
		}
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is IMAGEBOT_CONFIG first, then cwd-local fallback paths. An empty path with a nil
// error means no file is present and the environment alone configures the process.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
