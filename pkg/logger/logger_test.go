package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"imagebot/pkg/config"

	"github.com/stretchr/testify/require"
)

type testStage string

func decodeEntry(t *testing.T, out *bytes.Buffer) LogEntry {
	t.Helper()

	line := strings.TrimSpace(out.String())
	require.NotEmpty(t, line, "expected log output")

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func clearLoggingEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envLogLevel, "")
	t.Setenv(envLogFormat, "")
	t.Setenv(envLogAddSource, "")
	t.Setenv(envLambdaFunction, "")
}

func TestJSONEntryPromotesPipelineKeys(t *testing.T) {
	clearLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	require.NoError(t, err)

	log.With("component", "webhook.dispatcher", "user_id", "U123").
		Error("Image generation failed",
			"stage", testStage("invoke"),
			"request_id", "req-7",
			"error", errors.New("compute backend: status 500"),
			"event_index", 2,
		)

	entry := decodeEntry(t, &out)
	require.Equal(t, "error", entry.Level)
	require.Equal(t, "Image generation failed", entry.Message)
	require.Equal(t, "webhook.dispatcher", entry.Component)
	require.Equal(t, "U123", entry.UserID)
	require.Equal(t, "invoke", entry.Stage)
	require.Equal(t, "req-7", entry.RequestID)
	require.NotEmpty(t, entry.Timestamp)
	require.Equal(t, "compute backend: status 500", entry.Fields["error"])
	require.EqualValues(t, 2, entry.Fields["event_index"])
	require.NotContains(t, entry.Fields, "stage")
	require.NotContains(t, entry.Fields, "user_id")
}

func TestJSONEntryRedactsCredentials(t *testing.T) {
	clearLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &out)
	require.NoError(t, err)

	log.Info("Loaded line settings",
		"channel_secret", "s3cr3t",
		slog.Group("line", slog.String("channel_access_token", "tok"), slog.String("status_text", "wait")),
	)

	entry := decodeEntry(t, &out)
	require.Equal(t, redacted, entry.Fields["channel_secret"])

	group, ok := entry.Fields["line"].(map[string]any)
	require.True(t, ok, "expected grouped field, got %T", entry.Fields["line"])
	require.Equal(t, redacted, group["channel_access_token"])
	require.Equal(t, "wait", group["status_text"])
	require.NotContains(t, out.String(), "s3cr3t")
}

func TestGroupedKeysAreNotPromoted(t *testing.T) {
	clearLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &out)
	require.NoError(t, err)

	log.WithGroup("upstream").Info("Compute function returned", "stage", "invoke")

	entry := decodeEntry(t, &out)
	require.Empty(t, entry.Stage)
	require.Equal(t, "invoke", entry.Fields["upstream.stage"])
}

func TestLevelFiltering(t *testing.T) {
	clearLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	require.NoError(t, err)

	log.Info("Ignored")
	require.Empty(t, strings.TrimSpace(out.String()))

	log.Error("Kept")
	require.NotEmpty(t, strings.TrimSpace(out.String()))
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	clearLoggingEnv(t)
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envLogFormat, "text")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	require.NoError(t, err)

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	require.NotEmpty(t, line)
	require.False(t, strings.HasPrefix(line, "{"), "expected text format override, got %q", line)
}

func TestFormatDefaults(t *testing.T) {
	t.Run("text outside lambda", func(t *testing.T) {
		clearLoggingEnv(t)

		var out bytes.Buffer
		log, err := newWithWriter(config.LoggingConfig{}, &out)
		require.NoError(t, err)

		log.Info("Default format")
		require.False(t, strings.HasPrefix(strings.TrimSpace(out.String()), "{"))
	})

	t.Run("json inside lambda", func(t *testing.T) {
		clearLoggingEnv(t)
		t.Setenv(envLambdaFunction, "imagebot-webhook")

		var out bytes.Buffer
		log, err := newWithWriter(config.LoggingConfig{}, &out)
		require.NoError(t, err)

		log.Info("Default format")
		require.Equal(t, "Default format", decodeEntry(t, &out).Message)
	})

	t.Run("explicit text inside lambda", func(t *testing.T) {
		clearLoggingEnv(t)
		t.Setenv(envLambdaFunction, "imagebot-webhook")

		opts, err := resolveOptions(config.LoggingConfig{Format: "TEXT"})
		require.NoError(t, err)
		require.Equal(t, formatText, opts.format)
	})
}

func TestResolveOptionsRejectsUnknownValues(t *testing.T) {
	clearLoggingEnv(t)

	_, err := resolveOptions(config.LoggingConfig{Format: "xml"})
	require.ErrorContains(t, err, "unsupported log format")

	_, err = resolveOptions(config.LoggingConfig{Level: "verbose"})
	require.ErrorContains(t, err, "unsupported log level")
}

func TestAddSourceFromEnvironment(t *testing.T) {
	clearLoggingEnv(t)
	t.Setenv(envLogAddSource, "yes")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json"}, &out)
	require.NoError(t, err)

	log.Info("With caller")
	require.Contains(t, decodeEntry(t, &out).Caller, "logger_test.go:")
}
