package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagebot/pkg/webhook"

	"github.com/stretchr/testify/require"
)

func TestResolveSecret(t *testing.T) {
	t.Setenv("LINE_CHANNEL_SECRET", "from-env")

	got, err := resolveSecret(" flag ")
	require.NoError(t, err)
	require.Equal(t, "flag", got)

	got, err = resolveSecret("")
	require.NoError(t, err)
	require.Equal(t, "from-env", got)

	t.Setenv("LINE_CHANNEL_SECRET", "")
	_, err = resolveSecret("")
	require.Error(t, err)
}

func TestReadBodyKeepsExactBytes(t *testing.T) {
	body, err := readBody(strings.NewReader("{\"events\":[]}\n"), "")
	require.NoError(t, err)
	require.Equal(t, "{\"events\":[]}\n", string(body))

	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(" {} "), 0o600))
	body, err = readBody(nil, path)
	require.NoError(t, err)
	require.Equal(t, " {} ", string(body))

	_, err = readBody(nil, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestSignCommandPrintsSignature(t *testing.T) {
	body := `{"events":[{"type":"message","message":{"type":"text","text":"a red fox"},"source":{"userId":"U123"}}]}`

	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(body))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"sign", "--secret", "s3cr3t"})
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		signSecret = ""
		signBodyFile = ""
	})

	require.NoError(t, rootCmd.Execute())
	signature := strings.TrimSpace(out.String())
	require.Equal(t, webhook.Sign("s3cr3t", []byte(body)), signature)
	require.True(t, webhook.Verify("s3cr3t", signature, []byte(body)))
}
