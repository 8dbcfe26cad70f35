package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"imagebot/pkg/webhook"

	"github.com/spf13/cobra"
)

var (
	signBodyFile string
	signSecret   string
)

// signCmd prints the x-line-signature for a body so deliveries can be replayed by hand.
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print the webhook signature for a request body",
	Long:  "Reads a request body from --file (or stdin) and prints base64(HMAC-SHA256(channel secret, body)).",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		secret, err := resolveSecret(signSecret)
		if err != nil {
			return err
		}

		body, err := readBody(cmd.InOrStdin(), signBodyFile)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(secret, body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVarP(&signBodyFile, "file", "f", "", "file containing the raw request body (default stdin)")
	signCmd.Flags().StringVarP(&signSecret, "secret", "s", "", "channel secret (default $LINE_CHANNEL_SECRET)")
}

func resolveSecret(flagValue string) (string, error) {
	if value := strings.TrimSpace(flagValue); value != "" {
		return value, nil
	}

	if value := strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET")); value != "" {
		return value, nil
	}

	return "", errors.New("channel secret is required (--secret or LINE_CHANNEL_SECRET)")
}

// readBody returns the exact bytes to sign; no trimming, since the signature covers every byte.
func readBody(stdin io.Reader, path string) ([]byte, error) {
	if path == "" {
		body, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return body, nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read body file: %w", err)
	}
	return body, nil
}
