package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	linewebhook "github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader carries the channel signature of the raw request body.
const SignatureHeader = "x-line-signature"

// Sign returns base64(HMAC-SHA256(secret, body)), the value LINE sends in SignatureHeader.
// The SDK only validates, so signing for replays and tests lives here.
func Sign(secret string, body []byte) string {
	return base64.StdEncoding.EncodeToString(mac(secret, body))
}

// Verify reports whether signature matches body under secret using the LINE SDK's
// constant-time check. The comparison runs over the raw bytes as delivered; re-encoded
// JSON will not verify.
func Verify(secret, signature string, body []byte) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}

	return linewebhook.ValidateSignature(secret, signature, body)
}

func mac(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
