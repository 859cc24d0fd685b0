package billing

import (
	"net/http"
	"strings"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// newStandardWebhook builds a verifier for secret. Secrets in the
// "whsec_<base64>" form are decoded; other secrets are used as raw bytes,
// which is how Polar hands them out.
func newStandardWebhook(secret string) (*standardwebhooks.Webhook, error) {
	if strings.HasPrefix(secret, "whsec_") {
		return standardwebhooks.NewWebhook(secret)
	}
	return standardwebhooks.NewWebhookRaw([]byte(secret))
}

// verifyStandardWebhook checks the webhook-id, webhook-timestamp and
// webhook-signature headers within the library's 5 minute tolerance.
func verifyStandardWebhook(wh *standardwebhooks.Webhook, header http.Header, body []byte) error {
	if err := wh.Verify(body, header); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
