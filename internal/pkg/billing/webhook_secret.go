package billing

import (
	"crypto/subtle"
	"strings"

	"github.com/fitvox/FitVox/internal/pkg/env"
)

// WebhookSecret returns the shared secret the provider sends in the
// x-webhook-secret header. Empty means the webhook endpoint rejects
// everything except test mode.
func WebhookSecret() string {
	return strings.TrimSpace(env.GetEnv("PAYGATE_WEBHOOK_SECRET", ""))
}

// VerifyWebhookSecret compares the presented header value against the
// configured secret in constant time.
func VerifyWebhookSecret(presented, secret string) bool {
	if secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
