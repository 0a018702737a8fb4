// Package signature verifies webhook payload signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"

	"github.com/corepay/payment-gateway/internal/domain/ports"
)

// Verifier checks HMAC-SHA512 signatures over raw webhook payloads.
// Verification never returns an error: a delivery is either authentic or it
// is not, and the caller records the verdict on the stored event.
type Verifier struct {
	secret []byte
	logger ports.Logger
}

// NewVerifier creates a Verifier. An empty secret disables verification:
// every payload is accepted and each acceptance is logged as insecure. This
// mode exists for local development only.
func NewVerifier(secret string, logger ports.Logger) *Verifier {
	return &Verifier{secret: []byte(secret), logger: logger}
}

// Enabled reports whether a signing secret is configured
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify reports whether the signature matches the payload. The comparison
// is constant time.
func (v *Verifier) Verify(payload []byte, signature string) bool {
	if !v.Enabled() {
		v.logger.Warn("webhook signature verification disabled, accepting unverified payload")
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature for a payload. Used by tests and by tooling
// that emits synthetic deliveries.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
