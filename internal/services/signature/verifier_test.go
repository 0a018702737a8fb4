package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corepay/payment-gateway/internal/domain/ports"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...ports.Field)  {}
func (noopLogger) Error(string, ...ports.Field) {}
func (noopLogger) Warn(string, ...ports.Field)  {}
func (noopLogger) Debug(string, ...ports.Field) {}

func TestVerify_ValidSignature(t *testing.T) {
	v := NewVerifier("test-secret", noopLogger{})
	payload := []byte(`{"eventType":"payment.refund.created"}`)

	assert.True(t, v.Verify(payload, v.Sign(payload)))
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	v := NewVerifier("test-secret", noopLogger{})
	sig := v.Sign([]byte(`{"amount":"10.00"}`))

	assert.False(t, v.Verify([]byte(`{"amount":"9999.00"}`), sig))
}

func TestVerify_RejectsEmptySignature(t *testing.T) {
	v := NewVerifier("test-secret", noopLogger{})

	assert.False(t, v.Verify([]byte(`{}`), ""))
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	signer := NewVerifier("secret-a", noopLogger{})
	verifier := NewVerifier("secret-b", noopLogger{})
	payload := []byte(`{"eventType":"subscription.created"}`)

	assert.False(t, verifier.Verify(payload, signer.Sign(payload)))
}

func TestVerify_InsecureModeAcceptsEverything(t *testing.T) {
	v := NewVerifier("", noopLogger{})

	assert.False(t, v.Enabled())
	assert.True(t, v.Verify([]byte(`{}`), "not-a-real-signature"))
	assert.True(t, v.Verify([]byte(`{}`), ""))
}
