package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient_ExplicitClassification(t *testing.T) {
	transient := NewTransient(ErrorCodeDatabaseError, "db down", errors.New("conn refused"))
	permanent := NewDomainError(ErrorCodeWebhookUnknownEventType, "no handler")

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(permanent))
}

func TestIsTransient_UnclassifiedDefaultsToRetryable(t *testing.T) {
	assert.True(t, IsTransient(errors.New("something unexpected")))
}

func TestIsTransient_WrappedDomainError(t *testing.T) {
	inner := NewDomainError(ErrorCodePMExpired, "card expired")
	wrapped := fmt.Errorf("billing cycle: %w", inner)

	assert.False(t, IsTransient(wrapped))
}

func TestIsDomainError_MatchesCode(t *testing.T) {
	err := ErrPaymentMethodExpired.WithDetail("expiry", "01/2020")

	assert.True(t, IsDomainError(err, ErrorCodePMExpired))
	assert.False(t, IsDomainError(err, ErrorCodePMNotFound))
	assert.False(t, IsDomainError(errors.New("plain"), ErrorCodePMExpired))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCodeSubNotFound, GetErrorCode(ErrSubscriptionNotFound))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestDomainError_UnwrapSupportsErrorsIs(t *testing.T) {
	sentinel := errors.New("root cause")
	wrapped := WrapError(ErrorCodeDatabaseError, "query failed", sentinel)

	assert.True(t, errors.Is(wrapped, sentinel))
}

func TestDomainError_ErrorString(t *testing.T) {
	err := WrapError(ErrorCodeProcessorError, "charge request failed", errors.New("timeout"))
	assert.Equal(t, "PROCESSOR_ERROR: charge request failed: timeout", err.Error())
}
