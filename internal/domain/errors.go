package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Webhook ingestion errors (WEBHOOK_*)
	ErrorCodeWebhookDuplicate        ErrorCode = "WEBHOOK_DUPLICATE"
	ErrorCodeWebhookInvalidSignature ErrorCode = "WEBHOOK_INVALID_SIGNATURE"
	ErrorCodeWebhookMalformedPayload ErrorCode = "WEBHOOK_MALFORMED_PAYLOAD"
	ErrorCodeWebhookUnknownEventType ErrorCode = "WEBHOOK_UNKNOWN_EVENT_TYPE"
	ErrorCodeWebhookRetryExhausted   ErrorCode = "WEBHOOK_RETRY_EXHAUSTED"

	// Effect application errors (EFFECT_*)
	ErrorCodeEffectTransient ErrorCode = "EFFECT_TRANSIENT_FAILURE"
	ErrorCodeEffectPermanent ErrorCode = "EFFECT_PERMANENT_FAILURE"

	// Subscription errors (SUB_*)
	ErrorCodeSubNotFound      ErrorCode = "SUB_NOT_FOUND"
	ErrorCodeSubInvalidState  ErrorCode = "SUB_INVALID_STATE"
	ErrorCodeSubInvalidAmount ErrorCode = "SUB_INVALID_AMOUNT"
	ErrorCodeSubInvalidDate   ErrorCode = "SUB_INVALID_BILLING_DATE"

	// Payment method errors (PM_*)
	ErrorCodePMNotFound ErrorCode = "PM_NOT_FOUND"
	ErrorCodePMExpired  ErrorCode = "PM_EXPIRED"

	// Payment errors (PAYMENT_*)
	ErrorCodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	ErrorCodePaymentDeclined     ErrorCode = "PAYMENT_DECLINED"
	ErrorCodePaymentInvalidState ErrorCode = "PAYMENT_INVALID_STATE"

	// Card processor errors (PROCESSOR_*)
	ErrorCodeProcessorError   ErrorCode = "PROCESSOR_ERROR"
	ErrorCodeProcessorTimeout ErrorCode = "PROCESSOR_TIMEOUT"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err       error
	Details   map[string]interface{}
	Code      ErrorCode
	Message   string
	Transient bool // retryable: a later identical attempt may succeed
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// NewTransient creates a retryable domain error. The webhook processor and
// the idempotency executor use the flag to decide whether an outcome may be
// cached or must stay eligible for retry.
func NewTransient(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Details:   make(map[string]interface{}),
		Err:       err,
		Transient: true,
	}
}

// IsTransient reports whether err is a retryable failure. Errors that do not
// carry an explicit classification are treated as transient: the safe default
// for an unknown infrastructure failure is to allow a retry, because every
// effect behind the processor is idempotent at the state level.
func IsTransient(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Transient
	}
	return true
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// Structured error instances
var (
	ErrDuplicateEvent    = NewDomainError(ErrorCodeWebhookDuplicate, "webhook event already received")
	ErrInvalidSignature  = NewDomainError(ErrorCodeWebhookInvalidSignature, "webhook signature verification failed")
	ErrMalformedPayload  = NewDomainError(ErrorCodeWebhookMalformedPayload, "webhook payload could not be parsed")
	ErrUnknownEventType  = NewDomainError(ErrorCodeWebhookUnknownEventType, "unhandled webhook event type")
	ErrRetryExhausted    = NewDomainError(ErrorCodeWebhookRetryExhausted, "maximum processing attempts reached")

	ErrSubscriptionNotFound = NewDomainError(ErrorCodeSubNotFound, "subscription not found")
	ErrSubInvalidState      = NewDomainError(ErrorCodeSubInvalidState, "subscription is in invalid state for this operation")
	ErrSubInvalidAmount     = NewDomainError(ErrorCodeSubInvalidAmount, "amount must be greater than zero")
	ErrSubInvalidDate       = NewDomainError(ErrorCodeSubInvalidDate, "next billing date must be in the future")

	ErrPaymentMethodNotFound = NewDomainError(ErrorCodePMNotFound, "payment method not found")
	ErrPaymentMethodExpired  = NewDomainError(ErrorCodePMExpired, "payment method has expired")

	ErrPaymentNotFound = NewDomainError(ErrorCodePaymentNotFound, "payment not found")
	ErrPaymentDeclined = NewDomainError(ErrorCodePaymentDeclined, "payment declined by processor")

	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)

// Common sentinel errors
var (
	// ErrVersionConflict signals an optimistic-lock failure: another writer
	// updated the row between our read and our conditional update.
	ErrVersionConflict = errors.New("concurrent modification detected")

	// ErrNotFound is the generic repository miss
	ErrNotFound = errors.New("record not found")
)
