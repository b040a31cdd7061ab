// Package errors defines the configuration-error kind the signing
// source resolver raises before any I/O takes place.
package errors

import "fmt"

// PaymentError is a configuration or protocol error raised with a
// stable machine-readable code plus a human-readable message.
type PaymentError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes. The first three are the configuration errors the signing
// source resolver raises before any network or signing call is
// attempted. ErrCodeSigningFailed, ErrCodeNonceReadFailed and
// ErrCodeRouterConfigFetch are declared but not raised by any package in
// this module: signing and nonce-read failures are returned as wrapped
// errors, and a failed router config fetch falls back to defaults.
const (
	ErrCodeInvalidSignerMode    = "invalid_signer_mode"
	ErrCodeMissingPrivateKey    = "missing_private_key"
	ErrCodeMissingStaticHeader  = "missing_static_payment_header"
	ErrCodeSigningFailed        = "signing_failed"
	ErrCodeNonceReadFailed      = "nonce_read_failed"
	ErrCodeRouterConfigFetch    = "router_config_fetch_failed"
)

// NewPaymentError constructs a PaymentError with optional details.
func NewPaymentError(code, message string, details map[string]any) *PaymentError {
	return &PaymentError{Code: code, Message: message, Details: details}
}
