package wxpay

import "fmt"

// PaymentAPIError is a business-level failure reported by the payment API:
// either return_code or result_code was not SUCCESS.
type PaymentAPIError struct {
	// Code is err_code when the platform supplied one (e.g. USERPAYING, ORDERPAID).
	Code    string
	Message string
}

func (e *PaymentAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wxpay: %s (%s)", e.Message, e.Code)
	}
	return "wxpay: " + e.Message
}

// SignatureVerificationError means a response or notification carried a
// missing or wrong signature. It must never be ignored.
type SignatureVerificationError struct {
	Reason string
}

func (e *SignatureVerificationError) Error() string {
	return "wxpay: signature verification failed: " + e.Reason
}

// MissingCertificateError is returned before any network call when an
// operation that needs mutual TLS has no certificate configured.
type MissingCertificateError struct {
	Operation string
}

func (e *MissingCertificateError) Error() string {
	return fmt.Sprintf("wxpay: %s requires client certificate and key", e.Operation)
}

// ArgumentError reports invalid configuration or input.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return "wxpay: " + e.Message
}

func argErrorf(format string, args ...any) error {
	return &ArgumentError{Message: fmt.Sprintf(format, args...)}
}
