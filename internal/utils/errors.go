package utils

import "errors"

// Common application errors used across services.
var (
	ErrInvalidToken          = errors.New("INVALID_TOKEN")
	ErrInvalidSignature      = errors.New("INVALID_SIGNATURE")
	ErrPaymentNotConfigured  = errors.New("PAYMENT_NOT_CONFIGURED")
	ErrPlatformNotConfigured = errors.New("PLATFORM_NOT_CONFIGURED")
	ErrUnsupportedTradeType  = errors.New("UNSUPPORTED_TRADE_TYPE")
)
