package wxopen

import (
	"errors"
	"fmt"
)

var (
	// ErrVerifyTicketMissing means no component verify ticket has been pushed
	// into the cache yet, so no platform token can be requested.
	ErrVerifyTicketMissing = errors.New("component verify ticket not available")
	// ErrEmptyPreAuthCode is returned in strict mode when the platform answers
	// without a pre_auth_code.
	ErrEmptyPreAuthCode = errors.New("pre_auth_code missing from response")
)

// RemoteAPIError is an explicit errcode/errmsg pair returned by the platform.
type RemoteAPIError struct {
	Code    int
	Message string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("wxopen: remote error %d: %s", e.Code, e.Message)
}

// TokenAcquisitionError means the platform access token could not be obtained.
type TokenAcquisitionError struct {
	AppID string
	Err   error
}

func (e *TokenAcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wxopen: failed to acquire component_access_token for %s: %v", e.AppID, e.Err)
	}
	return fmt.Sprintf("wxopen: failed to acquire component_access_token for %s", e.AppID)
}

func (e *TokenAcquisitionError) Unwrap() error {
	return e.Err
}

// MissingRefreshTokenError means the authorizer never completed the
// authorization-code exchange, or its refresh token was lost.
type MissingRefreshTokenError struct {
	AuthorizerAppID string
}

func (e *MissingRefreshTokenError) Error() string {
	return "wxopen: no refresh token cached for authorizer " + e.AuthorizerAppID
}

// AuthorizationExchangeError means the authorization code could not be
// exchanged for authorizer tokens.
type AuthorizationExchangeError struct {
	Err error
}

func (e *AuthorizationExchangeError) Error() string {
	if e.Err != nil {
		return "wxopen: authorization code exchange failed: " + e.Err.Error()
	}
	return "wxopen: authorization code exchange failed"
}

func (e *AuthorizationExchangeError) Unwrap() error {
	return e.Err
}

// ArgumentError reports invalid configuration or input.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string {
	return "wxopen: " + e.Message
}
