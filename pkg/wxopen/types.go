package wxopen

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the credential store. It is the only place token state lives.
type Cache interface {
	// Get returns ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set replaces the value. ttl <= 0 stores it without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// remoteStatus is embedded in every platform response. ErrCode is a pointer
// so "absent" and "0" can be told apart.
type remoteStatus struct {
	ErrCode *int   `json:"errcode,omitempty"`
	ErrMsg  string `json:"errmsg,omitempty"`
}

func (s remoteStatus) err() error {
	if s.ErrCode != nil && *s.ErrCode != 0 {
		return &RemoteAPIError{Code: *s.ErrCode, Message: s.ErrMsg}
	}
	return nil
}

type componentTokenResponse struct {
	remoteStatus
	ComponentAccessToken string `json:"component_access_token"`
	ExpiresIn            int    `json:"expires_in"`
}

type preAuthCodeResponse struct {
	remoteStatus
	PreAuthCode string `json:"pre_auth_code"`
	ExpiresIn   int    `json:"expires_in"`
}

type authorizerTokenResponse struct {
	remoteStatus
	AuthorizerAccessToken  string `json:"authorizer_access_token"`
	AuthorizerRefreshToken string `json:"authorizer_refresh_token"`
	ExpiresIn              int    `json:"expires_in"`
}

type queryAuthResponse struct {
	remoteStatus
	AuthorizationInfo *AuthorizationInfo `json:"authorization_info"`
}

type authorizerInfoResponse struct {
	remoteStatus
	AuthorizerInfo    json.RawMessage `json:"authorizer_info"`
	AuthorizationInfo json.RawMessage `json:"authorization_info"`
}

// AuthorizationInfo is the result of exchanging an authorization code.
type AuthorizationInfo struct {
	AuthorizerAppID        string          `json:"authorizer_appid"`
	AuthorizerAccessToken  string          `json:"authorizer_access_token"`
	AuthorizerRefreshToken string          `json:"authorizer_refresh_token"`
	ExpiresIn              int             `json:"expires_in"`
	FuncInfo               json.RawMessage `json:"func_info,omitempty"`
}

// AuthorizerInfo is the public account profile of an authorizer.
type AuthorizerInfo struct {
	NickName      string `json:"nick_name"`
	HeadImg       string `json:"head_img"`
	UserName      string `json:"user_name"`
	PrincipalName string `json:"principal_name"`
	Alias         string `json:"alias"`
	QRCodeURL     string `json:"qrcode_url"`

	// Raw holds the complete authorizer_info object.
	Raw json.RawMessage `json:"raw,omitempty"`
	// Authorization holds the authorization_info object (granted func_info).
	Authorization json.RawMessage `json:"authorization,omitempty"`
}

type authorizerOptionResponse struct {
	remoteStatus
	AuthorizerOption
}

// AuthorizerOption is one option setting of an authorizer.
type AuthorizerOption struct {
	AuthorizerAppID string `json:"authorizer_appid"`
	OptionName      string `json:"option_name"`
	OptionValue     string `json:"option_value"`
}
