package wxopen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_wechat/pkg/transport"
)

const (
	// DefaultBaseURL is the open-platform component API base URL.
	DefaultBaseURL = "https://api.weixin.qq.com/cgi-bin/component"

	componentLoginPage = "https://mp.weixin.qq.com/cgi-bin/componentloginpage"
)

// Cache keys. Kept compatible with caches written by earlier integrations.
const (
	verifyTicketKey           = "wx:component:verify:ticket:%s"
	componentAccessTokenKey   = "wx:component:access:token:%s"
	authorizerRefreshTokenKey = "wx:authorizer:refresh:token:%s"
	authorizerAccessTokenKey  = "wx:authorizer:access:token:%s"
)

const (
	pathComponentToken  = "/api_component_token"
	pathPreAuthCode     = "/api_create_preauthcode"
	pathQueryAuth       = "/api_query_auth"
	pathAuthorizerToken = "/api_authorizer_token"
	pathAuthorizerInfo  = "/api_get_authorizer_info"
	pathGetOption       = "/api_get_authorizer_option"
	pathSetOption       = "/api_set_authorizer_option"
)

const (
	verifyTicketTTL = 900 * time.Second
	// expiryMargin is subtracted from expires_in so a cached token is dropped
	// before the platform stops accepting it.
	expiryMargin    = 100
	defaultTokenTTL = 3600 * time.Second
)

// Config identifies the third-party platform (component) app.
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string
	// StrictPreAuthCode makes GetPreAuthCode fail instead of returning ""
	// when the platform omits pre_auth_code.
	StrictPreAuthCode bool
	Timeout           time.Duration
}

// Broker acquires and caches platform and authorizer credentials. Tokens
// are always re-read from the cache; the broker keeps none in memory.
//
// There is no distributed lock: callers that miss the cache at the same
// time each refresh the token. The platform treats repeated refreshes with a
// valid refresh token as independent requests, so this costs duplicate
// calls, not correctness.
type Broker struct {
	cfg    Config
	cache  Cache
	poster transport.Poster
}

// NewBroker validates cfg and builds a Broker.
func NewBroker(cfg Config, cache Cache, poster transport.Poster) (*Broker, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, &ArgumentError{Message: "component app id and secret are required"}
	}
	if cache == nil || poster == nil {
		return nil, &ArgumentError{Message: "cache and transport are required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Broker{cfg: cfg, cache: cache, poster: poster}, nil
}

// AppID returns the component app id.
func (b *Broker) AppID() string {
	return b.cfg.AppID
}

// SetComponentVerifyTicket stores the ticket the platform pushes to the
// authorization event endpoint.
func (b *Broker) SetComponentVerifyTicket(ctx context.Context, ticket string) error {
	if ticket == "" {
		return &ArgumentError{Message: "verify ticket is empty"}
	}
	key := fmt.Sprintf(verifyTicketKey, b.cfg.AppID)
	if err := b.cache.Set(ctx, key, ticket, verifyTicketTTL); err != nil {
		return fmt.Errorf("failed to cache verify ticket: %w", err)
	}
	return nil
}

// GetComponentAccessToken returns the cached platform token, requesting a
// new one with the verify ticket on a miss.
func (b *Broker) GetComponentAccessToken(ctx context.Context) (string, error) {
	key := fmt.Sprintf(componentAccessTokenKey, b.cfg.AppID)
	if token, ok, err := b.cache.Get(ctx, key); err != nil {
		return "", fmt.Errorf("failed to read component token: %w", err)
	} else if ok && token != "" {
		return token, nil
	}

	ticket, ok, err := b.cache.Get(ctx, fmt.Sprintf(verifyTicketKey, b.cfg.AppID))
	if err != nil {
		return "", fmt.Errorf("failed to read verify ticket: %w", err)
	}
	if !ok || ticket == "" {
		return "", &TokenAcquisitionError{AppID: b.cfg.AppID, Err: ErrVerifyTicketMissing}
	}

	var resp componentTokenResponse
	err = b.postJSON(ctx, pathComponentToken, "", map[string]string{
		"component_appid":         b.cfg.AppID,
		"component_appsecret":     b.cfg.AppSecret,
		"component_verify_ticket": ticket,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ComponentAccessToken == "" {
		return "", &TokenAcquisitionError{AppID: b.cfg.AppID, Err: resp.err()}
	}

	ttl := tokenTTL(resp.ExpiresIn)
	if err := b.cache.Set(ctx, key, resp.ComponentAccessToken, ttl); err != nil {
		return "", fmt.Errorf("failed to cache component token: %w", err)
	}

	log.Info().
		Str("component_appid", b.cfg.AppID).
		Dur("ttl", ttl).
		Msg("[WXOPEN] Component access token refreshed")

	return resp.ComponentAccessToken, nil
}

// GetPreAuthCode requests a fresh pre-auth code. It is never cached.
func (b *Broker) GetPreAuthCode(ctx context.Context) (string, error) {
	token, err := b.GetComponentAccessToken(ctx)
	if err != nil {
		return "", err
	}

	var resp preAuthCodeResponse
	if err := b.postJSON(ctx, pathPreAuthCode, token, map[string]string{
		"component_appid": b.cfg.AppID,
	}, &resp); err != nil {
		return "", err
	}

	if resp.PreAuthCode == "" {
		if !b.cfg.StrictPreAuthCode {
			log.Warn().
				Str("component_appid", b.cfg.AppID).
				Str("errmsg", resp.ErrMsg).
				Msg("[WXOPEN] Empty pre_auth_code returned")
			return "", nil
		}
		if err := resp.err(); err != nil {
			return "", err
		}
		return "", ErrEmptyPreAuthCode
	}
	return resp.PreAuthCode, nil
}

// PreAuthURL builds the login page URL an authorizer visits to grant access.
func (b *Broker) PreAuthURL(preAuthCode, redirectURI string) string {
	q := url.Values{}
	q.Set("component_appid", b.cfg.AppID)
	q.Set("pre_auth_code", preAuthCode)
	q.Set("redirect_uri", redirectURI)
	return componentLoginPage + "?" + q.Encode()
}

// GetAuthorizationInfo exchanges an authorization code for authorizer
// tokens. Both tokens are cached before the info is returned.
func (b *Broker) GetAuthorizationInfo(ctx context.Context, code string) (*AuthorizationInfo, error) {
	if code == "" {
		return nil, &ArgumentError{Message: "authorization code is empty"}
	}

	token, err := b.GetComponentAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp queryAuthResponse
	if err := b.postJSON(ctx, pathQueryAuth, token, map[string]string{
		"component_appid":    b.cfg.AppID,
		"authorization_code": code,
	}, &resp); err != nil {
		return nil, err
	}

	info := resp.AuthorizationInfo
	if info == nil {
		return nil, &AuthorizationExchangeError{Err: resp.err()}
	}
	if info.AuthorizerAppID == "" || info.AuthorizerRefreshToken == "" {
		return nil, &AuthorizationExchangeError{Err: fmt.Errorf("authorization_info is incomplete")}
	}

	refreshKey := fmt.Sprintf(authorizerRefreshTokenKey, info.AuthorizerAppID)
	if err := b.cache.Set(ctx, refreshKey, info.AuthorizerRefreshToken, 0); err != nil {
		return nil, fmt.Errorf("failed to cache refresh token: %w", err)
	}
	if info.AuthorizerAccessToken != "" {
		accessKey := fmt.Sprintf(authorizerAccessTokenKey, info.AuthorizerAppID)
		if err := b.cache.Set(ctx, accessKey, info.AuthorizerAccessToken, tokenTTL(info.ExpiresIn)); err != nil {
			return nil, fmt.Errorf("failed to cache authorizer token: %w", err)
		}
	}

	log.Info().
		Str("component_appid", b.cfg.AppID).
		Str("authorizer_appid", info.AuthorizerAppID).
		Msg("[WXOPEN] Authorizer authorized")

	return info, nil
}

// GetAuthorizerRefreshToken returns the stored refresh token of an authorizer.
func (b *Broker) GetAuthorizerRefreshToken(ctx context.Context, authorizerAppID string) (string, error) {
	token, ok, err := b.cache.Get(ctx, fmt.Sprintf(authorizerRefreshTokenKey, authorizerAppID))
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if !ok || token == "" {
		return "", &MissingRefreshTokenError{AuthorizerAppID: authorizerAppID}
	}
	return token, nil
}

// GetAuthorizerAccessToken returns the cached access token of an authorizer,
// refreshing it with the stored refresh token on a miss.
func (b *Broker) GetAuthorizerAccessToken(ctx context.Context, authorizerAppID string) (string, error) {
	if authorizerAppID == "" {
		return "", &ArgumentError{Message: "authorizer app id is empty"}
	}

	key := fmt.Sprintf(authorizerAccessTokenKey, authorizerAppID)
	if token, ok, err := b.cache.Get(ctx, key); err != nil {
		return "", fmt.Errorf("failed to read authorizer token: %w", err)
	} else if ok && token != "" {
		return token, nil
	}

	refreshToken, err := b.GetAuthorizerRefreshToken(ctx, authorizerAppID)
	if err != nil {
		return "", err
	}

	componentToken, err := b.GetComponentAccessToken(ctx)
	if err != nil {
		return "", err
	}

	var resp authorizerTokenResponse
	if err := b.postJSON(ctx, pathAuthorizerToken, componentToken, map[string]string{
		"component_appid":          b.cfg.AppID,
		"authorizer_appid":         authorizerAppID,
		"authorizer_refresh_token": refreshToken,
	}, &resp); err != nil {
		return "", err
	}
	if err := resp.err(); err != nil {
		return "", err
	}
	if resp.AuthorizerAccessToken == "" {
		return "", &RemoteAPIError{Code: -1, Message: "authorizer_access_token missing from response"}
	}

	if resp.AuthorizerRefreshToken != "" && resp.AuthorizerRefreshToken != refreshToken {
		refreshKey := fmt.Sprintf(authorizerRefreshTokenKey, authorizerAppID)
		if err := b.cache.Set(ctx, refreshKey, resp.AuthorizerRefreshToken, 0); err != nil {
			return "", fmt.Errorf("failed to cache refresh token: %w", err)
		}
	}
	if err := b.cache.Set(ctx, key, resp.AuthorizerAccessToken, tokenTTL(resp.ExpiresIn)); err != nil {
		return "", fmt.Errorf("failed to cache authorizer token: %w", err)
	}

	log.Info().
		Str("authorizer_appid", authorizerAppID).
		Msg("[WXOPEN] Authorizer access token refreshed")

	return resp.AuthorizerAccessToken, nil
}

// GetAuthorizerInfo returns the account profile of an authorizer.
func (b *Broker) GetAuthorizerInfo(ctx context.Context, authorizerAppID string) (*AuthorizerInfo, error) {
	token, err := b.GetComponentAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp authorizerInfoResponse
	if err := b.postJSON(ctx, pathAuthorizerInfo, token, map[string]string{
		"component_appid":  b.cfg.AppID,
		"authorizer_appid": authorizerAppID,
	}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	if len(resp.AuthorizerInfo) == 0 {
		return nil, &RemoteAPIError{Code: -1, Message: "authorizer_info missing from response"}
	}

	info := &AuthorizerInfo{Raw: resp.AuthorizerInfo, Authorization: resp.AuthorizationInfo}
	if err := json.Unmarshal(resp.AuthorizerInfo, info); err != nil {
		return nil, fmt.Errorf("failed to decode authorizer_info: %w", err)
	}
	return info, nil
}

// GetAuthorizerOption reads one option (location_report, voice_recognize,
// customer_service) of an authorizer.
func (b *Broker) GetAuthorizerOption(ctx context.Context, authorizerAppID, option string) (*AuthorizerOption, error) {
	token, err := b.GetComponentAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp authorizerOptionResponse
	if err := b.postJSON(ctx, pathGetOption, token, map[string]string{
		"component_appid":  b.cfg.AppID,
		"authorizer_appid": authorizerAppID,
		"option_name":      option,
	}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return &resp.AuthorizerOption, nil
}

// SetAuthorizerOption changes one option of an authorizer. Success requires
// an explicit errcode 0.
func (b *Broker) SetAuthorizerOption(ctx context.Context, authorizerAppID, option, value string) error {
	token, err := b.GetComponentAccessToken(ctx)
	if err != nil {
		return err
	}

	var resp remoteStatus
	if err := b.postJSON(ctx, pathSetOption, token, map[string]string{
		"component_appid":  b.cfg.AppID,
		"authorizer_appid": authorizerAppID,
		"option_name":      option,
		"option_value":     value,
	}, &resp); err != nil {
		return err
	}
	if resp.ErrCode == nil {
		return &RemoteAPIError{Code: -1, Message: "errcode missing from response"}
	}
	return resp.err()
}

// postJSON sends body to path, adding the component token to the query
// string when given, and decodes the JSON answer into result.
func (b *Broker) postJSON(ctx context.Context, path, componentToken string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := b.cfg.BaseURL + path
	if componentToken != "" {
		endpoint += "?component_access_token=" + url.QueryEscape(componentToken)
	}

	raw, err := b.poster.Post(ctx, transport.Request{
		URL:         endpoint,
		Body:        payload,
		ContentType: transport.ContentTypeJSON,
		Timeout:     b.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", path, err)
	}
	return nil
}

// tokenTTL applies the expiry margin to expires_in. A missing value means
// one hour; values too small for the margin are used as-is.
func tokenTTL(expiresIn int) time.Duration {
	switch {
	case expiresIn <= 0:
		return defaultTokenTTL
	case expiresIn > expiryMargin:
		return time.Duration(expiresIn-expiryMargin) * time.Second
	default:
		return time.Duration(expiresIn) * time.Second
	}
}
