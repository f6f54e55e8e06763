package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_wechat/internal/models"
	"github.com/GTDGit/gtd_wechat/internal/utils"
	"github.com/GTDGit/gtd_wechat/pkg/wxopen"
)

// PlatformService exposes the open-platform token broker to the API.
type PlatformService struct {
	broker *wxopen.Broker
}

// NewPlatformService constructs a PlatformService. broker may be nil when the
// component app is not configured; every call then fails with ErrPlatformNotConfigured.
func NewPlatformService(broker *wxopen.Broker) *PlatformService {
	return &PlatformService{broker: broker}
}

func (s *PlatformService) ready() error {
	if s.broker == nil {
		return utils.ErrPlatformNotConfigured
	}
	return nil
}

// SaveVerifyTicket stores a verify ticket pushed by the platform.
func (s *PlatformService) SaveVerifyTicket(ctx context.Context, ticket string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.broker.SetComponentVerifyTicket(ctx, ticket); err != nil {
		return err
	}
	log.Info().Str("component_appid", s.broker.AppID()).Msg("[WXOPEN] Verify ticket stored")
	return nil
}

// PreAuth requests a pre-auth code. When redirectURI is given the login page
// URL is built as well.
func (s *PlatformService) PreAuth(ctx context.Context, redirectURI string) (*models.PreAuthResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	code, err := s.broker.GetPreAuthCode(ctx)
	if err != nil {
		return nil, err
	}

	resp := &models.PreAuthResponse{PreAuthCode: code}
	if code != "" && redirectURI != "" {
		resp.AuthURL = s.broker.PreAuthURL(code, redirectURI)
	}
	return resp, nil
}

// Authorize exchanges an authorization code. The broker caches both tokens.
func (s *PlatformService) Authorize(ctx context.Context, code string) (*models.AuthorizationResponse, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	info, err := s.broker.GetAuthorizationInfo(ctx, code)
	if err != nil {
		return nil, err
	}

	resp := &models.AuthorizationResponse{
		AuthorizerAppID: info.AuthorizerAppID,
		ExpiresIn:       info.ExpiresIn,
	}
	if len(info.FuncInfo) > 0 {
		resp.FuncInfo = json.RawMessage(info.FuncInfo)
	}
	return resp, nil
}

// AuthorizerAccessToken returns a valid access token for an authorizer.
func (s *PlatformService) AuthorizerAccessToken(ctx context.Context, appID string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.broker.GetAuthorizerAccessToken(ctx, appID)
}

// AuthorizerInfo returns the profile of an authorizer.
func (s *PlatformService) AuthorizerInfo(ctx context.Context, appID string) (*wxopen.AuthorizerInfo, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.broker.GetAuthorizerInfo(ctx, appID)
}

// GetOption reads an authorizer option.
func (s *PlatformService) GetOption(ctx context.Context, appID, option string) (*wxopen.AuthorizerOption, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.broker.GetAuthorizerOption(ctx, appID, option)
}

// SetOption changes an authorizer option.
func (s *PlatformService) SetOption(ctx context.Context, appID, option, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.broker.SetAuthorizerOption(ctx, appID, option, value); err != nil {
		return err
	}
	log.Info().
		Str("authorizer_appid", appID).
		Str("option", option).
		Str("value", value).
		Msg("[WXOPEN] Authorizer option updated")
	return nil
}
