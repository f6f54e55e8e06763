package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_wechat/internal/models"
	"github.com/GTDGit/gtd_wechat/internal/utils"
	"github.com/GTDGit/gtd_wechat/pkg/wxopen"
)

// PlatformService is what PlatformHandler needs from the platform service.
type PlatformService interface {
	SaveVerifyTicket(ctx context.Context, ticket string) error
	PreAuth(ctx context.Context, redirectURI string) (*models.PreAuthResponse, error)
	Authorize(ctx context.Context, code string) (*models.AuthorizationResponse, error)
	AuthorizerAccessToken(ctx context.Context, appID string) (string, error)
	AuthorizerInfo(ctx context.Context, appID string) (*wxopen.AuthorizerInfo, error)
	GetOption(ctx context.Context, appID, option string) (*wxopen.AuthorizerOption, error)
	SetOption(ctx context.Context, appID, option, value string) error
}

// PlatformHandler handles open-platform HTTP endpoints.
type PlatformHandler struct {
	platformService PlatformService
}

// NewPlatformHandler constructs a PlatformHandler.
func NewPlatformHandler(platformService PlatformService) *PlatformHandler {
	return &PlatformHandler{platformService: platformService}
}

// GetPreAuthCode handles GET /v1/platform/pre-auth-code?redirectUri=
func (h *PlatformHandler) GetPreAuthCode(c *gin.Context) {
	resp, err := h.platformService.PreAuth(c.Request.Context(), c.Query("redirectUri"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Pre-auth code issued", resp)
}

// CreateAuthorization handles POST /v1/platform/authorizations
func (h *PlatformHandler) CreateAuthorization(c *gin.Context) {
	var req models.AuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "authorizationCode is required")
		return
	}

	resp, err := h.platformService.Authorize(c.Request.Context(), req.AuthorizationCode)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 201, "Authorizer authorized", resp)
}

// GetAuthorizer handles GET /v1/platform/authorizers/:appId
func (h *PlatformHandler) GetAuthorizer(c *gin.Context) {
	info, err := h.platformService.AuthorizerInfo(c.Request.Context(), c.Param("appId"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Authorizer found", info)
}

// GetAccessToken handles GET /v1/platform/authorizers/:appId/access-token
func (h *PlatformHandler) GetAccessToken(c *gin.Context) {
	appID := c.Param("appId")
	token, err := h.platformService.AuthorizerAccessToken(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Access token issued", gin.H{
		"authorizerAppId": appID,
		"accessToken":     token,
	})
}

// GetOption handles GET /v1/platform/authorizers/:appId/options/:option
func (h *PlatformHandler) GetOption(c *gin.Context) {
	opt, err := h.platformService.GetOption(c.Request.Context(), c.Param("appId"), c.Param("option"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Option found", opt)
}

// SetOption handles PUT /v1/platform/authorizers/:appId/options/:option
func (h *PlatformHandler) SetOption(c *gin.Context) {
	var req models.SetOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "value is required")
		return
	}

	appID, option := c.Param("appId"), c.Param("option")
	if err := h.platformService.SetOption(c.Request.Context(), appID, option, req.Value); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Option updated", &wxopen.AuthorizerOption{
		AuthorizerAppID: appID,
		OptionName:      option,
		OptionValue:     req.Value,
	})
}
