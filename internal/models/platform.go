package models

// VerifyTicketPush is the body of POST /webhook/wechat/ticket.
type VerifyTicketPush struct {
	Ticket string `json:"ticket" binding:"required"`
}

// PreAuthResponse carries a fresh pre-auth code and the login page URL built from it.
type PreAuthResponse struct {
	PreAuthCode string `json:"preAuthCode"`
	AuthURL     string `json:"authUrl,omitempty"`
}

// AuthorizationRequest is the body of POST /v1/platform/authorizations.
type AuthorizationRequest struct {
	AuthorizationCode string `json:"authorizationCode" binding:"required"`
}

// AuthorizationResponse reports a completed authorization. Tokens stay in the cache.
type AuthorizationResponse struct {
	AuthorizerAppID string `json:"authorizerAppId"`
	ExpiresIn       int    `json:"expiresIn"`
	FuncInfo        any    `json:"funcInfo,omitempty"`
}

// SetOptionRequest is the body of PUT /v1/platform/authorizers/:appId/options/:option.
type SetOptionRequest struct {
	Value string `json:"value" binding:"required"`
}
