package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_wechat/internal/models"
	"github.com/GTDGit/gtd_wechat/internal/utils"
	"github.com/GTDGit/gtd_wechat/pkg/transport"
	"github.com/GTDGit/gtd_wechat/pkg/wxopen"
	"github.com/GTDGit/gtd_wechat/pkg/wxpay"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.OrderResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.OrderResponse)
	return resp, args.Error(1)
}

func (m *MockPaymentService) QueryOrder(ctx context.Context, orderID string) (map[string]string, error) {
	args := m.Called(ctx, orderID)
	resp, _ := args.Get(0).(map[string]string)
	return resp, args.Error(1)
}

func (m *MockPaymentService) ReverseOrder(ctx context.Context, orderID string) (map[string]string, error) {
	args := m.Called(ctx, orderID)
	resp, _ := args.Get(0).(map[string]string)
	return resp, args.Error(1)
}

func (m *MockPaymentService) Refund(ctx context.Context, req models.RefundRequest) (*models.RefundResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.RefundResponse)
	return resp, args.Error(1)
}

func (m *MockPaymentService) QueryRefund(ctx context.Context, orderID string) (map[string]string, error) {
	args := m.Called(ctx, orderID)
	resp, _ := args.Get(0).(map[string]string)
	return resp, args.Error(1)
}

func (m *MockPaymentService) HandleNotification(ctx context.Context, body []byte) (*models.PaymentNotification, error) {
	args := m.Called(ctx, body)
	resp, _ := args.Get(0).(*models.PaymentNotification)
	return resp, args.Error(1)
}

type MockPlatformService struct {
	mock.Mock
}

func (m *MockPlatformService) SaveVerifyTicket(ctx context.Context, ticket string) error {
	return m.Called(ctx, ticket).Error(0)
}

func (m *MockPlatformService) PreAuth(ctx context.Context, redirectURI string) (*models.PreAuthResponse, error) {
	args := m.Called(ctx, redirectURI)
	resp, _ := args.Get(0).(*models.PreAuthResponse)
	return resp, args.Error(1)
}

func (m *MockPlatformService) Authorize(ctx context.Context, code string) (*models.AuthorizationResponse, error) {
	args := m.Called(ctx, code)
	resp, _ := args.Get(0).(*models.AuthorizationResponse)
	return resp, args.Error(1)
}

func (m *MockPlatformService) AuthorizerAccessToken(ctx context.Context, appID string) (string, error) {
	args := m.Called(ctx, appID)
	return args.String(0), args.Error(1)
}

func (m *MockPlatformService) AuthorizerInfo(ctx context.Context, appID string) (*wxopen.AuthorizerInfo, error) {
	args := m.Called(ctx, appID)
	resp, _ := args.Get(0).(*wxopen.AuthorizerInfo)
	return resp, args.Error(1)
}

func (m *MockPlatformService) GetOption(ctx context.Context, appID, option string) (*wxopen.AuthorizerOption, error) {
	args := m.Called(ctx, appID, option)
	resp, _ := args.Get(0).(*wxopen.AuthorizerOption)
	return resp, args.Error(1)
}

func (m *MockPlatformService) SetOption(ctx context.Context, appID, option, value string) error {
	return m.Called(ctx, appID, option, value).Error(0)
}

const ticketSecret = "ticket-secret"

func setupRouter(pay *MockPaymentService, platform *MockPlatformService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	ph := NewPaymentHandler(pay)
	pl := NewPlatformHandler(platform)
	wh := NewWebhookHandler(platform, pay, ticketSecret)

	r.POST("/webhook/wechat/ticket", wh.HandleVerifyTicket)
	r.POST("/webhook/wechat/pay", wh.HandlePayNotify)
	r.POST("/v1/pay/orders", ph.CreateOrder)
	r.GET("/v1/pay/orders/:orderId", ph.GetOrder)
	r.POST("/v1/pay/orders/:orderId/reverse", ph.ReverseOrder)
	r.POST("/v1/pay/refunds", ph.CreateRefund)
	r.GET("/v1/pay/refunds/:orderId", ph.GetRefund)
	r.GET("/v1/platform/pre-auth-code", pl.GetPreAuthCode)
	r.POST("/v1/platform/authorizations", pl.CreateAuthorization)
	r.GET("/v1/platform/authorizers/:appId", pl.GetAuthorizer)
	r.GET("/v1/platform/authorizers/:appId/access-token", pl.GetAccessToken)
	r.GET("/v1/platform/authorizers/:appId/options/:option", pl.GetOption)
	r.PUT("/v1/platform/authorizers/:appId/options/:option", pl.SetOption)
	return r
}

func do(r *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) utils.Response {
	t.Helper()
	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateOrder(t *testing.T) {
	pay := new(MockPaymentService)
	r := setupRouter(pay, new(MockPlatformService))

	pay.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req models.CreateOrderRequest) bool {
		return req.OrderID == "ORD-1" && req.TotalFee == 101 && req.ClientIP != ""
	})).Return(&models.OrderResponse{OrderID: "ORD-1", TradeType: "APP", PrepayID: "wx123"}, nil).Once()

	w := do(r, http.MethodPost, "/v1/pay/orders",
		[]byte(`{"tradeType":"APP","orderId":"ORD-1","body":"Coffee","totalFee":101}`), nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	pay.AssertExpectations(t)
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	pay := new(MockPaymentService)
	r := setupRouter(pay, new(MockPlatformService))

	w := do(r, http.MethodPost, "/v1/pay/orders", []byte(`{"tradeType":"APP","orderId":"ORD-1"}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w).Error.Code)
	pay.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"payment failed", &wxpay.PaymentAPIError{Code: "ORDERPAID", Message: "order paid"}, 422, "PAYMENT_FAILED"},
		{"bad signature", &wxpay.SignatureVerificationError{Reason: "mismatch"}, 502, "SIGNATURE_INVALID"},
		{"transport", fmt.Errorf("pay/orderquery: %w", &transport.TransportError{URL: "x", StatusCode: 500}), 502, "TRANSPORT_ERROR"},
		{"certificate", &wxpay.MissingCertificateError{Operation: "reverse"}, 500, "MISSING_CERTIFICATE"},
		{"argument", &wxpay.ArgumentError{Message: "order id is required"}, 400, "INVALID_REQUEST"},
		{"not configured", utils.ErrPaymentNotConfigured, 503, "NOT_CONFIGURED"},
		{"unknown", errors.New("boom"), 500, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pay := new(MockPaymentService)
			r := setupRouter(pay, new(MockPlatformService))
			pay.On("QueryOrder", mock.Anything, "ORD-1").Return(nil, tt.err).Once()

			w := do(r, http.MethodGet, "/v1/pay/orders/ORD-1", nil, nil)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestPlatformErrorMapping(t *testing.T) {
	remote := &wxopen.RemoteAPIError{Code: 61003, Message: "component is not authorized"}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing refresh", &wxopen.MissingRefreshTokenError{AuthorizerAppID: "wxa"}, 409, "MISSING_REFRESH_TOKEN"},
		{"token unavailable", &wxopen.TokenAcquisitionError{AppID: "wxc", Err: wxopen.ErrVerifyTicketMissing}, 503, "TOKEN_UNAVAILABLE"},
		{"token remote", &wxopen.TokenAcquisitionError{AppID: "wxc", Err: remote}, 503, "TOKEN_UNAVAILABLE"},
		{"remote", remote, 502, "REMOTE_API_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := new(MockPlatformService)
			r := setupRouter(new(MockPaymentService), platform)
			platform.On("AuthorizerAccessToken", mock.Anything, "wxa").Return("", tt.err).Once()

			w := do(r, http.MethodGet, "/v1/platform/authorizers/wxa/access-token", nil, nil)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestRemoteErrorCarriesCode(t *testing.T) {
	platform := new(MockPlatformService)
	r := setupRouter(new(MockPaymentService), platform)
	platform.On("AuthorizerInfo", mock.Anything, "wxa").
		Return(nil, &wxopen.RemoteAPIError{Code: 61003, Message: "not authorized"}).Once()

	w := do(r, http.MethodGet, "/v1/platform/authorizers/wxa", nil, nil)

	resp := decode(t, w)
	assert.Equal(t, "61003", resp.Error.RemoteCode)
	assert.Equal(t, "not authorized", resp.Error.Message)
}

func TestVerifyTicketWebhook(t *testing.T) {
	platform := new(MockPlatformService)
	r := setupRouter(new(MockPaymentService), platform)
	body := []byte(`{"ticket":"ticket@@@abc"}`)

	platform.On("SaveVerifyTicket", mock.Anything, "ticket@@@abc").Return(nil).Once()

	w := do(r, http.MethodPost, "/webhook/wechat/ticket", body, map[string]string{
		"X-Signature": utils.GenerateSignature(body, ticketSecret),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/webhook/wechat/ticket", body, map[string]string{
		"X-Signature": utils.GenerateSignature(body, "wrong"),
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	empty := []byte(`{"ticket":""}`)
	w = do(r, http.MethodPost, "/webhook/wechat/ticket", empty, map[string]string{
		"X-Signature": utils.GenerateSignature(empty, ticketSecret),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	platform.AssertExpectations(t)
}

func TestPayNotifyWebhook(t *testing.T) {
	pay := new(MockPaymentService)
	r := setupRouter(pay, new(MockPlatformService))

	good := []byte(`<xml><return_code><![CDATA[SUCCESS]]></return_code></xml>`)
	bad := []byte(`<xml><return_code><![CDATA[FAIL]]></return_code></xml>`)

	pay.On("HandleNotification", mock.Anything, good).
		Return(&models.PaymentNotification{OrderID: "ORD-1"}, nil).Once()
	pay.On("HandleNotification", mock.Anything, bad).
		Return(nil, &wxpay.SignatureVerificationError{Reason: "mismatch"}).Once()

	w := do(r, http.MethodPost, "/webhook/wechat/pay", good, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	fields, err := wxpay.DecodeXML(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", fields["return_code"])

	w = do(r, http.MethodPost, "/webhook/wechat/pay", bad, nil)
	fields, err = wxpay.DecodeXML(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "FAIL", fields["return_code"])

	pay.AssertExpectations(t)
}

func TestPreAuthAndOptions(t *testing.T) {
	platform := new(MockPlatformService)
	r := setupRouter(new(MockPaymentService), platform)

	platform.On("PreAuth", mock.Anything, "https://example.com/cb").
		Return(&models.PreAuthResponse{PreAuthCode: "preauth@@@1", AuthURL: "https://mp.weixin.qq.com/x"}, nil).Once()
	platform.On("SetOption", mock.Anything, "wxa", "voice_recognize", "1").Return(nil).Once()

	w := do(r, http.MethodGet, "/v1/platform/pre-auth-code?redirectUri=https://example.com/cb", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/v1/platform/authorizers/wxa/options/voice_recognize", []byte(`{"value":"1"}`), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/v1/platform/authorizers/wxa/options/voice_recognize", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	platform.AssertExpectations(t)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", NewHealthHandler(fakePinger{}, "memory", true, false).GetHealth)
	r.GET("/down", NewHealthHandler(fakePinger{err: errors.New("dial tcp")}, "redis", true, true).GetHealth)

	w := do(r, http.MethodGet, "/ok", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/down", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
