package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_wechat/internal/utils"
	"github.com/GTDGit/gtd_wechat/pkg/transport"
	"github.com/GTDGit/gtd_wechat/pkg/wxopen"
	"github.com/GTDGit/gtd_wechat/pkg/wxpay"
)

// respondError maps library and service errors to the API envelope.
// Wrapping errors are checked before the errors they wrap.
func respondError(c *gin.Context, err error) {
	var (
		missingRefresh *wxopen.MissingRefreshTokenError
		tokenErr       *wxopen.TokenAcquisitionError
		exchangeErr    *wxopen.AuthorizationExchangeError
		remoteErr      *wxopen.RemoteAPIError
		openArgErr     *wxopen.ArgumentError
		paymentErr     *wxpay.PaymentAPIError
		signatureErr   *wxpay.SignatureVerificationError
		certErr        *wxpay.MissingCertificateError
		payArgErr      *wxpay.ArgumentError
		transportErr   *transport.TransportError
	)

	switch {
	case errors.Is(err, utils.ErrPaymentNotConfigured), errors.Is(err, utils.ErrPlatformNotConfigured):
		utils.Error(c, http.StatusServiceUnavailable, "NOT_CONFIGURED", err.Error())
	case errors.Is(err, utils.ErrUnsupportedTradeType):
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.As(err, &missingRefresh):
		utils.Error(c, http.StatusConflict, "MISSING_REFRESH_TOKEN", "Authorizer has not been authorized")
	case errors.As(err, &tokenErr):
		utils.Error(c, http.StatusServiceUnavailable, "TOKEN_UNAVAILABLE", tokenErr.Error())
	case errors.As(err, &exchangeErr):
		utils.Error(c, http.StatusBadGateway, "REMOTE_API_ERROR", exchangeErr.Error())
	case errors.As(err, &remoteErr):
		utils.ErrorWithRemote(c, http.StatusBadGateway, "REMOTE_API_ERROR", remoteErr.Message, strconv.Itoa(remoteErr.Code))
	case errors.Is(err, wxopen.ErrEmptyPreAuthCode):
		utils.Error(c, http.StatusBadGateway, "REMOTE_API_ERROR", err.Error())
	case errors.As(err, &paymentErr):
		utils.ErrorWithRemote(c, http.StatusUnprocessableEntity, "PAYMENT_FAILED", paymentErr.Message, paymentErr.Code)
	case errors.As(err, &signatureErr):
		utils.Error(c, http.StatusBadGateway, "SIGNATURE_INVALID", "Response signature verification failed")
	case errors.As(err, &certErr):
		utils.Error(c, http.StatusInternalServerError, "MISSING_CERTIFICATE", certErr.Error())
	case errors.As(err, &payArgErr), errors.As(err, &openArgErr):
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.As(err, &transportErr):
		utils.Error(c, http.StatusBadGateway, "TRANSPORT_ERROR", "WeChat API unreachable")
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
		utils.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
