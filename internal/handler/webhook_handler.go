package handler

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_wechat/internal/models"
	"github.com/GTDGit/gtd_wechat/internal/utils"
	"github.com/GTDGit/gtd_wechat/pkg/wxpay"
)

// maxWebhookBody caps webhook payloads read into memory.
const maxWebhookBody = 1 << 20

// WebhookHandler handles inbound pushes: verify tickets and payment notifications.
type WebhookHandler struct {
	platformService PlatformService
	paymentService  PaymentService
	ticketSecret    string
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(platformService PlatformService, paymentService PaymentService, ticketSecret string) *WebhookHandler {
	return &WebhookHandler{
		platformService: platformService,
		paymentService:  paymentService,
		ticketSecret:    ticketSecret,
	}
}

// HandleVerifyTicket handles POST /webhook/wechat/ticket
func (h *WebhookHandler) HandleVerifyTicket(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid body")
		return
	}

	if !utils.VerifySignature(body, c.GetHeader("X-Signature"), h.ticketSecret) {
		log.Warn().Str("ip", c.ClientIP()).Msg("[WXOPEN] Verify ticket push with invalid signature")
		utils.Error(c, 401, "INVALID_SIGNATURE", "Invalid signature")
		return
	}

	var push models.VerifyTicketPush
	if err := json.Unmarshal(body, &push); err != nil || push.Ticket == "" {
		utils.Error(c, 400, "INVALID_REQUEST", "ticket is required")
		return
	}

	if err := h.platformService.SaveVerifyTicket(c.Request.Context(), push.Ticket); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Ticket stored", gin.H{"received": true})
}

// HandlePayNotify handles POST /webhook/wechat/pay. WeChat expects an XML
// reply; FAIL makes it redeliver the notification later.
func (h *WebhookHandler) HandlePayNotify(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.XML(c, 200, wxpay.NotifyReply(false, "invalid body"))
		return
	}

	if _, err := h.paymentService.HandleNotification(c.Request.Context(), body); err != nil {
		log.Warn().Err(err).Str("ip", c.ClientIP()).Msg("[WXPAY] Payment notification failed validation")
		utils.XML(c, 200, wxpay.NotifyReply(false, "validation failed"))
		return
	}
	utils.XML(c, 200, wxpay.NotifyReply(true, "OK"))
}
