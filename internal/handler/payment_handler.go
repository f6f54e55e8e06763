package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_wechat/internal/models"
	"github.com/GTDGit/gtd_wechat/internal/utils"
)

// PaymentService is what PaymentHandler needs from the payment service.
type PaymentService interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.OrderResponse, error)
	QueryOrder(ctx context.Context, orderID string) (map[string]string, error)
	ReverseOrder(ctx context.Context, orderID string) (map[string]string, error)
	Refund(ctx context.Context, req models.RefundRequest) (*models.RefundResponse, error)
	QueryRefund(ctx context.Context, orderID string) (map[string]string, error)
	HandleNotification(ctx context.Context, body []byte) (*models.PaymentNotification, error)
}

// PaymentHandler handles payment HTTP endpoints.
type PaymentHandler struct {
	paymentService PaymentService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(paymentService PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreateOrder handles POST /v1/pay/orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.ClientIP == "" {
		req.ClientIP = c.ClientIP()
	}

	order, err := h.paymentService.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 201, "Order created", order)
}

// GetOrder handles GET /v1/pay/orders/:orderId
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	resp, err := h.paymentService.QueryOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Order found", resp)
}

// ReverseOrder handles POST /v1/pay/orders/:orderId/reverse
func (h *PaymentHandler) ReverseOrder(c *gin.Context) {
	resp, err := h.paymentService.ReverseOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Order reversed", resp)
}

// CreateRefund handles POST /v1/pay/refunds
func (h *PaymentHandler) CreateRefund(c *gin.Context) {
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	refund, err := h.paymentService.Refund(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 201, "Refund accepted", refund)
}

// GetRefund handles GET /v1/pay/refunds/:orderId
func (h *PaymentHandler) GetRefund(c *gin.Context) {
	resp, err := h.paymentService.QueryRefund(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, 200, "Refund found", resp)
}
