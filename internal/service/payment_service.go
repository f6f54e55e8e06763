package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_wechat/internal/models"
	"github.com/GTDGit/gtd_wechat/internal/utils"
	"github.com/GTDGit/gtd_wechat/pkg/wxpay"
)

// PaymentService places and manages WeChat Pay orders. It holds one gateway
// per trade type; all gateways share the merchant key.
type PaymentService struct {
	gateways  map[wxpay.TradeType]*wxpay.Gateway
	primary   *wxpay.Gateway
	notifyURL string
}

// NewPaymentService constructs a PaymentService. The first gateway is used
// for trade-type independent calls (query, refund, notifications).
func NewPaymentService(notifyURL string, gateways ...*wxpay.Gateway) *PaymentService {
	s := &PaymentService{
		gateways:  make(map[wxpay.TradeType]*wxpay.Gateway, len(gateways)),
		notifyURL: notifyURL,
	}
	for _, g := range gateways {
		if g == nil {
			continue
		}
		if s.primary == nil {
			s.primary = g
		}
		s.gateways[g.TradeType()] = g
	}
	return s
}

func (s *PaymentService) gateway() (*wxpay.Gateway, error) {
	if s.primary == nil {
		return nil, utils.ErrPaymentNotConfigured
	}
	return s.primary, nil
}

// CreateOrder places an order with the gateway for req.TradeType.
func (s *PaymentService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.OrderResponse, error) {
	if s.primary == nil {
		return nil, utils.ErrPaymentNotConfigured
	}
	tt, err := wxpay.ParseTradeType(req.TradeType)
	if err != nil {
		return nil, err
	}
	g, ok := s.gateways[tt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnsupportedTradeType, tt)
	}

	notifyURL := req.NotifyURL
	if notifyURL == "" {
		notifyURL = s.notifyURL
	}

	result, err := g.BuildOrder(ctx, wxpay.OrderRequest{
		OrderID:    req.OrderID,
		Body:       req.Body,
		TotalFee:   req.TotalFee,
		NotifyURL:  notifyURL,
		ClientIP:   req.ClientIP,
		TimeExpire: time.Duration(req.ExpireMins) * time.Minute,
		Attach:     req.Attach,
		OpenID:     req.OpenID,
		AuthCode:   req.AuthCode,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("order_id", req.OrderID).
			Str("trade_type", string(tt)).
			Msg("[WXPAY] Order failed")
		return nil, err
	}

	log.Info().
		Str("order_id", req.OrderID).
		Str("trade_type", string(tt)).
		Int64("total_fee", req.TotalFee).
		Msg("[WXPAY] Order placed")

	return &models.OrderResponse{
		OrderID:       req.OrderID,
		TradeType:     string(tt),
		PrepayID:      result.Response["prepay_id"],
		TransactionID: result.Response["transaction_id"],
		PayParams:     result.Prepay,
		Raw:           result.Response,
	}, nil
}

// QueryOrder returns the gateway's view of an order.
func (s *PaymentService) QueryOrder(ctx context.Context, orderID string) (map[string]string, error) {
	g, err := s.gateway()
	if err != nil {
		return nil, err
	}
	return g.Query(ctx, orderID, "")
}

// ReverseOrder cancels a MICROPAY order that is unpaid or in doubt.
func (s *PaymentService) ReverseOrder(ctx context.Context, orderID string) (map[string]string, error) {
	g, err := s.gateway()
	if err != nil {
		return nil, err
	}
	resp, err := g.Reverse(ctx, orderID, "")
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Str("recall", resp["recall"]).
		Msg("[WXPAY] Order reversed")
	return resp, nil
}

// Refund requests a refund. A missing refund number is generated so each
// call is a distinct refund.
func (s *PaymentService) Refund(ctx context.Context, req models.RefundRequest) (*models.RefundResponse, error) {
	g, err := s.gateway()
	if err != nil {
		return nil, err
	}

	refundNo := req.RefundNo
	if refundNo == "" {
		refundNo = strings.ReplaceAll(uuid.New().String(), "-", "")
	}

	resp, err := g.Refund(ctx, wxpay.RefundRequest{
		OrderID:       req.OrderID,
		TransactionID: req.TransactionID,
		RefundNo:      refundNo,
		TotalFee:      req.TotalFee,
		RefundFee:     req.RefundFee,
		RefundDesc:    req.RefundDesc,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("order_id", req.OrderID).
			Str("refund_no", refundNo).
			Msg("[WXPAY] Refund failed")
		return nil, err
	}

	log.Info().
		Str("order_id", req.OrderID).
		Str("refund_no", refundNo).
		Int64("refund_fee", req.RefundFee).
		Msg("[WXPAY] Refund accepted")

	return &models.RefundResponse{
		OrderID:  req.OrderID,
		RefundNo: refundNo,
		RefundID: resp["refund_id"],
		Raw:      resp,
	}, nil
}

// QueryRefund returns the refund status of an order.
func (s *PaymentService) QueryRefund(ctx context.Context, orderID string) (map[string]string, error) {
	g, err := s.gateway()
	if err != nil {
		return nil, err
	}
	return g.RefundQuery(ctx, orderID, "")
}

// HandleNotification validates a raw payment notification. The returned
// notification is only non-nil when every check passed.
func (s *PaymentService) HandleNotification(ctx context.Context, body []byte) (*models.PaymentNotification, error) {
	g, err := s.gateway()
	if err != nil {
		return nil, err
	}

	fields, err := g.ParseNotify(body)
	if err != nil {
		log.Warn().Err(err).Msg("[WXPAY] Notification rejected")
		return nil, err
	}

	n := &models.PaymentNotification{
		OrderID:       fields["out_trade_no"],
		TransactionID: fields["transaction_id"],
		TotalFee:      fields["total_fee"],
		OpenID:        fields["openid"],
		TimeEnd:       fields["time_end"],
		Fields:        fields,
	}

	log.Info().
		Str("order_id", n.OrderID).
		Str("transaction_id", n.TransactionID).
		Str("total_fee", n.TotalFee).
		Msg("[WXPAY] Payment notification verified")
	return n, nil
}
