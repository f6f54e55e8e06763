package wxpay

import "context"

const (
	pathRefund      = "secapi/pay/refund"
	pathRefundQuery = "pay/refundquery"
)

// RefundRequest describes a refund. Amounts are in fen. RefundNo defaults
// to OrderID, which allows a single full refund per order.
type RefundRequest struct {
	OrderID       string
	TransactionID string
	RefundNo      string
	TotalFee      int64
	RefundFee     int64
	RefundDesc    string
}

// Refund requests a refund over mutual TLS. The certificate check happens
// before anything is sent.
func (g *Gateway) Refund(ctx context.Context, req RefundRequest) (map[string]string, error) {
	if !g.cfg.HasCertificate() {
		return nil, &MissingCertificateError{Operation: "refund"}
	}
	if req.OrderID == "" && req.TransactionID == "" {
		return nil, argErrorf("order id or transaction id is required")
	}
	refundNo := req.RefundNo
	if refundNo == "" {
		refundNo = req.OrderID
	}
	if refundNo == "" {
		return nil, argErrorf("refund number is required")
	}
	if req.TotalFee <= 0 || req.RefundFee <= 0 {
		return nil, argErrorf("refund and total fee must be positive")
	}
	if req.RefundFee > req.TotalFee {
		return nil, argErrorf("refund fee %d exceeds total fee %d", req.RefundFee, req.TotalFee)
	}

	p, err := g.identity()
	if err != nil {
		return nil, err
	}
	p.SetIfNotEmpty("out_trade_no", req.OrderID).
		SetIfNotEmpty("transaction_id", req.TransactionID).
		Set("out_refund_no", refundNo).
		SetInt("total_fee", req.TotalFee).
		SetInt("refund_fee", req.RefundFee).
		Set("op_user_id", g.cfg.MchID).
		SetIfNotEmpty("refund_desc", req.RefundDesc)

	return g.call(ctx, pathRefund, p, true)
}

// RefundQuery looks up the refunds of an order.
func (g *Gateway) RefundQuery(ctx context.Context, orderID, transactionID string) (map[string]string, error) {
	p, err := g.lookup(orderID, transactionID)
	if err != nil {
		return nil, err
	}
	return g.call(ctx, pathRefundQuery, p, false)
}
