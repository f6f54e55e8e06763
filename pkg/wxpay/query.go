package wxpay

import "context"

const (
	pathOrderQuery = "pay/orderquery"
	pathReverse    = "secapi/pay/reverse"
)

// lookup builds a request keyed on the merchant order id and, when known,
// the platform transaction id. No amount fields are sent.
func (g *Gateway) lookup(orderID, transactionID string) (*Params, error) {
	if orderID == "" && transactionID == "" {
		return nil, argErrorf("order id or transaction id is required")
	}

	p, err := g.identity()
	if err != nil {
		return nil, err
	}
	p.SetIfNotEmpty("out_trade_no", orderID).
		SetIfNotEmpty("transaction_id", transactionID)
	return p, nil
}

// Query returns the current state of an order.
func (g *Gateway) Query(ctx context.Context, orderID, transactionID string) (map[string]string, error) {
	p, err := g.lookup(orderID, transactionID)
	if err != nil {
		return nil, err
	}
	return g.call(ctx, pathOrderQuery, p, false)
}

// Reverse cancels an order, refunding it if it was already paid. Used for
// MICROPAY orders whose outcome is unknown. Requires the client certificate.
func (g *Gateway) Reverse(ctx context.Context, orderID, transactionID string) (map[string]string, error) {
	if !g.cfg.HasCertificate() {
		return nil, &MissingCertificateError{Operation: "reverse"}
	}
	p, err := g.lookup(orderID, transactionID)
	if err != nil {
		return nil, err
	}
	return g.call(ctx, pathReverse, p, true)
}
