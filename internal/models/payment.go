package models

// CreateOrderRequest is the body of POST /v1/pay/orders. Amounts are in fen.
type CreateOrderRequest struct {
	TradeType  string `json:"tradeType" binding:"required"`
	OrderID    string `json:"orderId" binding:"required,max=32"`
	Body       string `json:"body" binding:"required,max=128"`
	TotalFee   int64  `json:"totalFee" binding:"required,min=1"`
	ClientIP   string `json:"clientIp"`
	NotifyURL  string `json:"notifyUrl"`
	Attach     string `json:"attach"`
	OpenID     string `json:"openId"`
	AuthCode   string `json:"authCode"`
	ExpireMins int    `json:"expireMinutes"`
}

// OrderResponse is returned after an order is placed.
type OrderResponse struct {
	OrderID       string            `json:"orderId"`
	TradeType     string            `json:"tradeType"`
	PrepayID      string            `json:"prepayId,omitempty"`
	TransactionID string            `json:"transactionId,omitempty"`
	PayParams     map[string]string `json:"payParams,omitempty"`
	Raw           map[string]string `json:"raw"`
}

// RefundRequest is the body of POST /v1/pay/refunds. Amounts are in fen.
type RefundRequest struct {
	OrderID       string `json:"orderId" binding:"required_without=TransactionID"`
	TransactionID string `json:"transactionId"`
	RefundNo      string `json:"refundNo"`
	TotalFee      int64  `json:"totalFee" binding:"required,min=1"`
	RefundFee     int64  `json:"refundFee" binding:"required,min=1"`
	RefundDesc    string `json:"refundDesc"`
}

// RefundResponse is returned after a refund is accepted.
type RefundResponse struct {
	OrderID  string            `json:"orderId"`
	RefundNo string            `json:"refundNo"`
	RefundID string            `json:"refundId,omitempty"`
	Raw      map[string]string `json:"raw"`
}

// PaymentNotification is the verified content of a payment notification.
type PaymentNotification struct {
	OrderID       string
	TransactionID string
	TotalFee      string
	OpenID        string
	TimeEnd       string
	Fields        map[string]string
}
