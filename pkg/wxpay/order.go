package wxpay

import (
	"context"
	"strconv"
	"time"
)

const (
	pathUnifiedOrder = "pay/unifiedorder"
	pathMicropay     = "pay/micropay"

	defaultOrderExpiry = 15 * time.Minute
	minOrderExpiry     = 5 * time.Minute

	timeExpireLayout = "20060102150405"
)

// OrderRequest describes an order to place. TotalFee is in fen.
type OrderRequest struct {
	OrderID   string
	Body      string
	TotalFee  int64
	NotifyURL string
	ClientIP  string
	// TimeExpire is how long the order stays payable. Values of 5 minutes
	// or less fall back to 15 minutes.
	TimeExpire time.Duration
	Attach     string

	// OpenID is the payer for JSAPI orders.
	OpenID string
	// AuthCode is the code scanned from the payer's device for MICROPAY orders.
	AuthCode string
}

// OrderResult pairs the validated gateway response with the parameters the
// client SDK needs to start payment. Prepay is nil for MICROPAY.
type OrderResult struct {
	Response map[string]string
	Prepay   map[string]string
}

// contributor adds the fields specific to one trade type.
type contributor func(g *Gateway, p *Params, req OrderRequest) error

var contributors = map[TradeType]contributor{
	TradeTypeApp:   contributeApp,
	TradeTypeJSAPI: contributeJSAPI,
	TradeTypeMicro: contributeMicro,
}

func contributeApp(g *Gateway, p *Params, req OrderRequest) error {
	if req.NotifyURL == "" {
		return argErrorf("notify url is required")
	}
	p.Set("notify_url", req.NotifyURL).
		Set("trade_type", string(TradeTypeApp)).
		Set("time_expire", g.timeExpire(req.TimeExpire))
	return nil
}

func contributeJSAPI(g *Gateway, p *Params, req OrderRequest) error {
	if req.NotifyURL == "" {
		return argErrorf("notify url is required")
	}
	if req.OpenID == "" {
		return argErrorf("openid is required for JSAPI orders")
	}
	p.Set("notify_url", req.NotifyURL).
		Set("trade_type", string(TradeTypeJSAPI)).
		Set("openid", req.OpenID).
		Set("time_expire", g.timeExpire(req.TimeExpire))
	return nil
}

func contributeMicro(_ *Gateway, p *Params, req OrderRequest) error {
	if req.AuthCode == "" {
		return argErrorf("auth code is required for MICROPAY orders")
	}
	p.Set("auth_code", req.AuthCode)
	return nil
}

func (g *Gateway) timeExpire(d time.Duration) string {
	if d <= minOrderExpiry {
		d = defaultOrderExpiry
	}
	return g.now().Add(d).In(g.loc).Format(timeExpireLayout)
}

// OrderParams builds and signs the request for req without sending it.
func (g *Gateway) OrderParams(req OrderRequest) (*Params, error) {
	if req.OrderID == "" {
		return nil, argErrorf("order id is required")
	}
	if req.Body == "" {
		return nil, argErrorf("body is required")
	}
	if req.TotalFee <= 0 {
		return nil, argErrorf("total fee must be positive, got %d", req.TotalFee)
	}

	p, err := g.identity()
	if err != nil {
		return nil, err
	}
	p.Set("body", req.Body).
		SetIfNotEmpty("attach", req.Attach).
		Set("out_trade_no", req.OrderID).
		SetInt("total_fee", req.TotalFee).
		Set("spbill_create_ip", req.ClientIP)

	if err := contributors[g.tradeType](g, p, req); err != nil {
		return nil, err
	}

	p.Sign(SignField, g.cfg.Key)
	return p, nil
}

// BuildOrder places an order. APP and JSAPI go through unified order and
// return client prepay parameters; MICROPAY charges the scanned auth code
// directly.
func (g *Gateway) BuildOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	p, err := g.OrderParams(req)
	if err != nil {
		return nil, err
	}

	if g.tradeType == TradeTypeMicro {
		resp, err := g.call(ctx, pathMicropay, p, false)
		if err != nil {
			return nil, err
		}
		return &OrderResult{Response: resp}, nil
	}

	resp, err := g.call(ctx, pathUnifiedOrder, p, false)
	if err != nil {
		return nil, err
	}

	prepay, err := g.PrepayParams(resp["prepay_id"])
	if err != nil {
		return nil, err
	}
	return &OrderResult{Response: resp, Prepay: prepay}, nil
}

// PrepayParams signs the client SDK invocation parameters for prepayID. The
// client signs in its own context, so this is a separate signature over a
// different field set.
func (g *Gateway) PrepayParams(prepayID string) (map[string]string, error) {
	if prepayID == "" {
		return nil, argErrorf("invalid prepay id")
	}

	nonce, err := g.newNonce(clientNonceLength)
	if err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(g.now().Unix(), 10)

	switch g.tradeType {
	case TradeTypeApp:
		p := NewParams().
			Set("appid", g.cfg.AppID).
			Set("partnerid", g.cfg.MchID).
			Set("prepayid", prepayID).
			Set("noncestr", nonce).
			Set("timestamp", timestamp).
			Set("package", "Sign=WXPay")
		p.Sign(SignField, g.cfg.Key)
		return p.Map(), nil
	case TradeTypeJSAPI:
		signed := map[string]string{
			"appId":     g.cfg.AppID,
			"timeStamp": timestamp,
			"nonceStr":  nonce,
			"package":   "prepay_id=" + prepayID,
			"signType":  "MD5",
		}
		return map[string]string{
			"timestamp": timestamp,
			"nonceStr":  nonce,
			"package":   signed["package"],
			"signType":  "MD5",
			"paySign":   Sign(signed, g.cfg.Key),
		}, nil
	default:
		return nil, argErrorf("trade type %s has no prepay parameters", g.tradeType)
	}
}
