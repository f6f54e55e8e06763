package wxpay

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_wechat/pkg/transport"
)

const (
	// DefaultBaseURL is the WeChat Pay v2 API base URL.
	DefaultBaseURL = "https://api.mch.weixin.qq.com"

	requestNonceLength = 16
	clientNonceLength  = 32
)

// chinaStandardTime is the zone time_expire is interpreted in (UTC+8).
var chinaStandardTime = time.FixedZone("CST", 8*3600)

// TradeType selects how an order is placed and paid.
type TradeType string

const (
	TradeTypeApp   TradeType = "APP"
	TradeTypeJSAPI TradeType = "JSAPI"
	TradeTypeMicro TradeType = "MICROPAY"
)

// ParseTradeType validates a trade type name (case-insensitive).
func ParseTradeType(s string) (TradeType, error) {
	switch t := TradeType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TradeTypeApp, TradeTypeJSAPI, TradeTypeMicro:
		return t, nil
	default:
		return "", argErrorf("unsupported trade type %q", s)
	}
}

// Config identifies the merchant. SubMchID and SubAppID are only sent when
// set (service-provider mode).
type Config struct {
	AppID    string
	Key      string
	MchID    string
	SubMchID string
	SubAppID string

	CertFile string
	KeyFile  string
	P12File  string
}

// HasCertificate reports whether client certificate material is configured.
func (c Config) HasCertificate() bool {
	return (c.CertFile != "" && c.KeyFile != "") || c.P12File != ""
}

// Gateway signs, sends and validates payment API calls for one merchant and
// trade type. It holds no mutable state and is safe for concurrent use.
type Gateway struct {
	cfg       Config
	tradeType TradeType
	poster    transport.Poster
	baseURL   string
	timeout   time.Duration
	now       func() time.Time
	random    io.Reader
	loc       *time.Location
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithBaseURL points the gateway at another host (sandbox, test server).
func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithRandom replaces the nonce randomness source.
func WithRandom(r io.Reader) Option {
	return func(g *Gateway) { g.random = r }
}

// WithLocation sets the zone used to format time_expire.
func WithLocation(loc *time.Location) Option {
	return func(g *Gateway) { g.loc = loc }
}

// WithTimeout sets a per-request timeout passed to the transport.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// NewGateway validates cfg and builds a Gateway.
func NewGateway(cfg Config, tradeType TradeType, poster transport.Poster, opts ...Option) (*Gateway, error) {
	if cfg.AppID == "" || cfg.MchID == "" || cfg.Key == "" {
		return nil, argErrorf("invalid config: app id, merchant id and key are required")
	}
	if _, err := ParseTradeType(string(tradeType)); err != nil {
		return nil, err
	}
	if poster == nil {
		return nil, argErrorf("invalid config: transport is required")
	}

	g := &Gateway{
		cfg:       cfg,
		tradeType: tradeType,
		poster:    poster,
		baseURL:   DefaultBaseURL,
		now:       time.Now,
		random:    rand.Reader,
		loc:       chinaStandardTime,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// TradeType returns the trade type the gateway places orders with.
func (g *Gateway) TradeType() TradeType {
	return g.tradeType
}

// identity starts a request with the merchant fields and a fresh nonce.
func (g *Gateway) identity() (*Params, error) {
	nonce, err := NewNonce(requestNonceLength, g.random)
	if err != nil {
		return nil, err
	}

	p := NewParams().
		Set("appid", g.cfg.AppID).
		Set("mch_id", g.cfg.MchID).
		SetIfNotEmpty("sub_appid", g.cfg.SubAppID).
		SetIfNotEmpty("sub_mch_id", g.cfg.SubMchID).
		Set("nonce_str", nonce)
	return p, nil
}

// call signs p, posts it to path and validates the response.
func (g *Gateway) call(ctx context.Context, path string, p *Params, useCert bool) (map[string]string, error) {
	p.Sign(SignField, g.cfg.Key)

	outTradeNo, _ := p.Get("out_trade_no")
	log.Debug().
		Str("path", path).
		Str("out_trade_no", outTradeNo).
		Bool("client_cert", useCert).
		Msg("[WXPAY] Calling payment API")

	raw, err := g.poster.Post(ctx, transport.Request{
		URL:           g.baseURL + "/" + path,
		Body:          EncodeXML(p),
		ContentType:   transport.ContentTypeXML,
		UseClientCert: useCert,
		Timeout:       g.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	fields, err := DecodeXML(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ParseResponseResult(fields, g.cfg.Key)
}

func (g *Gateway) newNonce(n int) (string, error) {
	return NewNonce(n, g.random)
}
