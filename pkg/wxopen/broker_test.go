package wxopen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_wechat/pkg/transport"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// clockCache is an in-memory Cache whose notion of "now" is controlled by the test.
type clockCache struct {
	mu      sync.Mutex
	now     time.Time
	entries map[string]entry
}

func newClockCache() *clockCache {
	return &clockCache{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), entries: map[string]entry{}}
}

func (c *clockCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || (!e.expiresAt.IsZero() && !c.now.Before(e.expiresAt)) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *clockCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now.Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *clockCache) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *clockCache) ttl(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(c.now)
}

type call struct {
	path string
	url  string
	body map[string]string
}

// routePoster answers by endpoint path and records every call.
type routePoster struct {
	mu     sync.Mutex
	calls  []call
	routes map[string]func(body map[string]string) (string, error)
}

func (p *routePoster) Post(_ context.Context, req transport.Request) ([]byte, error) {
	path := strings.TrimPrefix(req.URL, "https://open.test")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	var body map[string]string
	_ = json.Unmarshal(req.Body, &body)

	p.mu.Lock()
	p.calls = append(p.calls, call{path: path, url: req.URL, body: body})
	p.mu.Unlock()

	route, ok := p.routes[path]
	if !ok {
		return nil, &transport.TransportError{URL: req.URL, StatusCode: 404}
	}
	resp, err := route(body)
	if err != nil {
		return nil, err
	}
	return []byte(resp), nil
}

func (p *routePoster) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.path == path {
			n++
		}
	}
	return n
}

func componentTokenRoute(body map[string]string) (string, error) {
	if body["component_verify_ticket"] == "" {
		return `{"errcode":61004,"errmsg":"access clientip is not registered"}`, nil
	}
	return `{"component_access_token":"ctoken-1","expires_in":7200}`, nil
}

func newTestBroker(t *testing.T, cfg Config, routes map[string]func(map[string]string) (string, error)) (*Broker, *clockCache, *routePoster) {
	t.Helper()
	if cfg.AppID == "" {
		cfg.AppID = "wxcomponent"
	}
	if cfg.AppSecret == "" {
		cfg.AppSecret = "secret"
	}
	cfg.BaseURL = "https://open.test"
	cache := newClockCache()
	poster := &routePoster{routes: routes}
	b, err := NewBroker(cfg, cache, poster)
	require.NoError(t, err)
	return b, cache, poster
}

func TestNewBroker_Validation(t *testing.T) {
	_, err := NewBroker(Config{AppID: "a"}, newClockCache(), &routePoster{})
	var ae *ArgumentError
	assert.True(t, errors.As(err, &ae))

	_, err = NewBroker(Config{AppID: "a", AppSecret: "s"}, nil, &routePoster{})
	assert.True(t, errors.As(err, &ae))
}

func TestSetComponentVerifyTicket(t *testing.T) {
	b, cache, _ := newTestBroker(t, Config{}, nil)

	require.NoError(t, b.SetComponentVerifyTicket(context.Background(), "ticket@@@1"))
	assert.Equal(t, 900*time.Second, cache.ttl("wx:component:verify:ticket:wxcomponent"))

	err := b.SetComponentVerifyTicket(context.Background(), "")
	var ae *ArgumentError
	assert.True(t, errors.As(err, &ae))
}

func TestGetComponentAccessToken_CachesWithinTTL(t *testing.T) {
	b, cache, poster := newTestBroker(t, Config{}, map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
	})
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	token, err := b.GetComponentAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ctoken-1", token)
	assert.Equal(t, 1, poster.count(pathComponentToken))
	assert.Equal(t, 7100*time.Second, cache.ttl("wx:component:access:token:wxcomponent"))

	sent := poster.calls[0].body
	assert.Equal(t, "wxcomponent", sent["component_appid"])
	assert.Equal(t, "secret", sent["component_appsecret"])
	assert.Equal(t, "ticket", sent["component_verify_ticket"])

	cache.advance(7000 * time.Second)
	_, err = b.GetComponentAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, poster.count(pathComponentToken), "second call inside TTL must hit the cache")

	cache.advance(200 * time.Second)
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket-2"))
	_, err = b.GetComponentAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, poster.count(pathComponentToken), "call after TTL must refresh")
}

func TestGetComponentAccessToken_DefaultTTL(t *testing.T) {
	b, cache, _ := newTestBroker(t, Config{}, map[string]func(map[string]string) (string, error){
		pathComponentToken: func(map[string]string) (string, error) {
			return `{"component_access_token":"ctoken"}`, nil
		},
	})
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	_, err := b.GetComponentAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cache.ttl("wx:component:access:token:wxcomponent"))
}

func TestGetComponentAccessToken_MissingTicket(t *testing.T) {
	b, _, poster := newTestBroker(t, Config{}, map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
	})

	_, err := b.GetComponentAccessToken(context.Background())
	var te *TokenAcquisitionError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, ErrVerifyTicketMissing)
	assert.Empty(t, poster.calls)
}

func TestGetComponentAccessToken_RemoteFailure(t *testing.T) {
	b, _, _ := newTestBroker(t, Config{}, map[string]func(map[string]string) (string, error){
		pathComponentToken: func(map[string]string) (string, error) {
			return `{"errcode":61005,"errmsg":"component ticket is expired"}`, nil
		},
	})
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "stale"))

	_, err := b.GetComponentAccessToken(ctx)
	var te *TokenAcquisitionError
	require.True(t, errors.As(err, &te))
	var re *RemoteAPIError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 61005, re.Code)
}

func TestGetComponentAccessToken_TransportError(t *testing.T) {
	b, _, _ := newTestBroker(t, Config{}, map[string]func(map[string]string) (string, error){
		pathComponentToken: func(map[string]string) (string, error) {
			return "", &transport.TransportError{URL: "x", StatusCode: 500}
		},
	})
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "t"))

	_, err := b.GetComponentAccessToken(ctx)
	var te *transport.TransportError
	assert.True(t, errors.As(err, &te))
}

func TestGetAuthorizerAccessToken_MissingRefreshToken(t *testing.T) {
	b, _, poster := newTestBroker(t, Config{}, map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
	})

	_, err := b.GetAuthorizerAccessToken(context.Background(), "wxauthorizer")
	var me *MissingRefreshTokenError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "wxauthorizer", me.AuthorizerAppID)
	assert.Empty(t, poster.calls)
}

func authorizationRoutes() map[string]func(map[string]string) (string, error) {
	return map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
		pathQueryAuth: func(body map[string]string) (string, error) {
			if body["authorization_code"] != "code-1" {
				return `{"errcode":61010,"errmsg":"code is expired"}`, nil
			}
			return `{"authorization_info":{"authorizer_appid":"wxauthorizer","authorizer_access_token":"atoken-1","expires_in":7200,"authorizer_refresh_token":"rtoken-1","func_info":[{"funcscope_category":{"id":1}}]}}`, nil
		},
		pathAuthorizerToken: func(body map[string]string) (string, error) {
			if body["authorizer_refresh_token"] != "rtoken-1" {
				return `{"errcode":61003,"errmsg":"component is not authorized by this account"}`, nil
			}
			return `{"authorizer_access_token":"atoken-2","expires_in":7200,"authorizer_refresh_token":"rtoken-1"}`, nil
		},
	}
}

func TestGetAuthorizationInfo_CachesBothTokens(t *testing.T) {
	b, cache, poster := newTestBroker(t, Config{}, authorizationRoutes())
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	info, err := b.GetAuthorizationInfo(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "wxauthorizer", info.AuthorizerAppID)
	assert.Equal(t, "atoken-1", info.AuthorizerAccessToken)
	assert.NotEmpty(t, info.FuncInfo)

	assert.Contains(t, poster.calls[len(poster.calls)-1].url, "component_access_token=ctoken-1")

	refresh, err := b.GetAuthorizerRefreshToken(ctx, "wxauthorizer")
	require.NoError(t, err)
	assert.Equal(t, "rtoken-1", refresh)
	assert.Zero(t, cache.ttl("wx:authorizer:refresh:token:wxauthorizer"))
	assert.Equal(t, 7100*time.Second, cache.ttl("wx:authorizer:access:token:wxauthorizer"))

	token, err := b.GetAuthorizerAccessToken(ctx, "wxauthorizer")
	require.NoError(t, err)
	assert.Equal(t, "atoken-1", token)
	assert.Zero(t, poster.count(pathAuthorizerToken))
}

func TestGetAuthorizationInfo_MissingInfo(t *testing.T) {
	b, _, _ := newTestBroker(t, Config{}, authorizationRoutes())
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	_, err := b.GetAuthorizationInfo(ctx, "bad-code")
	var ae *AuthorizationExchangeError
	require.True(t, errors.As(err, &ae))
	var re *RemoteAPIError
	assert.True(t, errors.As(err, &re))
}

func TestGetAuthorizerAccessToken_RefreshesAfterExpiry(t *testing.T) {
	b, cache, poster := newTestBroker(t, Config{}, authorizationRoutes())
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))
	_, err := b.GetAuthorizationInfo(ctx, "code-1")
	require.NoError(t, err)

	cache.advance(7100 * time.Second)
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	token, err := b.GetAuthorizerAccessToken(ctx, "wxauthorizer")
	require.NoError(t, err)
	assert.Equal(t, "atoken-2", token)
	assert.Equal(t, 1, poster.count(pathAuthorizerToken))

	last := poster.calls[len(poster.calls)-1]
	assert.Equal(t, "wxcomponent", last.body["component_appid"])
	assert.Equal(t, "wxauthorizer", last.body["authorizer_appid"])
	assert.Equal(t, "rtoken-1", last.body["authorizer_refresh_token"])

	_, err = b.GetAuthorizerAccessToken(ctx, "wxauthorizer")
	require.NoError(t, err)
	assert.Equal(t, 1, poster.count(pathAuthorizerToken))
}

func TestGetAuthorizerAccessToken_RemoteError(t *testing.T) {
	b, cache, _ := newTestBroker(t, Config{}, authorizationRoutes())
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))
	require.NoError(t, cache.Set(ctx, "wx:authorizer:refresh:token:wxother", "revoked", 0))

	_, err := b.GetAuthorizerAccessToken(ctx, "wxother")
	var re *RemoteAPIError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 61003, re.Code)
	assert.Equal(t, "component is not authorized by this account", re.Message)
}

func TestGetAuthorizerAccessToken_RotatedRefreshToken(t *testing.T) {
	routes := authorizationRoutes()
	routes[pathAuthorizerToken] = func(map[string]string) (string, error) {
		return `{"authorizer_access_token":"atoken-3","expires_in":7200,"authorizer_refresh_token":"rtoken-2"}`, nil
	}
	b, cache, _ := newTestBroker(t, Config{}, routes)
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))
	require.NoError(t, cache.Set(ctx, "wx:authorizer:refresh:token:wxauthorizer", "rtoken-1", 0))

	_, err := b.GetAuthorizerAccessToken(ctx, "wxauthorizer")
	require.NoError(t, err)

	refresh, err := b.GetAuthorizerRefreshToken(ctx, "wxauthorizer")
	require.NoError(t, err)
	assert.Equal(t, "rtoken-2", refresh)
}

func TestGetPreAuthCode(t *testing.T) {
	routes := map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
		pathPreAuthCode: func(map[string]string) (string, error) {
			return `{"pre_auth_code":"preauth@@@1","expires_in":600}`, nil
		},
	}
	b, _, poster := newTestBroker(t, Config{}, routes)
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	code, err := b.GetPreAuthCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "preauth@@@1", code)

	_, err = b.GetPreAuthCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, poster.count(pathPreAuthCode), "pre-auth codes are never cached")
}

func TestGetPreAuthCode_LenientAndStrict(t *testing.T) {
	routes := map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
		pathPreAuthCode: func(map[string]string) (string, error) {
			return `{"errcode":40013,"errmsg":"invalid appid"}`, nil
		},
	}
	ctx := context.Background()

	lenient, _, _ := newTestBroker(t, Config{}, routes)
	require.NoError(t, lenient.SetComponentVerifyTicket(ctx, "ticket"))
	code, err := lenient.GetPreAuthCode(ctx)
	require.NoError(t, err)
	assert.Empty(t, code)

	strict, _, _ := newTestBroker(t, Config{StrictPreAuthCode: true}, routes)
	require.NoError(t, strict.SetComponentVerifyTicket(ctx, "ticket"))
	_, err = strict.GetPreAuthCode(ctx)
	var re *RemoteAPIError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 40013, re.Code)

	routes[pathPreAuthCode] = func(map[string]string) (string, error) { return `{}`, nil }
	_, err = strict.GetPreAuthCode(ctx)
	assert.ErrorIs(t, err, ErrEmptyPreAuthCode)
}

func TestPreAuthURL(t *testing.T) {
	b, _, _ := newTestBroker(t, Config{}, nil)
	u := b.PreAuthURL("preauth@@@1", "https://example.com/auth/callback")

	assert.True(t, strings.HasPrefix(u, "https://mp.weixin.qq.com/cgi-bin/componentloginpage?"))
	assert.Contains(t, u, "component_appid=wxcomponent")
	assert.Contains(t, u, "pre_auth_code=preauth%40%40%401")
	assert.Contains(t, u, "redirect_uri=https%3A%2F%2Fexample.com%2Fauth%2Fcallback")
}

func TestGetAuthorizerInfo(t *testing.T) {
	routes := map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
		pathAuthorizerInfo: func(body map[string]string) (string, error) {
			if body["authorizer_appid"] != "wxauthorizer" {
				return `{"errcode":61003,"errmsg":"not authorized"}`, nil
			}
			return `{"authorizer_info":{"nick_name":"Coffee Shop","user_name":"gh_eb5e3a772040","principal_name":"Coffee Ltd","alias":"coffee"},"authorization_info":{"authorizer_appid":"wxauthorizer"}}`, nil
		},
	}
	b, _, _ := newTestBroker(t, Config{}, routes)
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	info, err := b.GetAuthorizerInfo(ctx, "wxauthorizer")
	require.NoError(t, err)
	assert.Equal(t, "Coffee Shop", info.NickName)
	assert.Equal(t, "gh_eb5e3a772040", info.UserName)
	assert.NotEmpty(t, info.Raw)
	assert.NotEmpty(t, info.Authorization)

	_, err = b.GetAuthorizerInfo(ctx, "wxother")
	var re *RemoteAPIError
	assert.True(t, errors.As(err, &re))
}

func TestAuthorizerOptions(t *testing.T) {
	routes := map[string]func(map[string]string) (string, error){
		pathComponentToken: componentTokenRoute,
		pathGetOption: func(body map[string]string) (string, error) {
			return `{"authorizer_appid":"wxauthorizer","option_name":"` + body["option_name"] + `","option_value":"1"}`, nil
		},
		pathSetOption: func(body map[string]string) (string, error) {
			if body["option_value"] == "9" {
				return `{"errcode":61011,"errmsg":"invalid option value"}`, nil
			}
			if body["option_value"] == "" {
				return `{}`, nil
			}
			return `{"errcode":0,"errmsg":"ok"}`, nil
		},
	}
	b, _, _ := newTestBroker(t, Config{}, routes)
	ctx := context.Background()
	require.NoError(t, b.SetComponentVerifyTicket(ctx, "ticket"))

	opt, err := b.GetAuthorizerOption(ctx, "wxauthorizer", "voice_recognize")
	require.NoError(t, err)
	assert.Equal(t, "voice_recognize", opt.OptionName)
	assert.Equal(t, "1", opt.OptionValue)

	assert.NoError(t, b.SetAuthorizerOption(ctx, "wxauthorizer", "voice_recognize", "0"))

	err = b.SetAuthorizerOption(ctx, "wxauthorizer", "voice_recognize", "9")
	var re *RemoteAPIError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 61011, re.Code)

	assert.Error(t, b.SetAuthorizerOption(ctx, "wxauthorizer", "voice_recognize", ""))
}

func TestTokenTTL(t *testing.T) {
	assert.Equal(t, time.Hour, tokenTTL(0))
	assert.Equal(t, 7100*time.Second, tokenTTL(7200))
	assert.Equal(t, 60*time.Second, tokenTTL(60))
}
