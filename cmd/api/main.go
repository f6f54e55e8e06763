package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_wechat/internal/cache"
	"github.com/GTDGit/gtd_wechat/internal/config"
	"github.com/GTDGit/gtd_wechat/internal/database"
	"github.com/GTDGit/gtd_wechat/internal/handler"
	"github.com/GTDGit/gtd_wechat/internal/middleware"
	"github.com/GTDGit/gtd_wechat/internal/repository"
	"github.com/GTDGit/gtd_wechat/internal/service"
	"github.com/GTDGit/gtd_wechat/internal/utils"
	"github.com/GTDGit/gtd_wechat/internal/worker"
	"github.com/GTDGit/gtd_wechat/pkg/transport"
	"github.com/GTDGit/gtd_wechat/pkg/wxopen"
	"github.com/GTDGit/gtd_wechat/pkg/wxpay"
)

// credentialStore is the cache the broker uses plus what the health check needs.
type credentialStore interface {
	wxopen.Cache
	handler.Pinger
}

// main is the application entrypoint for the GTD WeChat gateway.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("cache", cfg.CacheDriver).Msg("starting gtd wechat")
	utils.SetJWTSecret(cfg.JWTSecret)

	// 3. Credential store
	store, cleanup, closeStore, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("credential store unavailable")
		fmt.Fprintf(os.Stderr, "credential store unavailable: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	// 4. Transport (client certificate only when configured)
	httpTransport, err := transport.NewHTTPTransport(transport.Config{
		Timeout: cfg.HTTPTimeout,
		Cert: transport.CertConfig{
			CertFile:    cfg.Pay.CertFile,
			KeyFile:     cfg.Pay.KeyFile,
			P12File:     cfg.Pay.P12File,
			P12Password: cfg.Pay.P12Password,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to load client certificate")
		fmt.Fprintf(os.Stderr, "failed to load client certificate: %v\n", err)
		os.Exit(1)
	}

	// 5. Open platform broker
	var broker *wxopen.Broker
	if cfg.Component.Enabled() {
		broker, err = wxopen.NewBroker(wxopen.Config{
			AppID:             cfg.Component.AppID,
			AppSecret:         cfg.Component.AppSecret,
			BaseURL:           cfg.Component.BaseURL,
			StrictPreAuthCode: cfg.Component.StrictPreAuthCode,
			Timeout:           cfg.HTTPTimeout,
		}, store, httpTransport)
		if err != nil {
			log.Error().Err(err).Msg("failed to create token broker")
			os.Exit(1)
		}
		log.Info().Str("component_appid", cfg.Component.AppID).Msg("Token broker ready")
	} else {
		log.Warn().Msg("WECHAT_COMPONENT_APPID not set - platform endpoints disabled")
	}

	// 6. Payment gateways, one per trade type
	var gateways []*wxpay.Gateway
	if cfg.Pay.Enabled() {
		gateways, err = newGateways(cfg, httpTransport)
		if err != nil {
			log.Error().Err(err).Msg("failed to create payment gateways")
			os.Exit(1)
		}
		log.Info().Str("mch_id", cfg.Pay.MchID).Bool("client_cert", httpTransport.HasClientCertificate()).Msg("Payment gateways ready")
	} else {
		log.Warn().Msg("WECHAT_PAY_APPID not set - payment endpoints disabled")
	}

	// 7. Services and handlers
	paymentSvc := service.NewPaymentService(cfg.Pay.NotifyURL, gateways...)
	platformSvc := service.NewPlatformService(broker)

	handlers := &Handlers{
		Health:   handler.NewHealthHandler(store, cfg.CacheDriver, cfg.Pay.Enabled(), cfg.Component.Enabled()),
		Payment:  handler.NewPaymentHandler(paymentSvc),
		Platform: handler.NewPlatformHandler(platformSvc),
		Webhook:  handler.NewWebhookHandler(platformSvc, paymentSvc, cfg.Component.TicketWebhookSecret),
	}

	jwtMw := middleware.NewJWTMiddleware(middleware.NewInvalidAuthRateLimiter())

	// 8. Setup router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers, jwtMw)

	// 9. Context for background work
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cleanup != nil && cfg.CleanupInterval > 0 {
		go worker.NewCredentialCleanupWorker(cleanup, cfg.CleanupInterval).Start(ctx)
	}

	// 10. Start HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 11. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health   *handler.HealthHandler
	Payment  *handler.PaymentHandler
	Platform *handler.PlatformHandler
	Webhook  *handler.WebhookHandler
}

// openStore builds the credential store selected by CACHE_DRIVER. cleanup is
// non-nil only for stores that need expired rows purged.
func openStore(cfg *config.Config) (credentialStore, worker.ExpiredCredentialStore, func(), error) {
	switch cfg.CacheDriver {
	case config.CacheDriverPostgres:
		db, err := database.Connect(&cfg.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.RunMigrations(db.DB, database.DefaultMigrationsSource); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		log.Info().Msg("migrations completed successfully")
		repo := repository.NewCredentialRepository(db)
		return repo, repo, closeDB(db), nil

	case config.CacheDriverMemory:
		log.Warn().Msg("using in-memory credential cache - tokens are lost on restart and not shared")
		return cache.NewMemoryCache(), nil, func() {}, nil

	default:
		redisClient, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info().Msg("redis connected successfully")
		return redisClient, nil, func() { _ = redisClient.Close() }, nil
	}
}

func closeDB(db *sqlx.DB) func() {
	return func() { _ = db.Close() }
}

// newGateways builds one gateway per supported trade type sharing the
// merchant identity. APP is first and serves trade-type independent calls.
func newGateways(cfg *config.Config, poster transport.Poster) ([]*wxpay.Gateway, error) {
	payCfg := wxpay.Config{
		AppID:    cfg.Pay.AppID,
		Key:      cfg.Pay.APIKey,
		MchID:    cfg.Pay.MchID,
		SubMchID: cfg.Pay.SubMchID,
		SubAppID: cfg.Pay.SubAppID,
		CertFile: cfg.Pay.CertFile,
		KeyFile:  cfg.Pay.KeyFile,
		P12File:  cfg.Pay.P12File,
	}

	opts := []wxpay.Option{wxpay.WithTimeout(cfg.HTTPTimeout)}
	if cfg.Pay.BaseURL != "" {
		opts = append(opts, wxpay.WithBaseURL(cfg.Pay.BaseURL))
	}
	if cfg.Pay.Location != nil {
		opts = append(opts, wxpay.WithLocation(cfg.Pay.Location))
	}

	var gateways []*wxpay.Gateway
	for _, tt := range []wxpay.TradeType{wxpay.TradeTypeApp, wxpay.TradeTypeJSAPI, wxpay.TradeTypeMicro} {
		g, err := wxpay.NewGateway(payCfg, tt, poster, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s gateway: %w", tt, err)
		}
		gateways = append(gateways, g)
	}
	return gateways, nil
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, jwtMiddleware *middleware.JWTMiddleware) {
	// Inbound pushes
	router.POST("/webhook/wechat/ticket", handlers.Webhook.HandleVerifyTicket)
	router.POST("/webhook/wechat/pay", handlers.Webhook.HandlePayNotify)

	router.GET("/v1/health", handlers.Health.GetHealth)

	// Payment routes (JWT)
	pay := router.Group("/v1/pay")
	pay.Use(jwtMiddleware.Handle())
	{
		pay.POST("/orders", handlers.Payment.CreateOrder)
		pay.GET("/orders/:orderId", handlers.Payment.GetOrder)
		pay.POST("/orders/:orderId/reverse", handlers.Payment.ReverseOrder)
		pay.POST("/refunds", handlers.Payment.CreateRefund)
		pay.GET("/refunds/:orderId", handlers.Payment.GetRefund)
	}

	// Open platform routes (JWT)
	platform := router.Group("/v1/platform")
	platform.Use(jwtMiddleware.Handle())
	{
		platform.GET("/pre-auth-code", handlers.Platform.GetPreAuthCode)
		platform.POST("/authorizations", handlers.Platform.CreateAuthorization)
		platform.GET("/authorizers/:appId", handlers.Platform.GetAuthorizer)
		platform.GET("/authorizers/:appId/access-token", handlers.Platform.GetAccessToken)
		platform.GET("/authorizers/:appId/options/:option", handlers.Platform.GetOption)
		platform.PUT("/authorizers/:appId/options/:option", handlers.Platform.SetOption)
	}
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
