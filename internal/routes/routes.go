// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"time"

	"consora/internal/config"
	"consora/internal/handlers"
	"consora/internal/metrics"
	"consora/internal/middleware"
	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/billing"
	"consora/internal/services/payment"
	"consora/internal/services/rate"
	"consora/internal/services/session"
	"consora/internal/services/telephony"
	"consora/internal/services/wallet"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Services bundles the wired service graph so main can also hand the
// sweeper to a background loop.
type Services struct {
	Wallet    wallet.Service
	Session   session.Service
	Telephony telephony.Service
	Payment   payment.Service
	Sweeper   *billing.Sweeper
}

// SetupRoutes wires repositories, services and handlers onto the app
// and returns the service graph.
func SetupRoutes(app *fiber.App) *Services {
	// Repositories
	walletRepo := repositories.NewWalletRepository(repositories.DB)
	sessionRepo := repositories.NewSessionRepository(repositories.DB)
	operatorRepo := repositories.NewOperatorRepository(repositories.DB)
	eventRepo := repositories.NewEventRepository(repositories.DB)

	// Services
	walletService := wallet.NewService(
		walletRepo,
		repositories.CacheService,
		metrics.NewLedgerCollector(),
	)

	feeRate := decimal.NewFromFloat(config.GetFloatEnv("PLATFORM_FEE_RATE", 0.30))
	sessionService := session.NewService(sessionRepo, operatorRepo, rate.NewResolver(operatorRepo), session.Config{
		PlatformFeeRate: feeRate,
		WalletCache:     repositories.CacheService,
	})

	publicBaseURL := config.GetEnv("PUBLIC_BASE_URL", "http://localhost:8080")
	twilioToken := config.GetEnv("TWILIO_AUTH_TOKEN", "")
	telephonyService := telephony.NewService(
		sessionService,
		walletService,
		operatorRepo,
		eventRepo,
		telephony.NewTwilioValidator(twilioToken),
		telephony.NewTwilioDialer(config.GetEnv("TWILIO_ACCOUNT_SID", ""), twilioToken),
		telephony.Config{
			PlatformNumber:    config.GetEnv("TWILIO_PLATFORM_NUMBER", ""),
			VoiceURL:          publicBaseURL + "/webhooks/telephony/voice",
			StatusCallbackURL: publicBaseURL + "/webhooks/telephony/status",
		},
	)

	paymentService := payment.NewService(
		walletService,
		eventRepo,
		config.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)

	sweeper := billing.NewSweeper(
		sessionRepo,
		sessionService,
		config.GetDurationEnv("SESSION_STALE_AFTER", 10*time.Minute),
	)

	// Handlers
	walletHandler := handlers.NewWalletHandler(walletService)
	sessionHandler := handlers.NewSessionHandler(sessionService, telephonyService, operatorRepo)
	operatorHandler := handlers.NewOperatorHandler(operatorRepo)
	telephonyHandler := handlers.NewTelephonyHandler(telephonyService, publicBaseURL)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	billingHandler := handlers.NewBillingHandler(sweeper)

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Provider webhooks authenticate with signatures, not JWTs. Rate
	// limited loosely so a provider retry storm cannot starve the API.
	webhooks := app.Group("/webhooks", limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
	}))
	webhooks.Post("/telephony/status", telephonyHandler.Status)
	webhooks.Post("/telephony/voice", telephonyHandler.Voice)
	webhooks.Post("/telephony/recording", telephonyHandler.Recording)
	webhooks.Post("/payments/stripe", paymentHandler.Webhook)

	// Operational endpoints for external schedulers.
	internal := app.Group("/internal", middleware.InternalSecret(config.GetEnv("CRON_SECRET", "")))
	internal.Post("/billing/sweep", billingHandler.Sweep)
	internal.Get("/billing/sweep", billingHandler.Sweep)

	// Authenticated API
	authMiddleware := middleware.NewAuthMiddleware()
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        config.GetIntEnv("API_RATE_LIMIT", 60),
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}), authMiddleware.Handler)

	walletGroup := api.Group("/wallet")
	walletGroup.Get("/", walletHandler.GetWallet)
	walletGroup.Post("/", walletHandler.CreateWallet)
	walletGroup.Get("/transactions", walletHandler.GetTransactions)

	sessions := api.Group("/sessions")
	sessions.Post("/", middleware.RequireRole(models.RoleClient), sessionHandler.CreateSession)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Post("/:id/activate", sessionHandler.ActivateSession)
	sessions.Post("/:id/end", sessionHandler.EndSession)

	operators := api.Group("/operators")
	operators.Get("/:id", operatorHandler.GetOperator)
	operators.Put("/availability", middleware.RequireRole(models.RoleOperator), operatorHandler.SetAvailability)

	return &Services{
		Wallet:    walletService,
		Session:   sessionService,
		Telephony: telephonyService,
		Payment:   paymentService,
		Sweeper:   sweeper,
	}
}
