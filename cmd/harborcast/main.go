package main

import (
	"context"
	"time"

	"harborcast/internal/handlers"
	"harborcast/internal/ingress"
	"harborcast/internal/livekit"
	"harborcast/internal/razorpay"
	"harborcast/internal/reconcile"
	"harborcast/internal/store"
	"harborcast/pkg/auth"
	"harborcast/pkg/clients"
	"harborcast/pkg/config"
	"harborcast/pkg/crypto"
	"harborcast/pkg/database"
	"harborcast/pkg/logging"
	"harborcast/pkg/middleware"
	"harborcast/pkg/monitoring"
	"harborcast/pkg/redis"
	"harborcast/pkg/server"
	"harborcast/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("harborcast")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting HarborCast (Streaming Platform API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	redisURL := config.RequireEnv("REDIS_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	encryptionSecret := config.RequireEnv("ENCRYPTION_SECRET")
	mediaAPIURL := config.RequireEnv("LIVEKIT_API_URL")
	mediaAPIKey := config.RequireEnv("LIVEKIT_API_KEY")
	mediaAPISecret := config.RequireEnv("LIVEKIT_API_SECRET")
	gatewayKeyID := config.RequireEnv("RAZORPAY_KEY_ID")
	gatewayKeySecret := config.RequireEnv("RAZORPAY_KEY_SECRET")
	gatewayWebhookSecret := config.RequireEnv("RAZORPAY_WEBHOOK_SECRET")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Connect to Redis for page-cache invalidation
	redisCtx, redisCancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := redis.NewClientFromURL(redisCtx, redisURL)
	redisCancel()
	if err != nil {
		logger.WithError(err).Fatal("Redis connection failed")
	}
	defer redisClient.Close()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("harborcast", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("harborcast", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":    dbURL,
		"JWT_SECRET":      jwtSecret,
		"LIVEKIT_API_URL": mediaAPIURL,
	}))

	// Create custom reconciliation metrics
	metrics := &handlers.HarborMetrics{
		WebhookEvents:     metricsCollector.NewCounter("webhook_events_total", "Webhook deliveries by source and result", []string{"source", "result"}),
		SignatureFailures: metricsCollector.NewCounter("webhook_signature_failures_total", "Rejected webhook deliveries", []string{"source"}),
		Transitions:       metricsCollector.NewCounter("reconciliation_transitions_total", "Applied state transitions", []string{"entity", "kind"}),
		IngressReissues:   metricsCollector.NewCounter("ingress_reissues_total", "Ingress credential reissues", []string{"result"}),
		OrdersCreated:     metricsCollector.NewCounter("gateway_orders_total", "Gateway orders opened", []string{"result"}),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Stream keys are encrypted at rest
	encryptor, err := crypto.DeriveFieldEncryptor([]byte(encryptionSecret), "stream-keys")
	if err != nil {
		logger.WithError(err).Fatal("Field encryptor setup failed")
	}

	// Provider clients
	mediaCB := clients.DefaultCircuitBreakerConfig()
	mediaCB.Name = "livekit"
	mediaCB.Logger = logger
	mediaClient := livekit.NewClient(livekit.Config{
		BaseURL:              mediaAPIURL,
		APIKey:               mediaAPIKey,
		APISecret:            mediaAPISecret,
		Logger:               logger,
		CircuitBreakerConfig: &mediaCB,
	})

	gatewayCB := clients.DefaultCircuitBreakerConfig()
	gatewayCB.Name = "razorpay"
	gatewayCB.Logger = logger
	gatewayClient := razorpay.NewClient(razorpay.Config{
		KeyID:                gatewayKeyID,
		KeySecret:            gatewayKeySecret,
		WebhookSecret:        gatewayWebhookSecret,
		Logger:               logger,
		CircuitBreakerConfig: &gatewayCB,
	})

	// Reconciliation pipeline
	st := store.New(db)
	resolver := &reconcile.Resolver{Streams: st, Donations: st}
	engine := &reconcile.Engine{Streams: st, Donations: st, Logger: logger}
	publisher := reconcile.NewRedisPublisher(redisClient, logger)

	ingressManager := &ingress.Manager{
		Provider:  mediaClient,
		Store:     st,
		Encryptor: encryptor,
		Logger:    logger,
	}

	// Initialize handlers
	handlers.Init(handlers.Deps{
		Store:           st,
		Logger:          logger,
		Metrics:         metrics,
		Resolver:        resolver,
		Engine:          engine,
		Publisher:       publisher,
		WebhookReceiver: livekit.NewWebhookReceiver(mediaAPIKey, mediaAPISecret),
		Gateway:         gatewayClient,
		IngressManager:  ingressManager,
		MediaAPIKey:     mediaAPIKey,
		MediaAPISecret:  mediaAPISecret,
	})

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "harborcast", healthChecker, metricsCollector)

	{
		// Webhook endpoints (no auth - authenticated by provider signatures)
		webhooks := router.Group("/webhooks")
		webhooks.Use(middleware.TimeoutMiddleware(15 * time.Second))
		{
			webhooks.POST("/ingress", handlers.HandleIngressWebhook)
			webhooks.POST("/payment", handlers.HandlePaymentWebhook)
		}

		// Checkout confirmation arrives from the browser before any session
		// exists, so it is signature-authenticated like the webhook.
		router.POST("/payment/verify", handlers.HandleVerifyPayment)

		// Endpoints serving both signed-in users and guests
		public := router.Group("")
		public.Use(auth.OptionalJWTAuthMiddleware([]byte(jwtSecret)))
		{
			public.POST("/rooms/viewer-token", handlers.HandleViewerToken)
			public.GET("/streams/:hostId", handlers.HandleGetStream)
		}

		// Authentication required endpoints
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.POST("/payment/orders", handlers.HandleCreateOrder)
			protected.POST("/ingress/reissue", handlers.HandleReissueIngress)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("harborcast", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
