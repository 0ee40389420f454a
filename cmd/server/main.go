package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/servicehub/backend/internal/audit"
	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/handlers"
	mW "github.com/servicehub/backend/internal/middleware"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/services"
	"github.com/servicehub/backend/internal/telemetry"
	"github.com/spf13/viper"
)

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.driver", "DATABASE_DRIVER")
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("http.port", "PORT")
	viper.BindEnv("idempotency.ttl", "IDEMPOTENCY_TTL")

	viper.BindEnv("wallet.max_attempts", "WALLET_MAX_ATTEMPTS")
	viper.BindEnv("wallet.initial_backoff", "WALLET_INITIAL_BACKOFF")
	viper.BindEnv("wallet.max_backoff", "WALLET_MAX_BACKOFF")

	viper.BindEnv("telemetry.enabled", "OTEL_ENABLED")
	viper.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	viper.BindEnv("telemetry.service_name", "OTEL_SERVICE_NAME")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	secret := viper.GetString("jwt.secret_key")
	if secret == "" {
		log.Fatal("jwt.secret_key is required")
	}

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, config.LoadTelemetryConfig())
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Printf("Telemetry shutdown: %v", err)
		}
	}()

	db := database.InitDatabase()
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	redisClient := database.InitRedis(config.LoadRedisConfig())
	if redisClient != nil {
		defer redisClient.Close()
	}

	walletCfg := config.LoadWalletConfig()
	httpCfg := config.LoadHTTPConfig()
	auditLogger := audit.NewAuditLogger()

	walletService := services.NewWalletService(db, walletCfg, auditLogger)
	if _, err := walletService.EnsurePlatformAccount(ctx); err != nil {
		log.Fatalf("Failed to ensure platform account: %v", err)
	}
	bookingService := services.NewBookingService(db, walletCfg, walletService, auditLogger)
	paymentService := services.NewPaymentVerificationService(db, bookingService, walletService, auditLogger)

	walletHandler := handlers.NewWalletHandler(walletService, paymentService)
	bookingHandler := handlers.NewBookingHandler(bookingService, paymentService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	idempotency := mW.NewIdempotencyCache(redisClient, httpCfg.IdempotencyTTL)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mW.IdempotencyHeader},
		ExposedHeaders:   []string{mW.ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		if err := db.PingContext(r.Context()); err != nil {
			status = "degraded"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware(secret, redisClient))
		r.Use(idempotency.Middleware)

		r.Post("/wallet", walletHandler.OpenWallet)
		r.Get("/wallet/balance", walletHandler.GetBalance)
		r.Get("/wallet/transactions", walletHandler.ListTransactions)
		r.Post("/wallet/reload-requests", walletHandler.RequestReload)

		r.Post("/bookings", bookingHandler.CreateBooking)
		r.Get("/bookings/{bookingId}", bookingHandler.GetBooking)
		r.Get("/bookings/{bookingId}/events", bookingHandler.History)
		r.Post("/bookings/{bookingId}/payments", bookingHandler.SubmitPayment)
		r.Post("/bookings/{bookingId}/payments/resubmit", bookingHandler.ResubmitPayment)
		r.Post("/bookings/{bookingId}/pay-with-wallet", bookingHandler.PayWithWallet)
		r.Post("/bookings/{bookingId}/complete", bookingHandler.Complete)

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(models.RoleProvider))

			r.Post("/bookings/{bookingId}/approve", bookingHandler.Approve)
			r.Post("/bookings/{bookingId}/decline", bookingHandler.Decline)
			r.Post("/bookings/{bookingId}/cancel", bookingHandler.Cancel)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(mW.RequireRole(models.RoleAdmin))

			r.Post("/payments/{paymentId}/verify", paymentHandler.Verify)
			r.Post("/bookings/{bookingId}/payout", bookingHandler.Payout)
			r.Post("/wallets/{userId}/reload", walletHandler.AdminReload)
			r.Get("/accounts/{accountId}/balance", walletHandler.AccountBalance)
			r.Get("/accounts/{accountId}/reconcile", walletHandler.Reconcile)
		})
	})

	server := &http.Server{
		Addr:         ":" + httpCfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", httpCfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
