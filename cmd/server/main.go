package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuspay/backend/docs"
	"github.com/campuspay/backend/internal/audit"
	"github.com/campuspay/backend/internal/config"
	"github.com/campuspay/backend/internal/database"
	"github.com/campuspay/backend/internal/handlers"
	"github.com/campuspay/backend/internal/hsm"
	"github.com/campuspay/backend/internal/logging"
	mW "github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/models"
	"github.com/campuspay/backend/internal/repository"
	"github.com/campuspay/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title Campus Fee Payments API
// @version 1.0
// @description Account ledger and fee settlement for campus payments
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	config.Load(".env")

	logger := logging.InitLogger()
	defer logger.Sync()

	settlement := config.LoadSettlementConfig()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	db, err := database.InitDB(startupCtx, database.GetConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if viper.GetBool("server.auto_migrate") {
		if err := database.EnsureSchema(startupCtx, db); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	redisClient := database.InitRedis(startupCtx, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	store := repository.NewPostgresStore(db, settlement.ScopeTimeout)
	auditLogger := audit.NewAuditLogger(logger)
	ledgerService := services.NewLedgerService(store, settlement.FeeAdminID, logger, auditLogger)
	authService := services.NewAuthService(db, redisClient, settlement.SeedBalanceMin, settlement.SeedBalanceMax, logger)
	iso20022Service := services.NewISO20022Service(settlement.InstitutionBIC, settlement.Currency)

	var receiptSigner services.ReceiptSigner
	var receiptPublicKey string
	if settlement.ReceiptMasterKey != "" {
		keyStore, err := hsm.InitHSM(hsm.Config{
			MasterKey:    settlement.ReceiptMasterKey,
			KeyStorePath: settlement.KeyStorePath,
			Logger:       logger,
		})
		if err != nil {
			logger.Fatal("Failed to initialize HSM", zap.Error(err))
		}
		if receiptPublicKey, err = keyStore.GetPublicKey(hsm.ReceiptSigningKey); err != nil {
			logger.Fatal("Failed to read receipt signing key", zap.Error(err))
		}
		receiptSigner = keyStore
	} else {
		logger.Warn("HSM_MASTER_KEY not set, receipts will be unsigned")
	}
	qrService := services.NewQRService(redisClient, receiptSigner, settlement.Currency, settlement.ReceiptTTL)

	accountHandler := handlers.NewAccountHandler(ledgerService, iso20022Service, settlement.Currency)
	receiptHandler := handlers.NewReceiptHandler(ledgerService, qrService, receiptPublicKey)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)
	idempotent := mW.Idempotency(redisClient, settlement.IdempotencyTTL, logger)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mW.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Retry-After", mW.IdempotencyHitHeader, "X-Receipt-Code"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/user/signup", authService.UserSignup)
		r.Post("/user/signin", authService.UserSignin)
		r.Post("/admin/signup", authService.AdminSignup)
		r.Post("/admin/login", authService.AdminLogin)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/receipts/public-key", receiptHandler.PublicKey)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/user/profile", authService.Profile)

			r.Route("/account", func(r chi.Router) {
				r.Get("/balance", accountHandler.Balance)
				r.With(idempotent).Post("/transfer", accountHandler.Transfer)
				r.With(idempotent).Post("/pay-fees", accountHandler.PayFees)
				r.Get("/transactions", accountHandler.Transactions)
				r.Get("/payment-status", accountHandler.PaymentStatus)
				r.Get("/statement", accountHandler.Statement)
				r.Get("/fees/{transactionId}/advice", accountHandler.FeeAdvice)
				r.Get("/fees/{transactionId}/receipt.png", receiptHandler.Receipt)

				r.With(mW.RequireRole(models.RoleAdmin)).Post("/approve-fees/{transactionId}", accountHandler.ApproveFees)
			})

			r.Post("/receipts/verify", receiptHandler.VerifyReceipt)
		})
	})

	port := viper.GetString("server.port")
	docs.SwaggerInfo.Host = "localhost:" + port

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
