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
	"github.com/peerfund/backend/docs"
	"github.com/peerfund/backend/internal/database"
	"github.com/peerfund/backend/internal/gateway"
	"github.com/peerfund/backend/internal/handlers"
	mW "github.com/peerfund/backend/internal/middleware"
	"github.com/peerfund/backend/internal/models"
	"github.com/peerfund/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title PeerFund Lending API
// @version 1.0
// @description API for peer-to-peer loan origination and repayment
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	viper.SetEnvPrefix("")

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
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("gateway.base_url", "GATEWAY_BASE_URL")
	viper.BindEnv("gateway.secret_key", "GATEWAY_SECRET_KEY")
	viper.BindEnv("gateway.webhook_secret", "GATEWAY_WEBHOOK_SECRET")
	viper.BindEnv("platform.funding_fee_rate", "PLATFORM_FUNDING_FEE_RATE")
	viper.BindEnv("platform.repayment_fee_rate", "PLATFORM_REPAYMENT_FEE_RATE")
	viper.BindEnv("sweep.hour", "SWEEP_HOUR")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "PeerFund Lending API"
	docs.SwaggerInfo.Description = "API for peer-to-peer loan origination and repayment"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	paymentGateway := gateway.NewHTTPGateway(gateway.GetConfig())

	authService := services.NewAuthService(db, redisClient)
	loanService := services.NewLoanService(db)
	fundingService := services.NewFundingService(db, paymentGateway)
	repaymentService := services.NewRepaymentService(db, paymentGateway)
	notificationService := services.NewNotificationService(db)
	dashboardService := services.NewDashboardService(db)
	settlementService := services.NewSettlementService(db)
	sweepService := services.NewSweepService(db, redisClient, notificationService)
	qrService := services.NewQRService(db, redisClient)

	loanHandler := handlers.NewLoanHandler(loanService)
	fundingHandler := handlers.NewFundingHandler(fundingService, notificationService)
	repaymentHandler := handlers.NewRepaymentHandler(repaymentService, notificationService)
	webhookHandler := handlers.NewWebhookHandler(repaymentService, notificationService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	settlementHandler := handlers.NewSettlementHandler(settlementService)
	sweepHandler := handlers.NewSweepHandler(sweepService)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Daily due/overdue sweep
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go sweepService.StartScheduler(schedulerCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Post("/webhooks/gateway", webhookHandler.HandleWebhook)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/profile", authService.GetProfile)
			r.Get("/dashboard", dashboardHandler.Dashboard)

			// Borrower endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole(models.RoleBorrower))

				r.Post("/loans/requests", loanHandler.CreateRequest)
				r.Get("/loans/requests", loanHandler.MyRequests)
				r.Delete("/loans/requests/{id}", loanHandler.CancelRequest)

				r.Get("/loans", repaymentHandler.MyLoans)
				r.Post("/loans/{id}/repay/intent", repaymentHandler.CreateIntent)
				r.Post("/loans/{id}/repay/qr", qrHandler.GenerateQR)
				r.Post("/repayments/confirm", repaymentHandler.Confirm)
				r.Get("/repayments/history", repaymentHandler.History)
			})

			// Lender endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole(models.RoleLender))

				r.Get("/loans/marketplace", loanHandler.Marketplace)
				r.Post("/loans/requests/{id}/fund/intent", fundingHandler.CreateIntent)
				r.Post("/loans/requests/{id}/fund", fundingHandler.Fund)

				r.Post("/settlement/payouts/export", settlementHandler.ExportPayouts)
				r.Post("/settlement/transactions/{id}/ack", settlementHandler.Acknowledge)
			})

			// Shared endpoints
			r.Get("/loans/requests/{id}", loanHandler.GetRequest)
			r.Get("/loans/{id}", repaymentHandler.GetLoan)
			r.Get("/loans/{id}/schedule", repaymentHandler.GetSchedule)
			r.Post("/qr/redeem", qrHandler.RedeemQR)

			r.Get("/notifications", notificationHandler.List)
			r.Get("/notifications/unread-count", notificationHandler.UnreadCount)
			r.Post("/notifications/{id}/read", notificationHandler.MarkRead)
			r.Post("/notifications/read-all", notificationHandler.MarkAllRead)

			r.Post("/sweep/run", sweepHandler.Run)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
