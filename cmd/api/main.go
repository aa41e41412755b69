package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"captcha-gateway-api/internal/api/handlers"
	"captcha-gateway-api/internal/config"
	"captcha-gateway-api/internal/database"
	"captcha-gateway-api/internal/logger"
	"captcha-gateway-api/internal/middleware"
	"captcha-gateway-api/internal/repository"
	"captcha-gateway-api/internal/services"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	// Initialize database connection
	db, err := database.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Get underlying *sql.DB instance for connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get underlying *sql.DB instance:", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	captchaTokenRepo := repository.NewCaptchaTokenRepository(db)
	resetTokenRepo := repository.NewResetTokenRepository(db)
	requestLogRepo := repository.NewRequestLogRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	suspiciousIPRepo := repository.NewSuspiciousIPRepository(db)

	// Seed the default plans so registration always finds the Free plan
	if err := planRepo.SeedDefaults(context.Background(), config.DefaultPlans()); err != nil {
		log.Fatal("Failed to seed plans:", err)
	}

	// Initialize services
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	apiKeyService := services.NewAPIKeyService(apiKeyRepo, userRepo)
	authService := services.NewAuthService(
		userRepo,
		subscriptionRepo,
		planRepo,
		resetTokenRepo,
		apiKeyService,
		jwtSecret,
	)
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, planRepo)
	usageService := services.NewUsageService(usageRepo)
	captchaService := services.NewCaptchaService(captchaTokenRepo)
	requestLogService := services.NewRequestLogService(requestLogRepo)
	statsService := services.NewStatsService(statsRepo)
	suspiciousIPService := services.NewSuspiciousIPService(suspiciousIPRepo, apiKeyRepo)

	// Redis is optional: without it key lookups just go to the database.
	var cacheService services.CacheService
	if os.Getenv("REDIS_HOST") != "" {
		redisCache, err := services.NewRedisCacheService(config.NewCacheConfig())
		if err != nil {
			logger.Logger.WithField("error", err.Error()).Warn("redis unavailable, running without cache")
		} else {
			cacheService = redisCache
		}
	}

	// Start the background sweeper
	sweeper := services.NewSweeperService(
		usageRepo,
		captchaTokenRepo,
		resetTokenRepo,
		statsRepo,
		sweepInterval(),
	)
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	sweeper.Start(sweeperCtx)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyService, cacheService)
	captchaHandler := handlers.NewCaptchaHandler(captchaService, apiKeyService)
	billingHandler := handlers.NewBillingHandler(subscriptionService)
	dashboardHandler := handlers.NewDashboardHandler(statsService, usageService, requestLogService)
	adminHandler := handlers.NewAdminHandler(authService, subscriptionService, statsService, requestLogService, userRepo, planRepo)
	suspiciousIPHandler := handlers.NewSuspiciousIPHandler(suspiciousIPService)

	// Initialize router
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)

	// Public routes
	router.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	router.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	router.HandleFunc("/auth/forgot-password", authHandler.ForgotPassword).Methods("POST")
	router.HandleFunc("/auth/reset-password", authHandler.ResetPassword).Methods("POST")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Dashboard routes (JWT control plane)
	dashboardRouter := router.PathPrefix("/api/v1").Subrouter()
	dashboardRouter.Use(middleware.AuthMiddleware(authService))
	dashboardRouter.HandleFunc("/me", authHandler.Me).Methods("GET")
	dashboardRouter.HandleFunc("/me", authHandler.UpdateProfile).Methods("PATCH")
	dashboardRouter.HandleFunc("/keys", apiKeyHandler.Create).Methods("POST")
	dashboardRouter.HandleFunc("/keys", apiKeyHandler.List).Methods("GET")
	dashboardRouter.HandleFunc("/keys/{keyID}", apiKeyHandler.Toggle).Methods("PATCH")
	dashboardRouter.HandleFunc("/keys/{keyID}", apiKeyHandler.Delete).Methods("DELETE")
	dashboardRouter.HandleFunc("/plans", billingHandler.ListPlans).Methods("GET")
	dashboardRouter.HandleFunc("/subscription", billingHandler.CurrentPlan).Methods("GET")
	dashboardRouter.HandleFunc("/subscription", billingHandler.ChangePlan).Methods("POST")
	dashboardRouter.HandleFunc("/subscription/history", billingHandler.History).Methods("GET")
	dashboardRouter.HandleFunc("/dashboard/analytics", dashboardHandler.Analytics).Methods("GET")
	dashboardRouter.HandleFunc("/dashboard/stats", dashboardHandler.Stats).Methods("GET")
	dashboardRouter.HandleFunc("/dashboard/logs", dashboardHandler.Logs).Methods("GET")
	dashboardRouter.HandleFunc("/suspicious-ips", suspiciousIPHandler.List).Methods("GET")
	dashboardRouter.HandleFunc("/suspicious-ips/stats", suspiciousIPHandler.Stats).Methods("GET")
	dashboardRouter.HandleFunc("/suspicious-ips/block", suspiciousIPHandler.Block).Methods("POST")
	dashboardRouter.HandleFunc("/suspicious-ips/unblock", suspiciousIPHandler.Unblock).Methods("POST")
	dashboardRouter.HandleFunc("/suspicious-ips/{ipID}", suspiciousIPHandler.Delete).Methods("DELETE")

	// Admin routes
	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(middleware.AdminMiddleware(authService))
	adminRouter.HandleFunc("/users", adminHandler.ListUsers).Methods("GET")
	adminRouter.HandleFunc("/users", adminHandler.CreateUser).Methods("POST")
	adminRouter.HandleFunc("/users/{userID}", adminHandler.UpdateUser).Methods("PATCH")
	adminRouter.HandleFunc("/users/{userID}", adminHandler.DeleteUser).Methods("DELETE")
	adminRouter.HandleFunc("/users/{userID}/plan", adminHandler.AssignPlan).Methods("POST")
	adminRouter.HandleFunc("/plans", adminHandler.CreatePlan).Methods("POST")
	adminRouter.HandleFunc("/plans/{planID}", adminHandler.UpdatePlan).Methods("PATCH")
	adminRouter.HandleFunc("/plans/{planID}", adminHandler.DeletePlan).Methods("DELETE")
	adminRouter.HandleFunc("/stats/errors", adminHandler.ErrorStats).Methods("GET")
	adminRouter.HandleFunc("/stats/endpoints", adminHandler.EndpointUsage).Methods("GET")
	adminRouter.HandleFunc("/stats/realtime", adminHandler.Realtime).Methods("GET")

	// Metered captcha routes (API-key data plane). Registered after the /api/v1
	// and /api/admin subrouters so the broader /api prefix cannot shadow them.
	captchaRouter := router.PathPrefix("/api").Subrouter()
	captchaRouter.Use(middleware.APIKeyMiddleware(apiKeyService, subscriptionService, cacheService))
	captchaRouter.Use(middleware.RateLimitMiddleware(usageService, suspiciousIPService))
	captchaRouter.Use(middleware.UsageMiddleware(usageService, apiKeyService, requestLogService, statsService))
	captchaRouter.HandleFunc("/next-captcha", captchaHandler.NextCaptcha).Methods("POST")
	captchaRouter.HandleFunc("/verify-captcha", captchaHandler.VerifyCaptcha).Methods("POST")
	captchaRouter.HandleFunc("/verify-handwriting", captchaHandler.VerifyHandwriting).Methods("POST")

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-API-Key",
		},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	// Create server with timeouts
	srv := &http.Server{
		Handler:      corsMiddleware.Handler(router),
		Addr:         ":" + getPort(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	// Start server
	log.Printf("Server starting on port %s...", getPort())
	log.Fatal(srv.ListenAndServe())
}

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	return port
}

func sweepInterval() time.Duration {
	raw := os.Getenv("SWEEP_INTERVAL")
	if raw == "" {
		return services.DefaultSweepInterval
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		return services.DefaultSweepInterval
	}
	return interval
}

func allowedOrigins() []string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return []string{origins}
	}
	return []string{"http://localhost:3000"}
}
