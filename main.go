package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"project-review-server/config"
	"project-review-server/database"
	"project-review-server/jobs"
	"project-review-server/middleware"
	"project-review-server/routes"
	"project-review-server/services"
	"project-review-server/storage"
	ws "project-review-server/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Initialize(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database handle:", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()

	// Artifact store
	store, err := storage.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize artifact store:", err)
	}
	log.Printf("✅ Artifact store ready (%s)", cfg.Storage.Backend)

	// Session revocation: Redis when configured, otherwise process memory
	var revoker services.Revoker
	var memoryRevoker *services.MemoryRevoker
	if cfg.Redis.URL != "" {
		redisRevoker, err := services.NewRedisRevoker(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal("Failed to connect to redis:", err)
		}
		defer redisRevoker.Close()
		revoker = redisRevoker
	} else {
		log.Println("⚠️ REDIS_URL not set, logged-out tokens are tracked in memory only")
		memoryRevoker = services.NewMemoryRevoker()
		revoker = memoryRevoker
	}

	// Notification hub
	hub := ws.NewHub(cfg.Server.CORSOrigins...)
	go hub.Run()

	// Services
	users := database.NewUserRepository(db)
	projects := database.NewProjectRepository(db)
	feedback := database.NewFeedbackRepository(db)

	jwtService := services.NewJWTService(cfg.JWT.Secret, cfg.JWTExpiry())
	authService := services.NewAuthService(users, jwtService, revoker, cfg.Auth.AdminKey, cfg.JWT.RevokeTTL)
	reviewService := services.NewReviewService(projects, feedback, store, storage.PolicyFromConfig(cfg),
		services.WithNotifier(hub),
		services.WithStrictValidation(cfg.Upload.StrictValidation),
	)

	// Set Gin mode
	if cfg.Server.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Disable automatic redirects for trailing slashes
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	// Uploads can reach UPLOAD_MAX_BYTES, keep the multipart form on disk beyond that
	router.MaxMultipartMemory = cfg.Upload.MaxBytes

	limiter := middleware.NewRateLimiter()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))
	router.Use(middleware.InputValidationMiddleware(cfg.Server.MaxRequestBytes))
	router.Use(middleware.RateLimitMiddleware(limiter, cfg.Server.RateLimitPerMinute))
	router.Use(middleware.AuditLogMiddleware())

	routes.New(cfg, authService, reviewService, hub, sqlDB.PingContext).Setup(router)

	// Background reconciliation
	reconcileJob := jobs.NewReconcileJob(projects, store, jobs.ReconcileConfig{
		Interval:    cfg.Jobs.ReconcileInterval,
		GracePeriod: cfg.Jobs.OrphanGracePeriod,
		Revoker:     memoryRevoker,
		Limiter:     limiter,
	})
	reconcileJob.Start()

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("🚀 Project review server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Server shutting down...")

	reconcileJob.Stop()
	hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server exited")
}
