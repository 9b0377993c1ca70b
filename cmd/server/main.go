package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classview-backend/internal/config"
	"classview-backend/internal/database"
	"classview-backend/internal/handlers"
	"classview-backend/internal/middleware"
	"classview-backend/internal/realtime"
	"classview-backend/internal/repository"
	"classview-backend/internal/router"
	"classview-backend/internal/services"
	"classview-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Classview Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	courseRepo := repository.NewCourseRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	questionRepo := repository.NewQuestionRepo(pool)
	materialRepo := repository.NewMaterialRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	reportRepo := repository.NewReportRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	questionGenService, err := services.NewQuestionGenService(
		cfg.GeminiAPIKey,
		cfg.GeminiConcurrentReqs,
		questionRepo,
		materialRepo,
	)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer questionGenService.Close()
	log.Println("✓ Gemini Flash client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	youtubeService := services.NewYouTubeService()
	fileExtractService := services.NewFileExtractService()
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth, emailService)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		questionGenService,
		youtubeService,
		fileExtractService,
		jobRepo,
		materialRepo,
		reportRepo,
		cfg.StoragePath,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	notificationService := services.NewNotificationService(sessionRepo, courseRepo, userRepo, reportRepo, emailService, redisClients.Queue)
	notificationService.Start()

	// ──── Step 7: Start Realtime Hub ────
	hub := realtime.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ Session hub started")

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userRepo)
	courseHandler := handlers.NewCourseHandler(courseRepo)
	sessionHandler := handlers.NewSessionHandler(sessionRepo, courseRepo, questionRepo, jobRepo, hub, redisClients.Queue)
	materialHandler := handlers.NewMaterialHandler(materialRepo, courseRepo, jobRepo, redisClients.Queue, cfg.StoragePath)
	questionHandler := handlers.NewQuestionHandler(questionRepo, courseRepo, materialRepo, jobRepo, redisClients.Queue)
	reportHandler := handlers.NewReportHandler(reportRepo, sessionRepo, courseRepo, redisClients.Queue)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authLimiter,
		authHandler,
		userHandler,
		courseHandler,
		sessionHandler,
		materialHandler,
		questionHandler,
		reportHandler,
		jobHandler,
		hub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		notificationService.Stop()
		authLimiter.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Classview Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws/sessions", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
