package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aifit/coach-app/internal/api"
	"aifit/coach-app/internal/config"
	"aifit/coach-app/internal/generation"
	"aifit/coach-app/internal/llm"
	"aifit/coach-app/internal/notification"
	"aifit/coach-app/internal/repository/mongo"
	"aifit/coach-app/internal/service"
	"aifit/coach-app/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting Coach App Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	log.Println("Ensuring database indexes...")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureGenerationRecordIndexes(ctx, appDB.Collection("generation_records"))
		mongo.EnsurePlanIndexes(ctx, appDB.Collection("plans"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Generation Backend ---
	log.Println("Initializing generation backend...")
	backend, err := llm.NewOpenAIBackend(context.Background(), cfg.LLM)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize generation backend: %v", err)
	}

	// --- Initialize Archive Storage ---
	var archiveStorage storage.ArchiveStorage
	if cfg.S3.BucketName != "" {
		archiveStorage, err = storage.NewS3Storage(cfg.S3)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize S3 storage: %v", err)
		}
	} else {
		log.Println("No S3 bucket configured; archive snapshot export disabled.")
	}

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	userRepo := mongo.NewMongoUserRepository(appDB)
	recordRepo := mongo.NewMongoGenerationRecordRepository(appDB)
	planRepo := mongo.NewMongoPlanRepository(appDB)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	validator := generation.NewValidator(cfg.Generation.PartialThreshold)
	notifier := notification.NewLogScheduler(cfg.Notification.Enabled)
	generationService := service.NewGenerationService(recordRepo, planRepo, backend, validator, notifier, cfg.Generation.MaxMessages)
	conversationService := service.NewConversationService(recordRepo, backend, generationService, cfg.Generation.MaxMessages)
	housekeepingService := service.NewHousekeepingService(planRepo, recordRepo, archiveStorage)

	generationService.SubscribeCompletion(func(event service.CompletionEvent) {
		log.Printf("Plan generation completed: owner=%s kind=%s plan=%s", event.OwnerID.Hex(), event.PlanKind, event.PlanID.Hex())
	})

	// --- Initialize Gin Engine ---
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, authService, conversationService, generationService, housekeepingService, planRepo)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // generation calls are slow
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
