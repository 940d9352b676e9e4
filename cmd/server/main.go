package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/permitprep/backend/internal/auth"
	"github.com/permitprep/backend/internal/bankcheck"
	"github.com/permitprep/backend/internal/config"
	"github.com/permitprep/backend/internal/database"
	"github.com/permitprep/backend/internal/middleware"
	"github.com/permitprep/backend/internal/progress"
	"github.com/permitprep/backend/internal/questions"
	"github.com/permitprep/backend/internal/training"
	"github.com/rs/cors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services
	catalog := questions.NewCatalog(nil)
	questionService := questions.NewService(questions.NewStore(db), catalog)
	progressService := progress.NewService(progress.NewStore(db), cfg.OnboardingUnlockThreshold)
	trainingService := training.NewService(training.NewStore(db), catalog, progressService, cfg.OnboardingUnlockThreshold)
	questionService.SetAttemptRecorder(progressService)

	if cfg.AnthropicAPIKey != "" {
		questionService.SetVerifier(bankcheck.NewVerifier(bankcheck.NewAPIClient(cfg.AnthropicAPIKey, cfg.ValidationModel), 4))
		log.Println("Answer verification enabled")
	}

	if err := questionService.LoadBank(ctx); err != nil {
		log.Fatalf("Failed to load question bank: %v", err)
	}
	if cfg.BankPath != "" {
		if _, err := questionService.SeedFromDir(ctx, cfg.BankPath); err != nil {
			log.Fatalf("Failed to seed question bank from %s: %v", cfg.BankPath, err)
		}
	}

	// Initialize handlers
	authHandler := auth.NewHandler(auth.NewSQLStore(db), []byte(cfg.JWTSecret))
	questionHandler := questions.NewHandler(questionService)
	trainingHandler := training.NewHandler(trainingService)
	progressHandler := progress.NewHandler(progressService)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Admin routes
	admin := api.PathPrefix("").Subrouter()
	admin.Use(middleware.AdminToken(cfg.AdminToken))
	questionHandler.RegisterAdmin(admin)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth([]byte(cfg.JWTSecret)))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	questionHandler.Register(protected)
	trainingHandler.Register(protected)
	progressHandler.Register(protected)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Admin-Token"},
		AllowCredentials: true,
	})

	// Start background workers
	go questionService.StartSessionSweeper(ctx, cfg.SessionSweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
