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

	"github.com/gin-gonic/gin"
	"github.com/skillcert/proctor-engine/internal/client"
	"github.com/skillcert/proctor-engine/internal/config"
	"github.com/skillcert/proctor-engine/internal/detect"
	"github.com/skillcert/proctor-engine/internal/handlers"
	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/skillcert/proctor-engine/internal/repositories/postgres"
	"github.com/skillcert/proctor-engine/internal/services"
	"github.com/skillcert/proctor-engine/internal/timer"
	"github.com/skillcert/proctor-engine/internal/utils"
	"github.com/skillcert/proctor-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger = utils.NewDevelopmentLogger()
	}
	slogger := utils.ToSlogLogger(logger)

	logger.Info("Starting proctor engine",
		"port", cfg.Port,
		"environment", cfg.Environment)

	// Database for the violation audit log.
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(&models.ProctoringViolation{}); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	repo := postgres.NewRepository(db)

	// Redis backs timer durability across page reloads.
	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	timerStore := timer.NewRedisStore(redisClient, 0)

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		logger.Error("Failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	backend := client.NewHTTPBackend(cfg.BackendURL, 0)
	inference := detect.NewInferenceClient(cfg.InferenceURL)

	sessionService := services.NewSessionService(services.SessionServiceDeps{
		Backend:    backend,
		TimerStore: timerStore,
		Faces:      inference,
		Objects:    inference,
		Publisher:  publisher,
		Violations: repo.Violation(),
		Logger:     slogger,
		Proctoring: cfg.Proctoring,
	})
	reportService := services.NewReportService(repo.Violation(), slogger)

	validator := utils.NewValidator()
	handlerManager := handlers.NewHandlerManager(
		sessionService, reportService, validator, cfg.AllowedOrigins, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))
	handlerManager.SetupRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("Proctor engine listening", "addr", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	// Live sessions first: releases cameras, stops timers and loops.
	sessionService.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}

	logger.Info("Proctor engine stopped")
}
