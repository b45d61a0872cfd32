package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"skimeister/internal/app"
	"skimeister/internal/config"
	"skimeister/internal/handlers"
	"skimeister/internal/logging"
	"skimeister/internal/ratelimit"
	"skimeister/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", *configPath, err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger.WithField("config", *configPath).Info("configuration loaded")

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize services")
	}
	defer application.Close()

	// Initialize rate limiter
	apiLimiter := ratelimit.NewRateLimiter(
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.RequestsPerHour,
		cfg.RateLimit.RequestsPerDay,
		cfg.RateLimit.Enabled,
	)

	sched := scheduler.NewScheduler(application.Runner, cfg.Scraper, logger)
	if err := sched.Start(); err != nil {
		logger.WithError(err).Warn("failed to start scheduler")
	}
	defer sched.Stop()

	gin.SetMode(cfg.Server.Mode)
	resorts, admin := application.Handlers(sched, apiLimiter)
	router := handlers.NewRouter(cfg.Server, resorts, admin, apiLimiter, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("server shutdown incomplete")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
