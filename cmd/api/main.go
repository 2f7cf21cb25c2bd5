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
	_ "time/tzdata"

	"funda-finder/internal/app"
	"funda-finder/internal/config"
	"funda-finder/internal/handlers"
	"funda-finder/internal/ratelimit"
	"funda-finder/internal/scheduler"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "config/funda.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}
	log.Printf("Loaded configuration from %s (database: %s)", configPath, appConfig.Database.Type)

	a, err := app.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	rateLimiter := ratelimit.NewRateLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.RequestsPerDay,
		appConfig.RateLimit.Enabled,
	)
	log.Printf("Rate limiter initialized: %d req/min, %d req/hour, %d req/day (enabled: %v)",
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.RequestsPerDay,
		appConfig.RateLimit.Enabled,
	)

	appScheduler := scheduler.NewScheduler(a.Pipeline, a.Cleanup, appConfig)
	if err := appScheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start scheduler: %v", err)
	}
	defer appScheduler.Stop()

	var searcher handlers.Searcher
	if a.Search != nil {
		searcher = a.Search
	}

	router := handlers.NewRouter(handlers.Handlers{
		Properties: handlers.NewPropertyHandler(a.DB, a.Analyzer, a.History),
		Analysis:   handlers.NewAnalysisHandler(a.Analyzer, appConfig.Analysis.DefaultLimit),
		Admin: handlers.NewAdminHandler(a.DB, a.Tracker, appScheduler, a.Cleanup,
			a.History, rateLimiter, a.PurgeDefaults()),
		Search:       handlers.NewSearchHandler(searcher),
		AllowOrigins: appConfig.Server.AllowOrigins,
	})

	srv := &http.Server{
		Addr:              appConfig.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
