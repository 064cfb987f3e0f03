package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bisse060/groofit-sub000/internal/config"
	"github.com/bisse060/groofit-sub000/internal/database"
	"github.com/bisse060/groofit-sub000/internal/handlers"
	"github.com/bisse060/groofit-sub000/internal/nutrition"
	"github.com/bisse060/groofit-sub000/internal/oauth"
	"github.com/bisse060/groofit-sub000/internal/scheduler"
	"github.com/bisse060/groofit-sub000/internal/sync"
	"github.com/bisse060/groofit-sub000/internal/wearable"
)

func main() {
	createToken := flag.String("create-api-token", "", "Create an API bearer token for the given user id and print it")
	revokeToken := flag.String("revoke-api-token", "", "Revoke the given API bearer token")

	flag.Parse()

	if *createToken != "" || *revokeToken != "" {
		runCLI(*createToken, *revokeToken)
		return
	}

	runServer()
}

func runCLI(createToken, revokeToken string) {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch {
	case createToken != "":
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
			os.Exit(1)
		}
		token := hex.EncodeToString(buf)

		if err := db.CreateAPIToken(token, createToken); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to create token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created API token for user %s:\n%s\n", createToken, token)
	case revokeToken != "":
		if err := db.DeleteAPIToken(revokeToken); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to revoke token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Token revoked.")
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting groofit-sync server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"log_level", cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Database opened successfully")

	wearableClient := wearable.NewClient(cfg, db, logger)
	nutritionClient := nutrition.NewClient(cfg, logger)
	oauthManager := oauth.NewManager(db, wearableClient, nutritionClient, logger)
	executor := sync.NewExecutor(db, wearableClient, logger)
	orchestrator := sync.NewOrchestrator(db, executor, wearableClient,
		cfg.BackfillDailyQuota, cfg.BackfillRefreshEvery, logger)

	h := handlers.New(db, oauthManager, executor, orchestrator, nutritionClient, cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      h.Router(),
		ReadTimeout:  35 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the scheduler in background
	sched := scheduler.New(orchestrator, oauthManager, cfg.TickInterval, cfg.StateTTL, logger)
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	go sched.Run(schedCtx)

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	schedCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}
