package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/api"
	"github.com/Guizzs26/go-crm-sync/internal/broker"
	"github.com/Guizzs26/go-crm-sync/internal/config"
	"github.com/Guizzs26/go-crm-sync/internal/crm"
	"github.com/Guizzs26/go-crm-sync/internal/db"
	"github.com/Guizzs26/go-crm-sync/internal/reservation"
	"github.com/Guizzs26/go-crm-sync/internal/service"
	"github.com/Guizzs26/go-crm-sync/pkg/infra"
)

const brokerConnectAttempts = 5

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := crm.NewClient(crm.Options{
		Token:             cfg.HubSpotToken,
		BaseURL:           cfg.HubSpotBaseURL,
		Logger:            logger,
		Delay:             cfg.RateLimitDelay,
		MaxRequestsPerSec: cfg.MaxRequestsPerSec,
		MaxRetries:        cfg.MaxRetries,
		BreakerThreshold:  cfg.BreakerThreshold,
	})
	if err != nil {
		logger.Error("CRITICAL: CRM client setup failed", "error", err)
		os.Exit(1)
	}

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("CRITICAL: Postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	var sinks []service.EventSink
	var publisher *broker.EventPublisher
	if cfg.RabbitMQURL != "" {
		if rabbitmq := connectBroker(ctx, cfg.RabbitMQURL, logger); rabbitmq != nil {
			defer rabbitmq.Close()
			publisher = broker.NewEventPublisher(rabbitmq, broker.DefaultEventBuffer, logger)
			sinks = append(sinks, publisher)
		}
	}

	synchronizer := service.NewSynchronizer(postgres, client, service.SyncConfig{
		Concurrency: cfg.Concurrency,
		PageSize:    cfg.PageSize,
	}, logger, sinks...)
	runner := service.NewRunner(synchronizer, reservation.NewMemoryGuard(), logger)
	duplicates := service.NewDuplicateFinder(postgres, postgres, client, logger)

	router := api.NewServer(postgres, runner, duplicates, api.Defaults{
		DryRun:     cfg.DryRun,
		PageSize:   cfg.PageSize,
		CompanyIDs: cfg.CompanyIDsFilter,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// a full sync answers only when it finishes
		WriteTimeout: 30 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 CRM sync API online", "addr", server.Addr, "dry_run_default", cfg.DryRun)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("🛑 Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown incomplete", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(shutdownCtx); err != nil {
			logger.Warn("Some sync events were not published", "error", err)
		}
	}
	logger.Info("✅ Shutdown complete")
}

// connectBroker retries with backoff and gives up after a few attempts: event publishing
// is optional and must not keep the API down.
func connectBroker(ctx context.Context, url string, logger *slog.Logger) *broker.RabbitMQClient {
	backoff := infra.NewBackoff(1*time.Second, 15*time.Second, 2.0)
	for attempt := 1; attempt <= brokerConnectAttempts; attempt++ {
		client, err := broker.NewRabbitMQClient(url, logger)
		if err == nil {
			return client
		}
		wait := backoff.Next()
		logger.Error("RabbitMQ connection failed, retrying...", "attempt", attempt, "wait_duration", wait, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
	logger.Warn("Event publishing disabled, broker unreachable", "attempts", brokerConnectAttempts)
	return nil
}
