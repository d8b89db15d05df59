package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/broker"
	"github.com/Guizzs26/go-crm-sync/internal/config"
	"github.com/Guizzs26/go-crm-sync/internal/crm"
	"github.com/Guizzs26/go-crm-sync/internal/db"
	"github.com/Guizzs26/go-crm-sync/internal/reservation"
	"github.com/Guizzs26/go-crm-sync/internal/service"
	"github.com/Guizzs26/go-crm-sync/pkg/infra"

	"github.com/spf13/cobra"
)

var (
	dryRun     bool
	companyIDs string
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	rootCmd := &cobra.Command{
		Use:   "sync",
		Short: "Push CS-Cart vendors and their admin users into HubSpot",
		Long: `Runs one sync: ensures the custom CRM properties exist, reads companies and
admin users from the store and upserts them as CRM companies and contacts.
Per-record failures are logged and do not change the exit code.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cfg, logger)
		},
	}

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", cfg.DryRun, "Read and map everything, write nothing (env: DRY_RUN)")
	rootCmd.Flags().StringVar(&companyIDs, "company-ids", "", "Comma-separated company_id list (env: COMPANY_IDS)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Sync failed", "error", err)
		stop()
		infra.CloseLogger()
		os.Exit(1)
	}
}

func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ids := config.ParseIDList(companyIDs)
	if len(ids) == 0 {
		ids = cfg.CompanyIDsFilter
	}

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
		return err
	}

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer postgres.Close()

	var sinks []service.EventSink
	if cfg.RabbitMQURL != "" {
		rabbitmq, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, logger)
		if err != nil {
			// events still reach the log; the broker is optional
			logger.Warn("Event publishing disabled", "error", err)
		} else {
			defer rabbitmq.Close()
			publisher := broker.NewEventPublisher(rabbitmq, broker.DefaultEventBuffer, logger)
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := publisher.Close(drainCtx); err != nil {
					logger.Warn("Some sync events were not published", "error", err)
				}
			}()
			sinks = append(sinks, publisher)
		}
	}

	synchronizer := service.NewSynchronizer(postgres, client, service.SyncConfig{
		Concurrency: cfg.Concurrency,
		PageSize:    cfg.PageSize,
	}, logger, sinks...)
	runner := service.NewRunner(synchronizer, reservation.NewMemoryGuard(), logger)

	report, err := runner.Run(ctx, service.RunOptions{DryRun: dryRun, CompanyIDs: ids})
	if err != nil {
		return err
	}

	r := report.Result
	slog.Info("Sync complete",
		"run_id", report.RunID,
		"companies_processed", r.CompaniesProcessed,
		"users_processed", r.UsersProcessed,
		"companies_failed", r.Companies.Failed,
		"users_failed", r.Users.Failed,
	)
	return nil
}
