package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/broker"
	"github.com/Guizzs26/go-crm-sync/internal/config"
	"github.com/Guizzs26/go-crm-sync/internal/models"
	"github.com/Guizzs26/go-crm-sync/pkg/infra"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// a session shorter than this counts as a failed connection for backoff purposes
const sessionStableAfter = 30 * time.Second

var (
	queue      string
	routingKey string
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	rootCmd := &cobra.Command{
		Use:   "events",
		Short: "Follow sync events published on RabbitMQ",
		Long: `Binds a queue to the crm.sync.events exchange and writes every event to stdout
as one JSON line. Routing keys are sync.<phase>.<level>, e.g. "sync.*.error".`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.RabbitMQURL == "" {
				return errors.New("RABBITMQ_URL is not set")
			}
			return follow(cmd.Context(), cfg.RabbitMQURL, logger)
		},
	}

	rootCmd.Flags().StringVar(&queue, "queue", "", "Durable queue name; empty uses a temporary queue")
	rootCmd.Flags().StringVar(&routingKey, "routing-key", "sync.#", "Binding key on the events exchange")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Event tail failed", "error", err)
		stop()
		infra.CloseLogger()
		os.Exit(1)
	}
}

func follow(ctx context.Context, url string, logger *slog.Logger) error {
	enc := json.NewEncoder(os.Stdout)
	write := func(_ context.Context, e models.Event) error {
		return enc.Encode(e)
	}

	connect := func() (broker.Listener, error) {
		consumer, err := broker.NewEventConsumer(url, queue, routingKey, write, logger)
		if err != nil {
			return nil, err
		}
		return consumer, nil
	}

	broker.Supervise(ctx, connect, infra.NewBackoff(1*time.Second, 60*time.Second, 2.0), sessionStableAfter, logger)
	return nil
}
