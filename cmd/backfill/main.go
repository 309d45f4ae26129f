// Command backfill fetches a storm season article, refines its summary table
// through the Replicate model, and writes the canonical CSV. It runs once and
// exits; re-running with the same inputs produces the same file.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/couchcryptid/storm-data-backfill/internal/adapter/csvfile"
	kafkaadapter "github.com/couchcryptid/storm-data-backfill/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-backfill/internal/adapter/replicate"
	"github.com/couchcryptid/storm-data-backfill/internal/adapter/wikipedia"
	"github.com/couchcryptid/storm-data-backfill/internal/config"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
	"github.com/couchcryptid/storm-data-backfill/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("backfill failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// run wires the stages and executes a single backfill. Split from main so
// deferred cleanup still runs on the exit-code path.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	fetcher := wikipedia.NewClient(cfg, logger, metrics)
	refiner := replicate.NewClient(cfg, logger, metrics)
	writer := csvfile.NewWriter(cfg.OutputPath, logger, metrics)

	// Publishing is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher := kafkaadapter.NewPublisher(cfg, logger, metrics)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = kafkaPublisher
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(fetcher, refiner, writer, publisher, logger, metrics)
	runErr := p.Run(ctx)

	if cfg.PushgatewayURL != "" {
		// Fresh context so a cancelled run still reports its metrics.
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		season := wikipedia.SeasonFromURL(cfg.SeasonURL)
		if err := observability.PushRunMetrics(pushCtx, cfg.PushgatewayURL, season); err != nil {
			logger.Error("push run metrics failed", "error", err)
		}
	}

	return runErr
}
