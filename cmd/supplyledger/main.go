package main

import (
	"context"
	"os"

	"github.com/gabapcia/supplyledger/internal/config"
	"github.com/gabapcia/supplyledger/internal/handlers/cli"
	"github.com/gabapcia/supplyledger/internal/infra/notify/webhook"
	"github.com/gabapcia/supplyledger/internal/infra/storage/redis"
	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pipeline"
	"github.com/gabapcia/supplyledger/internal/pkg/logger"
	"github.com/gabapcia/supplyledger/internal/pkg/telemetry"
	transporthttp "github.com/gabapcia/supplyledger/internal/pkg/transport/http"
	"github.com/gabapcia/supplyledger/internal/pkg/validator"
)

const serviceName = "supplyledger"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		shutdown, err := telemetry.Init(ctx, serviceName)
		if err != nil {
			os.Stderr.WriteString("failed to initialize telemetry: " + err.Error() + "\n")
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	validator.Init()

	opts := []pipeline.Option{
		pipeline.WithBatchSize(cfg.MinerBatchSize),
		pipeline.WithFlushInterval(cfg.MinerFlushInterval),
		pipeline.WithIntakeBufferSize(cfg.IntakeBufferSize),
		pipeline.WithMiningBufferSize(cfg.MiningBufferSize),
		pipeline.WithShutdownGracePeriod(cfg.ShutdownGracePeriod),
	}

	var archive pipeline.BlockArchive
	if cfg.RedisAddr != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal(ctx, "failed to connect to redis", "error", err)
		}
		defer redisClient.Close()

		archive = redisClient
		opts = append(opts, pipeline.WithBlockArchive(redisClient))
	}

	if cfg.MinedBlockWebhookURL != "" {
		notifier := webhook.New(cfg.MinedBlockWebhookURL, transporthttp.NewClient())
		opts = append(opts, pipeline.WithMinedBlockNotifier(notifier))
	}

	l := ledger.New(cfg.LedgerDifficulty)
	pl := pipeline.New(l, opts...)

	if err := cli.Run(ctx, pl, archive, cfg.LedgerDifficulty); err != nil {
		logger.Fatal(ctx, "command failed", "error", err)
	}
}
