// Package config loads the application configuration from environment
// variables, with sane defaults for local runs. Variables are read with the
// SUPPLYLEDGER_ prefix, e.g. SUPPLYLEDGER_LEDGER_DIFFICULTY.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix is applied to every environment variable name.
const envPrefix = "supplyledger"

// Config carries every tunable of the application.
type Config struct {
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	OtelEnabled bool   `envconfig:"OTEL_ENABLED" default:"false"`

	LedgerDifficulty int `envconfig:"LEDGER_DIFFICULTY" default:"3"`

	MinerBatchSize      int           `envconfig:"MINER_BATCH_SIZE" default:"8"`
	MinerFlushInterval  time.Duration `envconfig:"MINER_FLUSH_INTERVAL" default:"2s"`
	IntakeBufferSize    int           `envconfig:"INTAKE_BUFFER_SIZE" default:"256"`
	MiningBufferSize    int           `envconfig:"MINING_BUFFER_SIZE" default:"256"`
	ShutdownGracePeriod time.Duration `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"5s"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisUsername string `envconfig:"REDIS_USERNAME"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	MinedBlockWebhookURL string `envconfig:"MINED_BLOCK_WEBHOOK_URL"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process(envPrefix, &cfg)
	return cfg, err
}
