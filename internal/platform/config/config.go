package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is centralized process configuration. Keep infra values here and
// pass typed config into builders.
type Config struct {
	ServiceName  string   `env:"SERVICE_NAME" envDefault:"pool-engine"`
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	PostgresDSN  string   `env:"POSTGRES_DSN"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	EventTopic   string   `env:"EVENT_TOPIC" envDefault:"pool-engine.events"`

	PolicyFile string `env:"POLICY_FILE"`
	JWTSecret  string `env:"JWT_SECRET"`

	OutboxRelayInterval   time.Duration `env:"OUTBOX_RELAY_INTERVAL" envDefault:"1s"`
	OutboxBatchSize       int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	DeadlineCloseInterval time.Duration `env:"DEADLINE_CLOSE_INTERVAL" envDefault:"30s"`

	EnableOutboxRelay    bool `env:"ENABLE_OUTBOX_RELAY" envDefault:"true"`
	EnableDeadlineCloser bool `env:"ENABLE_DEADLINE_CLOSER" envDefault:"true"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
