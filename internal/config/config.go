package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath        string        `env:"DATABASE_PATH" envDefault:"./data/mailsync.db"`
	DatabaseBusyTimeout time.Duration `env:"DATABASE_BUSY_TIMEOUT" envDefault:"5s"`

	// IMAP
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	// How often a connected listener checks its mailbox for new messages.
	IMAPPollInterval time.Duration `env:"IMAP_POLL_INTERVAL" envDefault:"15s"`
	// Delay before a dropped listener connection is re-established.
	ListenerReconnectDelay time.Duration `env:"LISTENER_RECONNECT_DELAY" envDefault:"30s"`
	// Upper bound on one pass over a mailbox's unread messages.
	ListenerDrainTimeout time.Duration `env:"LISTENER_DRAIN_TIMEOUT" envDefault:"2m"`

	// SMTP
	SMTPDialTimeout time.Duration `env:"SMTP_DIAL_TIMEOUT" envDefault:"30s"`

	// Sync scheduling. QUEUE_MODE "db" stores jobs in sync_jobs so several
	// processes can share the work; "memory" keeps them in-process.
	QueueMode           string        `env:"QUEUE_MODE" envDefault:"memory"`
	QueuePollInterval   time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	SyncWorkers         int           `env:"SYNC_WORKERS" envDefault:"4"`
	SyncMaxAttempts     int           `env:"SYNC_MAX_ATTEMPTS" envDefault:"3"`
	SyncRetryBackoff    time.Duration `env:"SYNC_RETRY_BACKOFF" envDefault:"30s"`
	DefaultSyncInterval time.Duration `env:"DEFAULT_SYNC_INTERVAL" envDefault:"5m"`

	// Entity resolution
	AutoCreateCompanies bool `env:"AUTO_CREATE_COMPANIES" envDefault:"false"`

	// Signature parsing
	SignatureLocale string `env:"SIGNATURE_LOCALE" envDefault:"en"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncWorkers < 1 {
		return nil, fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", cfg.SyncWorkers)
	}
	if cfg.SyncMaxAttempts < 1 {
		return nil, fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1, got %d", cfg.SyncMaxAttempts)
	}
	if cfg.QueueMode != "memory" && cfg.QueueMode != "db" {
		return nil, fmt.Errorf("QUEUE_MODE must be \"memory\" or \"db\", got %q", cfg.QueueMode)
	}

	return cfg, nil
}
