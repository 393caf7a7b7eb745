package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/tidycrm/mailsync/internal/config"
	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/internal/mailbox"
	"github.com/tidycrm/mailsync/internal/resolve"
	"github.com/tidycrm/mailsync/internal/scheduler"
	"github.com/tidycrm/mailsync/internal/service"
	"github.com/tidycrm/mailsync/internal/signature"
	"github.com/tidycrm/mailsync/internal/smtpout"
	"github.com/tidycrm/mailsync/pkg/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mail sync service")

	// Connect to database
	db, err := database.Open(cfg.DatabasePath, database.Options{BusyTimeout: cfg.DatabaseBusyTimeout})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Create components
	signatures := signature.NewParser(cfg.SignatureLocale)
	companies := resolve.NewCompanyMatcher(db, cfg.AutoCreateCompanies, logger)
	contacts := resolve.NewContactMatcher(db, logger)

	receiver := mailbox.NewReceiver(mailbox.ReceiverDeps{
		DB:          db,
		Signatures:  signatures,
		Companies:   companies,
		Contacts:    contacts,
		DialTimeout: cfg.IMAPDialTimeout,
		PollTimeout: cfg.IMAPPollInterval,
		Logger:      logger,
	})
	supervisor := mailbox.NewSupervisor(receiver, cfg.ListenerReconnectDelay, cfg.ListenerDrainTimeout, logger)

	runner := func(ctx context.Context, accountID int64) error {
		account, err := db.GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		_, err = receiver.FetchUnread(ctx, account)
		return err
	}
	var queue scheduler.Queue
	if cfg.QueueMode == "db" {
		queue = scheduler.NewDBQueue(db, runner, cfg.SyncWorkers, cfg.SyncMaxAttempts, cfg.SyncRetryBackoff, cfg.QueuePollInterval, logger)
	} else {
		queue = scheduler.NewMemoryQueue(runner, cfg.SyncWorkers, cfg.SyncMaxAttempts, cfg.SyncRetryBackoff, logger)
	}
	queue.SetCompletionHandler(func(accountID int64, at time.Time) {
		if err := db.UpdateAccountLastSynced(ctx, accountID, at); err != nil {
			logger.Warn("failed to record sync time", "account_id", accountID, "error", err)
		}
	})
	queue.Start(ctx)

	sender := smtpout.NewSender(db, cfg.SMTPDialTimeout, logger)
	emailSvc := service.NewEmailService(db, queue, sender, logger)

	// Restore mailbox connections and recurring jobs from database
	accounts, err := db.GetAllActiveAccounts(ctx)
	if err != nil {
		logger.Error("failed to get active accounts", "error", err)
		os.Exit(1)
	}

	if len(accounts) > 0 {
		logger.Info("restoring mailbox connections", "count", len(accounts))
		supervisor.RestoreAll(ctx, accounts)

		for _, account := range accounts {
			queue.ScheduleRecurring(account.ID, syncInterval(account, cfg.DefaultSyncInterval))
		}

		// Catch up on mail that arrived while the service was down.
		if count, err := emailSvc.SyncAll(ctx); err != nil {
			logger.Warn("initial sync failed", "error", err)
		} else {
			logger.Info("initial sync triggered", "accounts", count)
		}
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("mail sync is running, press Ctrl+C to stop")
	sig := <-sigCh

	logger.Info("received shutdown signal", "signal", sig)
	logger.Info("shutting down...")

	supervisor.StopAll()
	queue.Stop()
	cancel()

	logger.Info("mail sync stopped")
}

func syncInterval(account *models.MailAccount, fallback time.Duration) time.Duration {
	if account.SyncMinutes > 0 {
		return time.Duration(account.SyncMinutes) * time.Minute
	}
	return fallback
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
