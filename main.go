// Command main runs a single subscription sweep and prints its report.
// It is meant for schedulers that start a binary instead of calling the HTTP trigger.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"renewal-service/internal/config"
	"renewal-service/internal/db"
	"renewal-service/internal/ledger"
	"renewal-service/internal/logging"
	"renewal-service/internal/models"
	"renewal-service/internal/notification"
	"renewal-service/internal/providers"
	"renewal-service/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	// A started sweep runs to completion; each call inside it is bounded by its own timeout.
	ctx := context.Background()

	dbConn, err := db.New(ctx, cfg.DB.DSN, cfg.DB.Timeout, logger)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	dispatcher := notification.NewDispatcher(
		providers.NewResendMailer(cfg.Email.ResendAPIKey, cfg.Email.RateLimit, cfg.Email.Timeout),
		providers.NewLogMailer(logger),
		notification.Options{
			From:         cfg.Email.From,
			RenewURL:     cfg.Email.RenewURL,
			SupportEmail: cfg.Email.SupportEmail,
			Timeout:      cfg.Email.Timeout,
		},
		logger,
	)
	opts := []sweep.Option{sweep.WithWorkers(cfg.Notification.SweepWorkers)}
	if cfg.Telegram.BotToken != "" {
		opts = append(opts, sweep.WithReporter(providers.NewTelegramReporter(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)))
	}
	orchestrator := sweep.New(dbConn, ledger.New(dbConn, cfg.Notification.Cooldown), dispatcher, logger, opts...)

	report, err := orchestrator.Run(ctx, time.Now())
	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err != nil {
		logger.Errorf("Subscription sweep failed: %v", err)
		_ = out.Encode(map[string]any{"success": false, "error": err.Error(), "timestamp": time.Now()})
		dbConn.Close()
		logger.Close()
		os.Exit(1)
	}
	_ = out.Encode(struct {
		Success bool `json:"success"`
		models.RunReport
	}{true, report})
}
