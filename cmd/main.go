package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"renewal-service/internal/api"
	"renewal-service/internal/config"
	"renewal-service/internal/db"
	"renewal-service/internal/kafka"
	"renewal-service/internal/ledger"
	"renewal-service/internal/logging"
	"renewal-service/internal/metrics"
	"renewal-service/internal/notification"
	"renewal-service/internal/payments"
	"renewal-service/internal/providers"
	"renewal-service/internal/realtime"
	"renewal-service/internal/subscription"
	"renewal-service/internal/sweep"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed: ", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatal("Logger init failed: ", err)
	}
	defer logger.Close()

	metrics.InitMetrics()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to DB
	if cfg.DB.AutoMigrate {
		if err := db.Migrate(cfg.DB.DSN); err != nil {
			logger.Fatalf("DB migration failed: %v", err)
		}
		logger.Info("DB migrations applied")
	}
	dbConn, err := db.New(ctx, cfg.DB.DSN, cfg.DB.Timeout, logger)
	if err != nil {
		logger.Fatalf("DB connect failed: %v", err)
	}
	defer dbConn.Close()

	// Reminders
	notifications := ledger.New(dbConn, cfg.Notification.Cooldown)
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
	hub := realtime.NewHub(logger)
	opts := []sweep.Option{sweep.WithWorkers(cfg.Notification.SweepWorkers), sweep.WithPublisher(hub)}
	if cfg.Telegram.BotToken != "" {
		opts = append(opts, sweep.WithReporter(providers.NewTelegramReporter(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)))
	}
	orchestrator := sweep.New(dbConn, notifications, dispatcher, logger, opts...)

	// Payments
	subscriptions := subscription.NewService(dbConn, cfg.Billing.DefaultCurrency, time.Now, logger)
	reconciler := payments.NewReconciler(subscriptions, dbConn, time.Now, logger)

	var wg sync.WaitGroup
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer(kafka.Config{
			Brokers: []string{cfg.Kafka.Broker},
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, reconciler, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	// Start API server
	handler := api.NewHandler(api.Dependencies{
		Sweeper:       orchestrator,
		Webhooks:      reconciler,
		Subscriptions: subscriptions,
		Subscribers:   dbConn,
		Notifications: notifications,
		History:       dbConn,
		Hub:           hub,
		CheckoutLinks: cfg.Billing.CheckoutLinks,
		WebhookSecret: cfg.Billing.WebhookSecret,
	}, logger)
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(handler, cfg.API.CronSecret, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API run failed: %v", err)
			cancel()
		}
	}()

	// Handle graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	wg.Wait()
	logger.Info("Service stopped")
}
