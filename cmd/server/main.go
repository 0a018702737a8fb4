package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/corepay/payment-gateway/internal/adapters/postgres"
	"github.com/corepay/payment-gateway/internal/adapters/processor"
	"github.com/corepay/payment-gateway/internal/config"
	"github.com/corepay/payment-gateway/internal/domain/ports"
	cronhandler "github.com/corepay/payment-gateway/internal/handlers/cron"
	webhookhandler "github.com/corepay/payment-gateway/internal/handlers/webhook"
	"github.com/corepay/payment-gateway/internal/scheduler"
	"github.com/corepay/payment-gateway/internal/services/payment"
	"github.com/corepay/payment-gateway/internal/services/signature"
	"github.com/corepay/payment-gateway/internal/services/subscription"
	webhooksvc "github.com/corepay/payment-gateway/internal/services/webhook"
	"github.com/corepay/payment-gateway/internal/worker"
	"github.com/corepay/payment-gateway/pkg/observability"
	"github.com/corepay/payment-gateway/pkg/resilience"
	"github.com/corepay/payment-gateway/pkg/security"
	"github.com/corepay/payment-gateway/pkg/shutdown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := security.NewZapLogger(zapLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Error("database connection failed", ports.Err(err))
		os.Exit(1)
	}

	// repositories
	eventRepo := postgres.NewWebhookEventRepository()
	subRepo := postgres.NewSubscriptionRepository()
	paymentRepo := postgres.NewPaymentRepository()
	methodRepo := postgres.NewPaymentMethodRepository()
	idemRepo := postgres.NewIdempotencyRepository()

	// services
	timeouts := resilience.DefaultTimeouts()
	cardProcessor := processor.NewSandbox(logger)
	executor := payment.NewIdempotentExecutor(db, idemRepo, cfg.IdempotencyCacheSize, logger)
	paymentSvc := payment.NewService(db, paymentRepo, methodRepo, cardProcessor, executor, timeouts, logger)
	billingEngine := subscription.NewEngine(db, subRepo, methodRepo, paymentSvc, int32(cfg.BillingBatchSize), logger)

	// webhook pipeline
	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, logger)
	pool.Start()
	eventProcessor := webhooksvc.NewProcessor(db, eventRepo, paymentSvc, billingEngine, logger)
	verifier := signature.NewVerifier(cfg.WebhookSecret, logger)
	ingestion := webhooksvc.NewIngestionService(db, eventRepo, verifier, pool, eventProcessor.Process, logger)
	sweeper := webhooksvc.NewRetrySweeper(db, eventRepo, eventProcessor, int32(cfg.RetryBatchSize), logger)

	// background jobs
	jobs := scheduler.New(logger)
	jobs.Register("billing-sweep", cfg.BillingInterval, func(ctx context.Context) error {
		processed, failed, err := billingEngine.ProcessDue(ctx)
		if err != nil {
			return err
		}
		logger.Info("billing sweep complete",
			ports.Int("processed", processed),
			ports.Int("failed", failed))
		return nil
	})
	jobs.Register("webhook-retry-sweep", cfg.RetryInterval, sweeper.Sweep)
	jobs.Start()

	// HTTP surfaces
	webhookHandler := webhookhandler.NewHandler(ingestion, logger)
	webhookMux := http.NewServeMux()
	webhookMux.HandleFunc("/webhooks/payment", webhookHandler.Receive)
	webhookMux.HandleFunc("/health", healthz)
	webhookServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.WebhookPort),
		Handler:      webhookMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeouts.HTTPRequest,
	}

	cronHandler := cronhandler.NewHandler(billingEngine, sweeper, eventRepo, db, cfg.CronSecret, logger)
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/cron/process-billing", cronHandler.ProcessBilling)
	adminMux.HandleFunc("/cron/retry-webhooks", cronHandler.RetryWebhooks)
	adminMux.HandleFunc("/cron/stats", cronHandler.Stats)
	adminMux.HandleFunc("/health", cronHandler.HealthCheck)
	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AdminPort),
		Handler:      adminMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeouts.HTTPRequest,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", observability.Handler())
	metricsMux.HandleFunc("/health", healthz)
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	// shutdown order is LIFO: servers first, then jobs, then the pool
	// drains, and the database closes last
	manager := shutdown.NewManager(cfg.ShutdownTimeout, logger)
	manager.Register("database", func(ctx context.Context) error {
		db.Close()
		return nil
	})
	manager.Register("worker-pool", pool.Shutdown)
	manager.Register("scheduler", jobs.Shutdown)
	manager.Register("metrics-server", metricsServer.Shutdown)
	manager.Register("admin-server", adminServer.Shutdown)
	manager.Register("webhook-server", webhookServer.Shutdown)

	startServer(logger, "webhook", webhookServer)
	startServer(logger, "admin", adminServer)
	startServer(logger, "metrics", metricsServer)

	logger.Info("payment gateway started",
		ports.Int("webhook_port", cfg.WebhookPort),
		ports.Int("admin_port", cfg.AdminPort),
		ports.Int("metrics_port", cfg.MetricsPort),
		ports.Bool("signature_verification", verifier.Enabled()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("shutdown signal received", ports.String("signal", received.String()))

	manager.Shutdown()
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func startServer(logger ports.Logger, name string, srv *http.Server) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed",
				ports.String("server", name),
				ports.Err(err))
		}
	}()
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
