package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/physiocapture-api/internal/config"
	"github.com/jwalitptl/physiocapture-api/internal/email"
	"github.com/jwalitptl/physiocapture-api/internal/handler/health"
	"github.com/jwalitptl/physiocapture-api/internal/handler/prometheus"
	"github.com/jwalitptl/physiocapture-api/internal/repository/postgres"
	"github.com/jwalitptl/physiocapture-api/internal/worker"
	"github.com/jwalitptl/physiocapture-api/pkg/logger"
	"github.com/jwalitptl/physiocapture-api/pkg/messaging/redis"
	"github.com/jwalitptl/physiocapture-api/pkg/metrics"
	outbox "github.com/jwalitptl/physiocapture-api/pkg/worker"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Output:  os.Stdout,
		Console: cfg.Log.Console,
	})
	log.Logger = appLogger.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger.Zerolog())
	if err != nil {
		appLogger.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	// Initialize repositories
	base := postgres.NewBaseRepository(db, cfg.Database.LockTimeout)
	outboxRepo := postgres.NewOutboxRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	userRepo := postgres.NewUserRepository(base)

	registry := promclient.NewRegistry()
	workerMetrics := metrics.NewWithRegistry(registry, "physiocapture", "worker")

	// Initialize and start outbox processor
	processor, err := outbox.NewOutboxProcessor(outboxRepo, broker, outbox.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		MaxRetries:    cfg.Outbox.MaxRetries,
	}, appLogger, workerMetrics)
	if err != nil {
		appLogger.Fatal(err, "Failed to create outbox processor")
	}
	go processor.Start(ctx)

	var sender email.Sender = email.NewLogSender(appLogger)
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	notifier := worker.NewTransferNotifier(userRepo, sender, appLogger)
	if err := notifier.Start(ctx, broker); err != nil {
		appLogger.Fatal(err, "Failed to start transfer notifier")
	}

	retention := worker.NewRetentionWorker(cfg.Audit.CleanupInterval, appLogger,
		worker.RetentionTask{Name: "audit_logs", Retention: cfg.Audit.Retention, Purge: auditRepo.Cleanup},
		worker.RetentionTask{Name: "outbox_events", Retention: cfg.Outbox.Retention, Purge: outboxRepo.DeleteProcessedBefore},
	)
	go retention.Start(ctx)

	srv := healthServer(cfg.Server.WorkerPort, health.NewHandler(db), prometheus.New(registry))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "Health check server failed")
		}
	}()

	appLogger.Info("Worker started", "health_addr", srv.Addr)
	<-ctx.Done()
	appLogger.Info("Shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Health check server forced to shutdown")
	}
}

func healthServer(port int, h *health.Handler, m *prometheus.Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	h.RegisterRoutes(engine.Group(""), m.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
