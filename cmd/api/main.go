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

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/physiocapture-api/internal/config"
	appointmentHandler "github.com/jwalitptl/physiocapture-api/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/physiocapture-api/internal/handler/audit"
	authHandler "github.com/jwalitptl/physiocapture-api/internal/handler/auth"
	"github.com/jwalitptl/physiocapture-api/internal/handler/branch"
	"github.com/jwalitptl/physiocapture-api/internal/handler/health"
	patientHandler "github.com/jwalitptl/physiocapture-api/internal/handler/patient"
	"github.com/jwalitptl/physiocapture-api/internal/handler/prometheus"
	transferHandler "github.com/jwalitptl/physiocapture-api/internal/handler/transfer"
	userHandler "github.com/jwalitptl/physiocapture-api/internal/handler/user"
	"github.com/jwalitptl/physiocapture-api/internal/middleware"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository/postgres"
	"github.com/jwalitptl/physiocapture-api/internal/router"
	appointmentService "github.com/jwalitptl/physiocapture-api/internal/service/appointment"
	auditService "github.com/jwalitptl/physiocapture-api/internal/service/audit"
	authService "github.com/jwalitptl/physiocapture-api/internal/service/auth"
	medicalService "github.com/jwalitptl/physiocapture-api/internal/service/medical"
	patientService "github.com/jwalitptl/physiocapture-api/internal/service/patient"
	tenantService "github.com/jwalitptl/physiocapture-api/internal/service/tenant"
	transferService "github.com/jwalitptl/physiocapture-api/internal/service/transfer"
	userService "github.com/jwalitptl/physiocapture-api/internal/service/user"
	"github.com/jwalitptl/physiocapture-api/pkg/auth"
	"github.com/jwalitptl/physiocapture-api/pkg/logger"
	"github.com/jwalitptl/physiocapture-api/pkg/metrics"
	"github.com/jwalitptl/physiocapture-api/pkg/security"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Output:  os.Stdout,
		Console: cfg.Log.Console,
	})
	// request logging goes through the global zerolog logger
	log.Logger = appLogger.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Migrations.Auto {
		version, err := postgres.Migrate(cfg.Database.URL(), cfg.Migrations.Dir, postgres.MigrateUp)
		if err != nil {
			appLogger.Fatal(err, "Failed to run migrations")
		}
		appLogger.Info("Database migrated", "version", version)
	}

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	// Initialize repositories
	base := postgres.NewBaseRepository(db, cfg.Database.LockTimeout)
	clinicRepo := postgres.NewClinicRepository(base)
	branchRepo := postgres.NewBranchRepository(base)
	userRepo := postgres.NewUserRepository(base)
	patientRepo := postgres.NewPatientRepository(base)
	historyRepo := postgres.NewTransferHistoryRepository(base)
	requestRepo := postgres.NewTransferRequestRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	appointmentRepo := postgres.NewAppointmentRepository(base)
	recordRepo := postgres.NewMedicalRecordRepository(base)

	registry := promclient.NewRegistry()
	domainMetrics := metrics.NewWithRegistry(registry, "physiocapture", "api")

	jwtSvc, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	if err != nil {
		appLogger.Fatal(err, "Failed to initialize token service")
	}
	hasher := security.NewBcryptHasher(0)

	// Initialize services
	auditSvc := auditService.NewService(auditRepo)
	authSvc := authService.NewService(userRepo, jwtSvc, hasher, auditSvc)
	tenantSvc := tenantService.NewService(&base, clinicRepo, branchRepo, userRepo, hasher, auditSvc)
	userSvc := userService.NewService(userRepo, clinicRepo, branchRepo, patientRepo, hasher, auditSvc)
	patientSvc := patientService.NewService(&base, patientRepo, userRepo, auditSvc, model.CPFScope(cfg.Patients.CPFScope))
	transferSvc := transferService.NewService(&base, patientRepo, userRepo, historyRepo, requestRepo, outboxRepo, auditSvc, domainMetrics)
	appointmentSvc := appointmentService.NewService(appointmentRepo, patientRepo, auditSvc)
	medicalSvc := medicalService.NewService(recordRepo, patientRepo, auditSvc)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, authSvc, cfg.AuthCache.TTL, domainMetrics)

	// Initialize handlers
	handlers := router.Handlers{
		Health:      health.NewHandler(db),
		Auth:        authHandler.NewHandler(authSvc),
		Branch:      branch.NewHandler(tenantSvc),
		User:        userHandler.NewHandler(userSvc, authMiddleware),
		Patient:     patientHandler.NewHandler(patientSvc, transferSvc, medicalSvc),
		Transfer:    transferHandler.NewHandler(transferSvc),
		Appointment: appointmentHandler.NewHandler(appointmentSvc),
		Audit:       auditHandler.NewHandler(auditSvc),
	}

	// Setup router
	r, err := router.NewRouter(authMiddleware, prometheus.New(registry), handlers, router.RouterConfig{
		RequestTimeout:   cfg.Server.RequestTimeout,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.Rate),
		RateBurst:        cfg.RateLimit.Burst,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		Security:         middleware.DefaultSecurityConfig(),
	})
	if err != nil {
		appLogger.Fatal(err, "Failed to build router")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		appLogger.Info("API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Server forced to shutdown")
		return
	}

	appLogger.Info("Server exited properly")
}
