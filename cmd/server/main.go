package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/capacity"
	"github.com/schoolhub/bulkops-backend/internal/config"
	"github.com/schoolhub/bulkops-backend/internal/database"
	"github.com/schoolhub/bulkops-backend/internal/handler"
	"github.com/schoolhub/bulkops-backend/internal/logger"
	"github.com/schoolhub/bulkops-backend/internal/metrics"
	"github.com/schoolhub/bulkops-backend/internal/queue"
	"github.com/schoolhub/bulkops-backend/internal/repository"
	"github.com/schoolhub/bulkops-backend/internal/router"
	"github.com/schoolhub/bulkops-backend/internal/service"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
	"github.com/schoolhub/bulkops-backend/internal/validator"
	"github.com/schoolhub/bulkops-backend/internal/worker"
)

// memoryQueueSize bounds queued jobs when running without Redis.
const memoryQueueSize = 256

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("operation_store", cfg.OperationStore).
		Msg("Starting bulk operations backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	// Bulk workers get their own pool so a long import cannot starve
	// interactive requests of connections.
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns, "interactive", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	bgPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.BackgroundMaxDBConns, "background", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect background PostgreSQL pool")
	}
	defer bgPool.Close()

	checks := map[string]handler.HealthCheck{"postgres": database.PostgresProbe(pool)}

	// ─── Operation Store, Events & Queue ──────────────────────────────
	var (
		store  tracker.Store
		events tracker.Events
		jobs   queue.Queue
		rdb    *redis.Client
	)
	switch cfg.OperationStore {
	case config.OperationStoreMemory:
		log.Warn().Msg("Operation status is kept in memory; it is lost on restart and invisible to other instances")
		store = tracker.NewMemoryStore(cfg.OperationTTL)
		events = tracker.NewMemoryEvents()
		jobs = queue.NewMemoryQueue(memoryQueueSize)
	default:
		rdb, err = database.NewRedisClient(ctx, cfg.RedisURL, worker.BulkPollTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		store = tracker.NewRedisStore(rdb, cfg.OperationTTL)
		events = tracker.NewRedisEvents(rdb, log)
		jobs = queue.NewRedisQueue(rdb)
		checks["redis"] = database.RedisProbe(rdb)
	}

	// ─── Metrics ───────────────────────────────────────────────────────
	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ─── Initialize Repositories ───────────────────────────────────────
	tenantRepo := repository.NewTenantRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)

	bgTenantRepo := repository.NewTenantRepository(bgPool)
	bgClassRepo := repository.NewClassRepository(bgPool)
	bgStudentRepo := repository.NewStudentRepository(bgPool)
	bgEnrollmentRepo := repository.NewEnrollmentRepository(bgPool)

	// ─── Initialize Services ──────────────────────────────────────────
	checker := capacity.NewChecker(log, collector)
	opTracker := tracker.New(store, events, cfg.MaxStoredErrors, collector, log)

	tokenService := service.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	operationService := service.NewOperationService(opTracker, jobs, log)
	enrollmentService := service.NewEnrollmentService(pool, tenantRepo, classRepo, studentRepo, enrollmentRepo, checker, collector, log)
	classService := service.NewClassService(pool, classRepo, tenantRepo, checker, collector, log)

	bgTenantService := service.NewTenantBulkService(bgTenantRepo, cfg.BulkBatchSize, log)
	bgEnrollmentService := service.NewEnrollmentService(bgPool, bgTenantRepo, bgClassRepo, bgStudentRepo, bgEnrollmentRepo, checker, collector, log)
	bgClassService := service.NewClassService(bgPool, bgClassRepo, bgTenantRepo, checker, collector, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		TenantBulk: handler.NewTenantBulkHandler(operationService, cfg.MaxUploadBytes, log),
		Enrollment: handler.NewEnrollmentHandler(enrollmentService, operationService, cfg.MaxUploadBytes, log),
		Class:      handler.NewClassHandler(classService, log),
		WS:         handler.NewWSHandler(operationService, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(checks, jobs, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	bulkWorker := worker.NewBulkWorker(jobs, opTracker, bgTenantService, bgEnrollmentService, cfg.BulkWorkers, log)
	reconciler, err := worker.NewCapacityReconciler(bgClassService, cfg.ReconcileCron, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid RECONCILE_CRON")
	}

	workers.Add(2)
	go func() {
		defer workers.Done()
		bulkWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		reconciler.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenService, handlers, registry, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers. A job already popped runs to its
	// terminal state; queued jobs stay in Redis for the next start.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
