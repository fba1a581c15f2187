package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/clients/llm"
	"github.com/callsift/callsift/internal/clients/transcriptapi"
	"github.com/callsift/callsift/internal/config"
	"github.com/callsift/callsift/internal/database"
	"github.com/callsift/callsift/internal/events"
	"github.com/callsift/callsift/internal/locking"
	"github.com/callsift/callsift/internal/modules/cache"
	"github.com/callsift/callsift/internal/modules/jobs"
	"github.com/callsift/callsift/internal/modules/transcripts"
	"github.com/callsift/callsift/internal/scheduler"
	"github.com/callsift/callsift/internal/server"
	"github.com/callsift/callsift/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet, write directly
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting CallSift")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Open the chunked transcript cache
	cacheStore, err := cache.Open(cfg.CacheDir, cfg.ChunkCapacity, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transcript cache")
	}

	// Shared infrastructure
	eventManager := events.NewManager(log)
	lockManager := locking.NewManager(log)

	// Remote clients
	apiClient := transcriptapi.NewClient(cfg.TranscriptAPIURL, cfg.TranscriptAPIKey, log)
	llmClient := llm.NewClient(cfg.LLMServiceURL, log)

	// Transcript catalog
	transcriptRepo := transcripts.NewRepository(db.Conn(), log)
	transcriptService := transcripts.NewService(transcriptRepo, cacheStore, log)

	// Bulk job engine
	jobStore := jobs.NewStore(db.Conn(), log)
	runner := jobs.NewRunner(jobs.RunnerConfig{
		Store:       jobStore,
		Cache:       cacheStore,
		Fetcher:     apiClient,
		Summarizer:  llmClient,
		Catalog:     transcriptService,
		Events:      eventManager,
		Log:         log,
		Concurrency: cfg.JobConcurrency,
		MaxAttempts: cfg.MaxAttempts,
		ItemTimeout: time.Duration(cfg.ItemTimeoutSecs) * time.Second,
		Lookback:    cfg.QuarterLookback,
	})
	jobManager := jobs.NewManager(jobStore, runner, eventManager, log)

	// Pick up jobs left running by an earlier process
	if err := jobManager.ResumeInterrupted(); err != nil {
		log.Error().Err(err).Msg("Failed to resume interrupted jobs")
	}

	// Initialize scheduler
	sched := scheduler.New(log)
	if err := registerJobs(sched, log, lockManager, db, cacheStore, transcriptRepo, jobStore, eventManager); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Log:        log,
		DB:         db,
		Cache:      cacheStore,
		JobStore:   jobStore,
		JobManager: jobManager,
		Reporter:   jobs.NewReporter(),
		Service:    transcriptService,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Running jobs are interrupted, not cancelled: they stay in running
	// state and are resumed on the next start.
	if err := jobManager.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Job manager forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	log zerolog.Logger,
	lockManager *locking.Manager,
	db *database.DB,
	cacheStore *cache.Store,
	repo *transcripts.Repository,
	jobStore *jobs.Store,
	eventManager *events.Manager,
) error {
	reconcile := scheduler.NewReconcileJob(scheduler.ReconcileConfig{
		Log:         log,
		LockManager: lockManager,
		Cache:       cacheStore,
		Repo:        repo,
		Events:      eventManager,
	})
	if err := sched.AddJob("@hourly", reconcile); err != nil {
		return err
	}

	healthCheck := scheduler.NewHealthCheckJob(scheduler.HealthCheckConfig{
		Log:         log,
		LockManager: lockManager,
		DB:          db,
		Cache:       cacheStore,
		JobStore:    jobStore,
	})
	return sched.AddJob("@every 6h", healthCheck)
}
