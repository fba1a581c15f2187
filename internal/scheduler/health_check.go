package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/database"
	"github.com/callsift/callsift/internal/locking"
	"github.com/callsift/callsift/internal/modules/cache"
	"github.com/callsift/callsift/internal/modules/jobs"
)

// staleRunningAfter flags jobs that claim to be running but have not
// snapshotted progress for a long time
const staleRunningAfter = 30 * time.Minute

// HealthCheckJob verifies database and cache integrity
type HealthCheckJob struct {
	log         zerolog.Logger
	lockManager *locking.Manager
	db          *database.DB
	cache       *cache.Store
	jobStore    *jobs.Store
}

// HealthCheckConfig holds configuration for the health check job
type HealthCheckConfig struct {
	Log         zerolog.Logger
	LockManager *locking.Manager
	DB          *database.DB
	Cache       *cache.Store
	JobStore    *jobs.Store
}

// NewHealthCheckJob creates a new health check job
func NewHealthCheckJob(cfg HealthCheckConfig) *HealthCheckJob {
	return &HealthCheckJob{
		log:         cfg.Log.With().Str("job", "health_check").Logger(),
		lockManager: cfg.LockManager,
		db:          cfg.DB,
		cache:       cfg.Cache,
		jobStore:    cfg.JobStore,
	}
}

// Name returns the job name
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run executes the health check
func (j *HealthCheckJob) Run() error {
	if err := j.lockManager.Acquire("health_check"); err != nil {
		j.log.Warn().Err(err).Msg("Health check already running")
		return nil
	}
	defer j.lockManager.Release("health_check")

	start := time.Now()

	if err := j.checkDatabase(); err != nil {
		j.log.Error().Err(err).Msg("Database integrity check failed")
		return err
	}

	if err := j.cache.Verify(); err != nil {
		j.log.Error().Err(err).Msg("Cache chunk verification failed")
		return err
	}

	j.reportStaleJobs()

	j.log.Info().Dur("duration", time.Since(start)).Msg("Health check passed")
	return nil
}

func (j *HealthCheckJob) checkDatabase() error {
	var result string
	if err := j.db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check reported: %s", result)
	}
	return nil
}

// reportStaleJobs surfaces running jobs whose snapshots stopped moving.
// The manager resumes interrupted jobs at startup, so a stale runner here
// points at a wedged remote call or a crashed goroutine.
func (j *HealthCheckJob) reportStaleJobs() {
	running, err := j.jobStore.List(jobs.Filter{Status: jobs.StatusRunning})
	if err != nil {
		j.log.Warn().Err(err).Msg("Could not list running jobs")
		return
	}

	for _, job := range running {
		last := job.Progress.UpdatedAt
		if last.IsZero() {
			last = job.CreatedAt
		}
		if time.Since(last) > staleRunningAfter {
			j.log.Warn().
				Str("job", job.ID).
				Time("last_progress", last).
				Msg("Running job has stale progress")
		}
	}
}
