package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/clients/transcriptapi"
	"github.com/callsift/callsift/internal/events"
	"github.com/callsift/callsift/internal/locking"
	"github.com/callsift/callsift/internal/modules/cache"
	"github.com/callsift/callsift/internal/modules/transcripts"
	"github.com/callsift/callsift/pkg/textstats"
)

// ReconcileJob repairs drift between the chunked cache and the relational
// transcript table. Cache keys without a relational row get one written
// from the cached payload. Best effort: consistency between the two
// stores is convergent, not transactional.
type ReconcileJob struct {
	log         zerolog.Logger
	lockManager *locking.Manager
	cache       *cache.Store
	repo        *transcripts.Repository
	events      *events.Manager
}

// ReconcileConfig holds configuration for the reconcile job
type ReconcileConfig struct {
	Log         zerolog.Logger
	LockManager *locking.Manager
	Cache       *cache.Store
	Repo        *transcripts.Repository
	Events      *events.Manager
}

// NewReconcileJob creates a new reconcile job
func NewReconcileJob(cfg ReconcileConfig) *ReconcileJob {
	return &ReconcileJob{
		log:         cfg.Log.With().Str("job", "reconcile").Logger(),
		lockManager: cfg.LockManager,
		cache:       cfg.Cache,
		repo:        cfg.Repo,
		events:      cfg.Events,
	}
}

// Name returns the job name
func (j *ReconcileJob) Name() string {
	return "reconcile"
}

// Run executes one reconciliation pass
func (j *ReconcileJob) Run() error {
	if err := j.lockManager.Acquire("reconcile"); err != nil {
		j.log.Warn().Err(err).Msg("Reconcile already running")
		return nil // skip this pass
	}
	defer j.lockManager.Release("reconcile")

	start := time.Now()
	repaired := 0
	skipped := 0

	for _, key := range j.cache.Keys() {
		rec, err := j.repo.GetByKey(key)
		if err != nil {
			return fmt.Errorf("failed to check record for %s: %w", key, err)
		}
		if rec != nil {
			continue
		}

		if err := j.repair(key); err != nil {
			j.log.Warn().Err(err).Str("key", key).Msg("Could not repair cache entry")
			skipped++
			continue
		}
		repaired++
	}

	j.log.Info().
		Int("repaired", repaired).
		Int("unrepairable", skipped).
		Dur("duration", time.Since(start)).
		Msg("Reconcile pass finished")

	if j.events != nil && repaired > 0 {
		j.events.Emit(events.ReconcileCompleted, "scheduler", map[string]interface{}{
			"repaired": repaired,
		})
	}

	return nil
}

// repair writes the missing relational row from the cached payload
func (j *ReconcileJob) repair(key string) error {
	ticker, year, quarter, err := transcripts.ParseKey(key)
	if err != nil {
		return err
	}

	payload, err := j.cache.Get(key)
	if err != nil {
		return err
	}

	var t transcriptapi.Transcript
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("corrupt payload: %w", err)
	}

	return j.repo.Upsert(transcripts.Record{
		CacheKey:    key,
		Ticker:      ticker,
		Year:        year,
		Quarter:     quarter,
		CompanyName: t.CompanyName,
		CallDate:    t.CallDate,
		WordCount:   textstats.WordCount(t.Text),
	})
}
