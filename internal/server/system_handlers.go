package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/database"
	"github.com/callsift/callsift/internal/modules/cache"
	"github.com/callsift/callsift/internal/modules/jobs"
)

// SystemHandlers serves system status endpoints
type SystemHandlers struct {
	log     zerolog.Logger
	db      *database.DB
	cache   *cache.Store
	store   *jobs.Store
	manager *jobs.Manager
	started time.Time
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(log zerolog.Logger, db *database.DB, c *cache.Store, store *jobs.Store, manager *jobs.Manager) *SystemHandlers {
	return &SystemHandlers{
		log:     log.With().Str("component", "system_handlers").Logger(),
		db:      db,
		cache:   c,
		store:   store,
		manager: manager,
		started: time.Now(),
	}
}

// handleStatus returns system status
func (h *SystemHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobCounts := make(map[string]int)
	for _, status := range []jobs.Status{
		jobs.StatusPending, jobs.StatusRunning, jobs.StatusPaused,
		jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled,
	} {
		list, err := h.store.List(jobs.Filter{Status: status})
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to list jobs for status")
			http.Error(w, "failed to gather job counts", http.StatusInternalServerError)
			return
		}
		jobCounts[string(status)] = len(list)
	}

	var dbSize int64
	if info, err := os.Stat(h.db.Path()); err == nil {
		dbSize = info.Size()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"active_jobs":    h.manager.ActiveCount(),
		"job_counts":     jobCounts,
		"cache": map[string]interface{}{
			"entries": h.cache.Len(),
			"chunks":  h.cache.Chunks(),
		},
		"database": map[string]interface{}{
			"path":       h.db.Path(),
			"size_bytes": dbSize,
		},
	})
}
