package jobs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers serves the bulk job API
type Handlers struct {
	manager  *Manager
	store    *Store
	reporter *Reporter
	log      zerolog.Logger
}

// NewHandlers creates job handlers
func NewHandlers(manager *Manager, store *Store, reporter *Reporter, log zerolog.Logger) *Handlers {
	return &Handlers{
		manager:  manager,
		store:    store,
		reporter: reporter,
		log:      log.With().Str("component", "job_handlers").Logger(),
	}
}

// RegisterRoutes mounts the job routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleSubmit)
	r.Get("/", h.handleList)
	r.Get("/{jobID}", h.handleGet)
	r.Get("/{jobID}/progress", h.handleProgress)
	r.Post("/{jobID}/pause", h.handleControl("pause"))
	r.Post("/{jobID}/resume", h.handleControl("resume"))
	r.Post("/{jobID}/cancel", h.handleControl("cancel"))
}

// submitRequest is the job submission payload
type submitRequest struct {
	Type         Type         `json:"type,omitempty"`
	Tickers      []string     `json:"tickers"`
	Quarters     []QuarterRef `json:"quarters,omitempty"`
	QuarterCount int          `json:"quarterCount,omitempty"`
	ForceRefresh bool         `json:"forceRefresh,omitempty"`
}

func (h *Handlers) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	targets := Targets{
		Tickers:      req.Tickers,
		Quarters:     req.Quarters,
		QuarterCount: req.QuarterCount,
	}

	job, err := h.manager.Submit(req.Type, targets, Options{ForceRefresh: req.ForceRefresh})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.log.Error().Err(err).Msg("Job submission failed")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Status: Status(q.Get("status")),
		Type:   Type(q.Get("type")),
		Limit:  100,
	}

	jobs, err := h.store.List(filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Job list failed")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	if jobs == nil {
		jobs = []*Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.Get(chi.URLParam(r, "jobID"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Job lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) handleProgress(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.Get(chi.URLParam(r, "jobID"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Job lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, h.reporter.Report(job))
}

func (h *Handlers) handleControl(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")

		job, err := h.manager.Control(id, action)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		var iterr *InvalidTransitionError
		if errors.As(err, &iterr) {
			writeError(w, http.StatusConflict, iterr.Error())
			return
		}
		if err != nil {
			h.log.Error().Err(err).Str("action", action).Msg("Job control failed")
			writeError(w, http.StatusInternalServerError, "control action failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":     true,
			"status": job.Status,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
