package transcripts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/modules/cache"
)

// Handlers serves the transcript browse/search endpoints
type Handlers struct {
	service *Service
	log     zerolog.Logger
}

// NewHandlers creates transcript handlers
func NewHandlers(service *Service, log zerolog.Logger) *Handlers {
	return &Handlers{
		service: service,
		log:     log.With().Str("component", "transcript_handlers").Logger(),
	}
}

// RegisterRoutes mounts the transcript routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleSearch)
	r.Get("/stats", h.handleStats)
	r.Get("/{ticker}/{year}/{quarter}", h.handleGet)
}

func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	records, err := h.service.Search(q.Get("ticker"), q.Get("q"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Transcript search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if records == nil {
		records = []Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": records,
		"count":   len(records),
	})
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute corpus stats")
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be a number")
		return
	}
	quarter, err := strconv.Atoi(chi.URLParam(r, "quarter"))
	if err != nil || quarter < 1 || quarter > 4 {
		writeError(w, http.StatusBadRequest, "quarter must be 1-4")
		return
	}

	rec, transcript, err := h.service.GetPayload(ticker, year, quarter)
	if errors.Is(err, cache.ErrMiss) {
		writeError(w, http.StatusNotFound, "transcript not cached")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to load transcript")
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"record":     rec,
		"transcript": transcript,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
