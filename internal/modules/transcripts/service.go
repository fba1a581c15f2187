package transcripts

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/clients/transcriptapi"
	"github.com/callsift/callsift/internal/modules/cache"
	"github.com/callsift/callsift/pkg/textstats"
)

// Service exposes search/browse over cached transcripts and keeps the
// relational metadata in step with the chunked cache
type Service struct {
	repo  *Repository
	cache *cache.Store
	log   zerolog.Logger
}

// NewService creates a new transcript service
func NewService(repo *Repository, cacheStore *cache.Store, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cacheStore,
		log:   log.With().Str("service", "transcripts").Logger(),
	}
}

// Repo returns the underlying repository
func (s *Service) Repo() *Repository {
	return s.repo
}

// Search finds transcript records by ticker and/or keyword
func (s *Service) Search(ticker, keyword string, limit int) ([]Record, error) {
	return s.repo.Search(ticker, keyword, limit)
}

// GetPayload loads the full transcript payload for one ticker/quarter
// from the chunked cache, alongside its relational record
func (s *Service) GetPayload(ticker string, year, quarter int) (*Record, *transcriptapi.Transcript, error) {
	key := Key(ticker, year, quarter)

	rec, err := s.repo.GetByKey(key)
	if err != nil {
		return nil, nil, err
	}

	payload, err := s.cache.Get(key)
	if err != nil {
		return rec, nil, err
	}

	var t transcriptapi.Transcript
	if err := json.Unmarshal(payload, &t); err != nil {
		return rec, nil, fmt.Errorf("failed to decode cached transcript %s: %w", key, err)
	}

	return rec, &t, nil
}

// RecordFetched writes the relational row for a freshly cached transcript
func (s *Service) RecordFetched(t *transcriptapi.Transcript) error {
	rec := Record{
		CacheKey:    Key(t.Ticker, t.Year, t.Quarter),
		Ticker:      t.Ticker,
		Year:        t.Year,
		Quarter:     t.Quarter,
		CompanyName: t.CompanyName,
		CallDate:    t.CallDate,
		WordCount:   textstats.WordCount(t.Text),
	}
	return s.repo.Upsert(rec)
}

// ListUnsummarized returns cached transcripts still waiting on a summary
func (s *Service) ListUnsummarized(limit int) ([]Record, error) {
	return s.repo.ListUnsummarized(limit)
}

// SaveSummary persists a generated summary
func (s *Service) SaveSummary(cacheKey, summary string) error {
	return s.repo.SaveSummary(cacheKey, summary)
}

// Stats describes the state of the corpus
type Stats struct {
	Transcripts     int               `json:"transcripts"`
	CacheEntries    int               `json:"cacheEntries"`
	CacheChunks     int               `json:"cacheChunks"`
	Summarized      int               `json:"summarized"`
	SummaryCoverage float64           `json:"summaryCoveragePct"`
	WordCounts      textstats.Summary `json:"wordCounts"`
}

// Stats computes corpus statistics
func (s *Service) Stats() (*Stats, error) {
	total, err := s.repo.Count()
	if err != nil {
		return nil, err
	}

	summarized, err := s.repo.CountSummarized()
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.WordCounts()
	if err != nil {
		return nil, err
	}

	return &Stats{
		Transcripts:     total,
		CacheEntries:    s.cache.Len(),
		CacheChunks:     s.cache.Chunks(),
		Summarized:      summarized,
		SummaryCoverage: textstats.Coverage(summarized, total),
		WordCounts:      textstats.Summarize(counts),
	}, nil
}
