package transcripts

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles transcript metadata database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new transcript repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transcripts").Logger(),
	}
}

const recordColumns = `cache_key, ticker, year, quarter, company_name, call_date,
	word_count, has_summary, summary, summarized_at, created_at, updated_at`

// Upsert inserts or updates a record keyed by cache_key
func (r *Repository) Upsert(rec Record) error {
	now := time.Now().UTC()

	query := `INSERT INTO transcripts
		(cache_key, ticker, year, quarter, company_name, call_date, word_count,
		 has_summary, summary, summarized_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			company_name = excluded.company_name,
			call_date    = excluded.call_date,
			word_count   = excluded.word_count,
			updated_at   = excluded.updated_at`

	_, err := r.db.Exec(query,
		rec.CacheKey,
		strings.ToUpper(rec.Ticker),
		rec.Year,
		rec.Quarter,
		rec.CompanyName,
		rec.CallDate,
		rec.WordCount,
		boolToInt(rec.HasSummary),
		rec.Summary,
		formatNullableTime(rec.SummarizedAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transcript record: %w", err)
	}

	return nil
}

// GetByKey returns the record for a cache key, or nil when absent
func (r *Repository) GetByKey(cacheKey string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM transcripts WHERE cache_key = ?", recordColumns)

	rows, err := r.db.Query(query, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript by key: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	rec, err := scanRecord(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcript record: %w", err)
	}

	return &rec, nil
}

// Search returns records filtered by ticker and/or a keyword across
// company name and summary text, newest call first
func (r *Repository) Search(ticker, keyword string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var conds []string
	var args []interface{}

	if ticker != "" {
		conds = append(conds, "ticker = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(ticker)))
	}
	if keyword != "" {
		conds = append(conds, "(company_name LIKE ? OR summary LIKE ?)")
		pattern := "%" + keyword + "%"
		args = append(args, pattern, pattern)
	}

	query := fmt.Sprintf("SELECT %s FROM transcripts", recordColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY year DESC, quarter DESC, ticker ASC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search transcripts: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListUnsummarized returns records that have no generated summary yet,
// oldest call first so backfill proceeds chronologically
func (r *Repository) ListUnsummarized(limit int) ([]Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM transcripts
		WHERE has_summary = 0
		ORDER BY year ASC, quarter ASC, ticker ASC`, recordColumns)

	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsummarized transcripts: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// SaveSummary stores a generated summary and marks the record summarized
func (r *Repository) SaveSummary(cacheKey, summary string) error {
	now := formatTime(time.Now().UTC())

	res, err := r.db.Exec(`UPDATE transcripts
		SET summary = ?, has_summary = 1, summarized_at = ?, updated_at = ?
		WHERE cache_key = ?`,
		summary, now, now, cacheKey)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check summary update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no transcript record for key %q", cacheKey)
	}

	return nil
}

// Count returns the total number of records
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM transcripts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transcripts: %w", err)
	}
	return n, nil
}

// CountSummarized returns the number of records with a summary
func (r *Repository) CountSummarized() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM transcripts WHERE has_summary = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count summarized transcripts: %w", err)
	}
	return n, nil
}

// WordCounts returns the word count of every record, for corpus stats
func (r *Repository) WordCounts() ([]float64, error) {
	rows, err := r.db.Query("SELECT word_count FROM transcripts")
	if err != nil {
		return nil, fmt.Errorf("failed to query word counts: %w", err)
	}
	defer rows.Close()

	var counts []float64
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan word count: %w", err)
		}
		counts = append(counts, float64(n))
	}

	return counts, rows.Err()
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcript record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var hasSummary int
	var summarizedAt sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(
		&rec.CacheKey,
		&rec.Ticker,
		&rec.Year,
		&rec.Quarter,
		&rec.CompanyName,
		&rec.CallDate,
		&rec.WordCount,
		&hasSummary,
		&rec.Summary,
		&summarizedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return Record{}, err
	}

	rec.HasSummary = hasSummary != 0
	rec.SummarizedAt = parseNullableTime(summarizedAt)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)

	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
