package transcripts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is the relational row describing one cached transcript.
// The full payload lives in the chunked cache under CacheKey; this row
// carries searchable metadata and the generated summary.
type Record struct {
	CacheKey     string     `json:"cacheKey"`
	Ticker       string     `json:"ticker"`
	Year         int        `json:"year"`
	Quarter      int        `json:"quarter"`
	CompanyName  string     `json:"companyName,omitempty"`
	CallDate     string     `json:"callDate,omitempty"`
	WordCount    int        `json:"wordCount"`
	HasSummary   bool       `json:"hasSummary"`
	Summary      string     `json:"summary,omitempty"`
	SummarizedAt *time.Time `json:"summarizedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Key derives the deterministic cache key for one ticker/quarter
func Key(ticker string, year, quarter int) string {
	return fmt.Sprintf("%s_%d_Q%d", strings.ToUpper(strings.TrimSpace(ticker)), year, quarter)
}

// ParseKey is the inverse of Key
func ParseKey(key string) (ticker string, year, quarter int, err error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 || parts[0] == "" || !strings.HasPrefix(parts[2], "Q") {
		return "", 0, 0, fmt.Errorf("malformed cache key %q", key)
	}

	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed cache key %q: %w", key, err)
	}

	quarter, err = strconv.Atoi(strings.TrimPrefix(parts[2], "Q"))
	if err != nil || quarter < 1 || quarter > 4 {
		return "", 0, 0, fmt.Errorf("malformed cache key %q", key)
	}

	return parts[0], year, quarter, nil
}
