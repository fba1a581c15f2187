package transcriptapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound means the source has no transcript for this ticker/quarter.
// Distinct from transient failures: callers must not retry it.
var ErrNotFound = errors.New("transcript not available")

// RateLimitError is returned on HTTP 429
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by transcript source (retry after %s)", e.RetryAfter)
}

// Transient marks the error as retryable
func (e *RateLimitError) Transient() bool { return true }

// ServerError is returned on 5xx responses
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("transcript source returned status %d", e.StatusCode)
}

// Transient marks the error as retryable
func (e *ServerError) Transient() bool { return true }

// Client is a transcript source API client
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new transcript source client
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "transcriptapi").Logger(),
	}
}

// Fetch retrieves the earnings-call transcript for one ticker/quarter.
// Returns ErrNotFound when the source has no data for the key.
func (c *Client) Fetch(ctx context.Context, ticker string, year, quarter int) (*Transcript, error) {
	params := url.Values{}
	params.Add("ticker", ticker)
	params.Add("year", strconv.Itoa(year))
	params.Add("quarter", strconv.Itoa(quarter))

	reqURL := c.baseURL + "/transcripts?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "callsift/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return nil, &ServerError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("transcript source returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if t.Text == "" {
		// Some feeds respond 200 with an empty record instead of 404
		return nil, ErrNotFound
	}

	// Backfill identity fields the feed omits
	if t.Ticker == "" {
		t.Ticker = ticker
	}
	if t.Year == 0 {
		t.Year = year
	}
	if t.Quarter == 0 {
		t.Quarter = quarter
	}

	c.log.Debug().
		Str("ticker", ticker).
		Int("year", year).
		Int("quarter", quarter).
		Int("chars", len(t.Text)).
		Msg("Transcript fetched")

	return &t, nil
}

// retryAfter parses the Retry-After header, defaulting to 5s
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 5 * time.Second
}
