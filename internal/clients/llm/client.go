package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client for the summary-generation microservice
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// ServiceResponse is the standard response format
type ServiceResponse struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}

// ServiceError is a failure reported by the summary service
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("summary service error (status %d): %s", e.StatusCode, e.Message)
}

// Transient marks overload and server-side failures as retryable
func (e *ServiceError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// SummarizeRequest carries the transcript text plus call context
type SummarizeRequest struct {
	Text     string `json:"text"`
	Ticker   string `json:"ticker,omitempty"`
	Year     int    `json:"year,omitempty"`
	Quarter  int    `json:"quarter,omitempty"`
	MaxWords int    `json:"max_words,omitempty"`
}

type summarizeData struct {
	Summary string `json:"summary"`
}

// NewClient creates a new summary service client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second, // generation is slow
		},
		log: log.With().Str("client", "llm").Logger(),
	}
}

// Summarize generates a summary for one transcript
func (c *Client) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	resp, err := c.post(ctx, "/summarize", req)
	if err != nil {
		return "", err
	}

	var data summarizeData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", fmt.Errorf("failed to parse summary data: %w", err)
	}

	if data.Summary == "" {
		return "", fmt.Errorf("summary service returned an empty summary")
	}

	return data.Summary, nil
}

// post makes a POST request to the microservice
func (c *Client) post(ctx context.Context, endpoint string, request interface{}) (*ServiceResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse parses the service response
func (c *Client) parseResponse(resp *http.Response) (*ServiceResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result ServiceResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !result.Success {
		errMsg := "unknown error"
		if result.Error != nil {
			errMsg = *result.Error
		}
		return &result, fmt.Errorf("summary service rejected request: %s", errMsg)
	}

	return &result, nil
}
