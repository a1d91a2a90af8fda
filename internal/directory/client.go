package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client resolves biometric identifiers (service numbers) to student IDs
// against the institution's personnel directory. Lookups are bounded by a
// timeout; a slow directory surfaces as an error the reconciler treats as
// retryable, never as a fatal failure.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New constructs a directory client.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type resolveResponse struct {
	StudentID string `json:"student_id"`
}

// Resolve maps a service number to a student ID. Returns an error for
// unknown numbers, timeouts, and directory failures alike; callers decide
// whether to retry.
func (c *Client) Resolve(ctx context.Context, serviceNumber string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/students/by-service-number/%s", c.baseURL, url.PathEscape(serviceNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build directory request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("directory lookup %s: %w", serviceNumber, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("service number %s not found in directory", serviceNumber)
	default:
		return "", fmt.Errorf("directory lookup %s: unexpected status %d", serviceNumber, resp.StatusCode)
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode directory response: %w", err)
	}
	if body.StudentID == "" {
		return "", fmt.Errorf("directory returned empty student id for %s", serviceNumber)
	}
	return body.StudentID, nil
}
