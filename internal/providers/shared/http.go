package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/parsers"
)

const (
	maxHTTPErrorBodySize = 256
	maxResponseBodySize  = 1 << 20
	DefaultHTTPTimeout   = 10 * time.Second
)

var (
	ErrUnauthorized = errors.New("credential rejected")
	ErrRateLimited  = errors.New("rate limited")
)

// RateLimitError carries how long the server asked us to wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter.Round(time.Second))
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewRequest builds a GET request with the given headers.
func NewRequest(ctx context.Context, url string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// DoJSON executes req and decodes a 200 response into out. 401 and 403 wrap
// ErrUnauthorized; 429 returns a *RateLimitError.
func DoJSON(client *http.Client, req *http.Request, out any) error {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		wait, _ := parsers.RetryAfter(resp.Header, time.Now())
		return &RateLimitError{RetryAfter: wait}
	default:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, TruncateForError(string(body), maxHTTPErrorBodySize))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
