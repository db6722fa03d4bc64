package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}

// StatusError is a non-2xx response that survived retries.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// GetWithRetry fetches url, retrying transport errors, 429 and 5xx with
// exponential backoff. Other non-2xx statuses fail immediately. Returns
// the response body and status code.
func GetWithRetry(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	var body []byte
	var status int

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return err
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			return &StatusError{Status: status, Body: truncate(string(body), 200)}
		}
		if status < 200 || status >= 300 {
			return backoff.Permanent(&StatusError{Status: status, Body: truncate(string(body), 200)})
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxElapsedTime = 2 * time.Minute

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return body, status, err
	}
	return body, status, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
