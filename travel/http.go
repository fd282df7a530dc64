package travel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	defaultAttempts    = 3
	retryBaseDelay     = 200 * time.Millisecond
)

// defaultHTTPClient returns the shared client shape used by both connectors.
// Upstream calls are plain blocking GETs, so a hard timeout is the only
// resource control needed.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// fetchJSON issues a GET and returns the raw response body. Transport level
// failures are retried with bounded attempts; response bodies are returned
// as-is regardless of HTTP status because both providers report their own
// error details in the JSON payload.
func fetchJSON(ctx context.Context, client *http.Client, attempts uint, rawURL string) ([]byte, error) {
	if client == nil {
		client = defaultHTTPClient()
	}
	if attempts == 0 {
		attempts = defaultAttempts
	}

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(retryBaseDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return body, nil
}
