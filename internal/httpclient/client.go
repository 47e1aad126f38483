// Package httpclient is the outbound HTTP layer: JSON requests with retries on
// network failures and 5xx responses, behind a circuit breaker.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/retry"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      retry.Policy
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *zap.Logger
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		policy:  opts.Retry,
		logger:  logger,
	}
	c.policy.Retryable = isRetryable
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = func(attempt int, err error) {
			c.logger.Info("retrying request", zap.Int("attempt", attempt), zap.Int("budget", c.policy.Attempts), zap.Error(err))
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "httpclient:" + c.baseURL,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		// 4xx responses mean the server is healthy
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

// GetJSON fetches path and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.Do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Do sends a body-less request and returns the response body. Only GET and
// HEAD are retried.
func (c *Client) Do(ctx context.Context, method, path string) ([]byte, error) {
	var body []byte
	send := func(ctx context.Context) error {
		var err error
		body, err = c.send(ctx, method, path)
		return err
	}

	var err error
	if method == http.MethodGet || method == http.MethodHead {
		err = c.policy.Do(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		return nil, classify(err)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, &permanentError{err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			return nil, &statusError{status: resp.StatusCode, body: string(data)}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return true
}

func classify(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		var msg serverMessage
		_ = json.Unmarshal([]byte(se.body), &msg)
		return newStatusError(se.status, msg.Message, err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return newStatusError(http.StatusServiceUnavailable, "", err)
	}
	return newNetworkError(err)
}
