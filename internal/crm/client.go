// Package crm is a HubSpot-compatible Target Client. Every remote call goes through the
// same pipeline: token bucket, circuit breaker, retry with backoff, then a fixed pause.
package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Guizzs26/go-crm-sync/pkg/infra"
	"github.com/Guizzs26/go-crm-sync/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.hubapi.com"

	retryMinDelay = 250 * time.Millisecond
	retryMaxDelay = 10 * time.Second
)

var (
	ErrNotFound     = errors.New("crm: not found")
	ErrMissingToken = errors.New("crm: HUBSPOT_PRIVATE_APP_TOKEN is not set")
)

// APIError is a non-2xx answer from the CRM
type APIError struct {
	Status   int    `json:"-"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("crm: %d %s: %s", e.Status, e.Category, e.Message)
	}
	return fmt.Sprintf("crm: %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Options struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Delay is paused after every remote call, successful or not
	Delay time.Duration
	// MaxRequestsPerSec caps the request rate; 0 disables the limiter
	MaxRequestsPerSec float64
	MaxRetries        int
	// BreakerThreshold is the number of consecutive failures that opens the breaker
	BreakerThreshold uint32
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	delay      time.Duration
	limiter    *rate.Limiter
	maxRetries int
	breaker    *gobreaker.CircuitBreaker[*response]
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, ErrMissingToken
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := opts.BreakerThreshold
	if threshold == 0 {
		threshold = 10
	}

	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger.With("component", "crm"),
		delay:      max(opts.Delay, 0),
		maxRetries: max(opts.MaxRetries, 0),
	}
	if opts.MaxRequestsPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSec), 1)
	}

	metrics.BreakerState.Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "crm-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors (404 included) say nothing about the health of the remote
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && !apiErr.retryable()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.Set(breakerStateValue(to))
		},
	})

	return c, nil
}

// do sends one logical request and decodes a JSON answer into out (when non-nil).
// Transport errors, 429 and 5xx are retried up to maxRetries times; Retry-After wins over
// the computed backoff when present.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
	}

	backoff := infra.NewBackoff(retryMinDelay, retryMaxDelay, 2)
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, op, method, path, payload)
		if err == nil {
			if out != nil && len(resp.body) > 0 {
				if err := json.Unmarshal(resp.body, out); err != nil {
					return fmt.Errorf("failed to decode %s response: %w", op, err)
				}
			}
			return nil
		}

		if attempt >= c.maxRetries || !shouldRetry(ctx, err) {
			return err
		}

		var hint time.Duration
		if resp != nil {
			hint = parseRetryAfter(resp.header.Get("Retry-After"))
		}
		wait := backoff.NextAfter(hint)
		c.logger.Warn("Retrying CRM request", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, op, method, path string, payload []byte) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	// The pause applies whatever the outcome
	defer func() { _ = sleepContext(ctx, c.delay) }()

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(ctx, method, path, payload)
	})
	metrics.CRMRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.status)
	}
	metrics.CRMRequests.WithLabelValues(op, status).Inc()

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("crm %s rejected: %w", op, err)
		}
		return resp, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &response{status: httpResp.StatusCode, header: httpResp.Header, body: body}
	if httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299 {
		return resp, nil
	}

	apiErr := &APIError{Status: httpResp.StatusCode}
	if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(httpResp.StatusCode)
		}
	}
	return resp, apiErr
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	// transport failure
	return true
}

// parseRetryAfter understands the delay-seconds form only
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
