package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// DefaultRetryStatusCodes are the statuses retried by the transport. 429 is
// deliberately absent: the CRM's quota windows span hours.
var DefaultRetryStatusCodes = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

type Client struct {
	httpClient *http.Client
	options    Options
	logger     *zap.Logger
}

// Options controls the transport timeout and retry policy.
type Options struct {
	Timeout          time.Duration
	MaxTries         uint
	MaxElapsed       time.Duration
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	RetryStatusCodes []int
}

type RequestOptions struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values
	Body    interface{}
	Context context.Context
}

type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	URL        string
}

// Reason returns the reason phrase of the status line, e.g. "Not Found".
func (r *Response) Reason() string {
	reason := strings.TrimSpace(strings.TrimPrefix(r.Status, strconv.Itoa(r.StatusCode)))
	if reason == "" {
		reason = http.StatusText(r.StatusCode)
	}
	return reason
}

// OK reports whether the status code is below 400.
func (r *Response) OK() bool {
	return r.StatusCode < 400
}

// DefaultOptions mirrors the policy the CRM documentation recommends for
// transient failures.
func DefaultOptions() Options {
	return Options{
		Timeout:          30 * time.Second,
		MaxTries:         10,
		MaxElapsed:       5 * time.Minute,
		InitialInterval:  100 * time.Millisecond,
		MaxInterval:      30 * time.Second,
		RetryStatusCodes: DefaultRetryStatusCodes,
	}
}

func NewClient() *Client {
	logger, _ := zap.NewProduction()
	return NewClientWithOptions(DefaultOptions(), logger)
}

// NewClientWithLogger creates a new HTTP client with a custom logger
func NewClientWithLogger(logger *zap.Logger) *Client {
	return NewClientWithOptions(DefaultOptions(), logger)
}

// NewClientWithOptions creates a new HTTP client with a custom retry policy.
// Zero fields fall back to DefaultOptions.
func NewClientWithOptions(opts Options, logger *zap.Logger) *Client {
	defaults := DefaultOptions()
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = defaults.MaxTries
	}
	if opts.MaxElapsed == 0 {
		opts.MaxElapsed = defaults.MaxElapsed
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = defaults.InitialInterval
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = defaults.MaxInterval
	}
	if opts.RetryStatusCodes == nil {
		opts.RetryStatusCodes = defaults.RetryStatusCodes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		options: opts,
		logger:  logger,
	}
}

// retryableStatusError keeps the last response so it can be handed back to
// the caller once retries are exhausted.
type retryableStatusError struct {
	resp *Response
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable status: %d", e.resp.StatusCode)
}

// Do sends the request, retrying connection failures and retryable statuses
// with exponential backoff. Any other status is returned without error; it is
// up to the caller to interpret it.
func (c *Client) Do(opts RequestOptions) (*Response, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.options.InitialInterval
	expBackoff.MaxInterval = c.options.MaxInterval
	expBackoff.Reset()

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	operation := func() (*Response, error) {
		req, err := c.buildRequest(ctx, opts)
		if err != nil {
			c.logger.Error("Failed to build request", zap.Error(err), zap.String("method", opts.Method), zap.String("url", opts.URL))
			return nil, backoff.Permanent(err)
		}

		c.logger.Debug("Making HTTP request",
			zap.String("method", opts.Method),
			zap.String("url", opts.URL))

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			// Network errors are retryable
			c.logger.Warn("HTTP request failed, will retry",
				zap.Error(err),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL))
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			c.logger.Error("Failed to read response body", zap.Error(err))
			return nil, backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}

		resp := &Response{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Headers:    httpResp.Header,
			Body:       body,
			URL:        req.URL.String(),
		}

		if slices.Contains(c.options.RetryStatusCodes, httpResp.StatusCode) {
			c.logger.Warn("Retryable status, will retry",
				zap.Int("status_code", httpResp.StatusCode),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL))
			return nil, &retryableStatusError{resp: resp}
		}

		c.logger.Debug("HTTP request completed",
			zap.Int("status_code", httpResp.StatusCode),
			zap.String("method", opts.Method),
			zap.String("url", opts.URL))

		return resp, nil
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.options.MaxTries),
		backoff.WithMaxElapsedTime(c.options.MaxElapsed),
	}

	resp, err := backoff.Retry(ctx, operation, retryOpts...)
	if err != nil {
		var statusErr *retryableStatusError
		if errors.As(err, &statusErr) {
			c.logger.Warn("Retries exhausted, returning last response",
				zap.Int("status_code", statusErr.resp.StatusCode),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL))
			return statusErr.resp, nil
		}
		c.logger.Error("HTTP request failed after retries",
			zap.Error(err),
			zap.String("method", opts.Method),
			zap.String("url", opts.URL))
		return nil, err
	}

	return resp, nil
}

func (c *Client) buildRequest(ctx context.Context, opts RequestOptions) (*http.Request, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if len(opts.Query) > 0 {
		q := u.Query()
		for key, values := range opts.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		if bodyBytes, ok := opts.Body.([]byte); ok {
			bodyReader = bytes.NewReader(bodyBytes)
		} else {
			bodyJSON, err := json.Marshal(opts.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(bodyJSON)
		}
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set default headers
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Set custom headers
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}
