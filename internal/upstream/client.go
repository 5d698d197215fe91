package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/corpix/uarand"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var (
	// ErrStatus is returned for any non-200 response.
	ErrStatus = errors.New("unexpected upstream status")
	// ErrMalformed is returned when the body is not valid JSON.
	ErrMalformed = errors.New("malformed upstream response")
)

// StatusError carries the status code of a rejected request. It matches ErrStatus.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d from %s", ErrStatus, e.Code, e.URL)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	Retries     int
	RPS         float64

	// RetryInterval is the first backoff delay. Defaults to 500ms.
	RetryInterval time.Duration
	HTTPClient    *http.Client
}

// Client performs read-only GET requests against one upstream API.
type Client struct {
	baseURL    string
	token      string
	retries    int
	retryStart time.Duration
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  func() string
}

// New creates a client
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		token:      opts.BearerToken,
		retries:    opts.Retries,
		retryStart: opts.RetryInterval,
		timeout:    opts.Timeout,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  uarand.GetRandom,
	}
}

// Get fetches path with query and returns the raw body of a 200 response.
// Transport errors, 429 and 5xx are retried with jittered exponential backoff.
// The configured timeout bounds the whole call, retries included.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryStart
	b.MaxInterval = 10 * c.retryStart
	b.MaxElapsedTime = 0

	var body []byte
	op := func() error {
		data, err := c.do(ctx, u)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

// GetJSON is Get followed by a JSON validity check.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	data, err := c.Get(ctx, path, query)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrMalformed, path)
	}
	return gjson.ParseBytes(data), nil
}

func (c *Client) do(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, URL: u}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	return data, nil
}
