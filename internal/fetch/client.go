// Package fetch is the outbound HTTP client every provider adapter goes
// through: per-attempt timeout, bounded retry with backoff, Retry-After
// handling, per-provider pacing and a circuit breaker.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"gamehub/internal/metrics"
	"gamehub/pkg/logger"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxRetryAfter  = 2 * time.Minute

	maxBodyBytes = 16 << 20
)

type Options struct {
	Name           string
	Timeout        time.Duration // per attempt
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxRetryAfter  time.Duration // caps a server supplied Retry-After
	MinInterval    time.Duration // pacing between attempts; 0 disables
	BreakerTimeout time.Duration // open -> half-open; default 30s
	HTTPClient     *http.Client
	Logger         *logger.Logger
}

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Client struct {
	name    string
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*Response]
	log     *logger.Logger
}

func New(opts Options) *Client {
	if opts.Name == "" {
		opts.Name = "http"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxRetryAfter <= 0 {
		opts.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	c := &Client{
		name:    opts.Name,
		opts:    opts,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With("provider", opts.Name),
	}

	metrics.CircuitBreakerState.WithLabelValues(opts.Name).Set(0)
	c.cb = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		// at least 10 requests, 60% of them failed
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return c
}

func (c *Client) Name() string { return c.name }

// Do sends req, retrying 429 and 5xx responses and transport failures up to
// MaxAttempts times. Other 4xx responses are returned immediately as
// *HTTPError. The last error is returned once attempts run out.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.cb.Execute(func() (*Response, error) {
			return c.attempt(ctx, req)
		})
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(c.name, "ok").Inc()
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ProviderRequests.WithLabelValues(c.name, "rejected").Inc()
			return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
		}
		metrics.ProviderRequests.WithLabelValues(c.name, outcome(err)).Inc()
		lastErr = err

		delay, retry := c.retryDelay(err, attempt)
		if !retry || attempt == c.opts.MaxAttempts-1 {
			break
		}

		metrics.ProviderRetries.WithLabelValues(c.name, strconv.Itoa(StatusCode(err))).Inc()
		c.log.Debug("retrying request", "attempt", attempt+1, "delay", delay, "err", err)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	start := time.Now()
	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, c.transportErr(ctx, actx, err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodyBytes))
	metrics.ProviderDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, c.transportErr(ctx, actx, err)
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: hresp.StatusCode, Header: hresp.Header, Body: string(data)}
	}
	return &Response{StatusCode: hresp.StatusCode, Header: hresp.Header, Body: data}, nil
}

func (c *Client) transportErr(parent, actx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.opts.Timeout)
	}
	return &NetworkError{Err: err}
}

// retryDelay decides whether err is retried and how long to wait first.
func (c *Client) retryDelay(err error, attempt int) (time.Duration, bool) {
	backoff := c.opts.InitialBackoff << attempt

	var he *HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == http.StatusTooManyRequests:
			if d, ok := parseRetryAfter(he.Header.Get("Retry-After"), time.Now()); ok {
				return min(d, c.opts.MaxRetryAfter), true
			}
			return backoff, true
		case he.StatusCode >= 500:
			return backoff, true
		default:
			return 0, false
		}
	}

	var ne *NetworkError
	if errors.As(err, &ne) {
		return backoff, true
	}
	return 0, false
}

// GetJSON fetches url and decodes a JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, URL: url, Header: header}, out)
}

// PostJSON posts body as-is and decodes a JSON response into out.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, body []byte, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, URL: url, Header: header, Body: body}, out)
}

func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP-date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(now), 0), true
	}
	return 0, false
}

// breakerSuccess keeps misses and caller cancellation out of the failure
// ratio. A 429 counts against the provider.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	code := StatusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcome(err error) string {
	var ne *NetworkError
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &ne):
		return "network_error"
	case StatusCode(err) != 0:
		return "http_error"
	default:
		return "error"
	}
}

func stateValue(s gobreaker.State) float64 {
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
