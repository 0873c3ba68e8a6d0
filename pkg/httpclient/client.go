// Package httpclient is the outbound HTTP client used for the commerce and
// auth backends: bounded retries with exponential backoff behind a circuit
// breaker per upstream.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the upstream's breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Options tunes a client beyond the shared HTTP client config.
type Options struct {
	// Name labels the breaker in logs and metrics ("shopify_storefront").
	Name       string
	Logger     *logger.Logger
	Registerer prometheus.Registerer
	// Transport overrides the default pooled transport; tests pass the
	// httptest server's client transport here.
	Transport http.RoundTripper
}

type Client struct {
	name    string
	http    *http.Client
	cfg     config.HTTPClientConfig
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logg    *logger.Logger
}

func New(cfg config.HTTPClientConfig, opts Options) *Client {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	c := &Client{
		name: opts.Name,
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cfg:  cfg,
		logg: logg,
	}
	c.breaker = newBreaker(opts.Name, cfg, logg, breakerGauge(opts.Registerer))
	return c
}

// Do sends the request through the breaker. body is replayed on every
// attempt. 5xx responses count as breaker failures and come back as a
// *StatusError; 4xx responses are returned to the caller untouched.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.doWithRetry(ctx, method, url, header, body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, newStatusError(c.name, resp)
		}
		return resp, nil
	})
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	}
	return resp, err
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) doWithRetry(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := newRequest(ctx, method, url, header, body)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if isRetryable(ctx, err) && attempt < c.cfg.MaxRetries {
				continue
			}
			return nil, fmt.Errorf("%s request failed after %d attempts: %w", c.name, attempt+1, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError &&
			resp.StatusCode != http.StatusNotImplemented &&
			attempt < c.cfg.MaxRetries {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func newRequest(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// backoff doubles RetryWaitMin per attempt, capped at RetryWaitMax, with
// full jitter above RetryWaitMin.
func (c *Client) backoff(attempt int) time.Duration {
	if c.cfg.RetryWaitMin <= 0 {
		return 0
	}
	b := backoff.Backoff{Min: c.cfg.RetryWaitMin, Max: c.cfg.RetryWaitMax, Factor: 2, Jitter: true}
	if b.Max <= 0 {
		b.Max = b.Min
	}
	return b.ForAttempt(float64(attempt - 1))
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
