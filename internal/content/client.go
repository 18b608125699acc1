// Package content lists and fetches chapters from a GitHub repository.
package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/listenupapp/listenup-reader/internal/errors"
	"github.com/listenupapp/listenup-reader/internal/ratelimit"
)

const (
	// Rate limit: per upstream host.
	defaultRPS   = 5.0
	defaultBurst = 10

	defaultTimeout = 30 * time.Second

	// Limiter keys.
	hostAPI = "api"
	hostRaw = "raw"

	userAgent = "ListenUp-Reader/1.0"
)

// Config controls where the client talks to and how fast.
type Config struct {
	APIHost           string
	RawHost           string
	Extension         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the public GitHub endpoints.
func DefaultConfig() Config {
	return Config{
		APIHost:           "https://api.github.com",
		RawHost:           "https://raw.githubusercontent.com",
		Extension:         ".md",
		Timeout:           defaultTimeout,
		RequestsPerSecond: defaultRPS,
		Burst:             defaultBurst,
	}
}

// Client is a rate-limited GitHub content client.
// Identical concurrent requests share a single upstream round trip.
type Client struct {
	http    *http.Client
	cfg     Config
	limiter *ratelimit.KeyedRateLimiter
	group   singleflight.Group
	logger  *slog.Logger
}

// New creates a new content client. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.APIHost == "" {
		cfg.APIHost = def.APIHost
	}
	if cfg.RawHost == "" {
		cfg.RawHost = def.RawHost
	}
	if cfg.Extension == "" {
		cfg.Extension = def.Extension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	cfg.APIHost = strings.TrimRight(cfg.APIHost, "/")
	cfg.RawHost = strings.TrimRight(cfg.RawHost, "/")

	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:     cfg,
		limiter: ratelimit.New(cfg.RequestsPerSecond, cfg.Burst),
		logger:  logger,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// get performs a coalesced, rate-limited GET and maps failures onto fetch errors.
// Concurrent callers with the same key share one request. The shared request is
// detached from the first caller's cancellation and bounded by the client timeout;
// each caller still stops waiting when its own ctx ends.
func (c *Client) get(ctx context.Context, host, key, rawURL string, header http.Header) ([]byte, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.doRequest(shared, host, rawURL, header)
	})

	select {
	case <-ctx.Done():
		return nil, errors.Fetch(errors.FetchNetwork, "request canceled").WithCause(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// doRequest executes an HTTP request with rate limiting.
func (c *Client) doRequest(ctx context.Context, host, rawURL string, header http.Header) ([]byte, error) {
	// Wait for rate limit
	if err := c.limiter.Wait(ctx, host); err != nil {
		return nil, errors.Fetch(errors.FetchNetwork, "rate limit wait").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Fetch(errors.FetchUpstream, "create request").WithCause(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("content request", "host", host, "url", redact(rawURL))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("content request failed", "host", host, "error", err)
		return nil, errors.Fetch(errors.FetchNetwork, "execute request").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("content response read failed", "host", host, "error", err)
		return nil, errors.Fetch(errors.FetchNetwork, "read response").WithCause(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	fetchErr := statusError(resp.StatusCode)
	c.logger.Warn("content request rejected",
		"host", host,
		"status", resp.StatusCode,
		"kind", fetchErr.Kind(),
	)
	return nil, fetchErr
}

// statusError maps a non-2xx status onto a fetch error kind.
func statusError(status int) *errors.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Fetchf(errors.FetchAuth, "content source denied access (status %d)", status)
	case http.StatusNotFound:
		return errors.Fetch(errors.FetchNotFound, "content not found")
	default:
		return errors.Fetchf(errors.FetchUpstream, "unexpected status %d", status)
	}
}

// redact strips the query string, which may carry a ref but never credentials,
// to keep log lines short.
func redact(rawURL string) string {
	before, _, _ := strings.Cut(rawURL, "?")
	return before
}

// authHeader builds the headers GitHub expects for authenticated calls.
func authHeader(token, accept string) http.Header {
	h := http.Header{}
	h.Set("Authorization", fmt.Sprintf("token %s", token))
	if accept != "" {
		h.Set("Accept", accept)
	}
	return h
}
