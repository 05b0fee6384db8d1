// Package fetcher is the HTTP transport for the photo API: a tls-client
// session with retries and an optional response cache.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/metrics"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// DefaultUserAgent identifies photofeed to the remote API
const DefaultUserAgent = "photofeed/1.0 (+https://github.com/quantmind-br/photofeed)"

// MaxBodyBytes bounds a single API response
const MaxBodyBytes = 8 << 20

const (
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 24 * time.Hour
)

var _ domain.Fetcher = (*Client)(nil)

// Client talks to the photo API over a tls-client session
type Client struct {
	session tls_client.HttpClient
	agent   string
	retrier *Retrier
	cache   cachePolicy
	logger  *utils.Logger
}

// cachePolicy decides when Get may read or fill the response cache
type cachePolicy struct {
	store   domain.Cache
	enabled bool
	ttl     time.Duration
	accept  func(body []byte) bool
}

func (p cachePolicy) active() bool { return p.enabled && p.store != nil }

// ClientOptions configures NewClient
type ClientOptions struct {
	Timeout     time.Duration
	MaxRetries  int
	EnableCache bool
	CacheTTL    time.Duration
	Cache       domain.Cache
	// Cacheable decides whether a successful body may be stored. An API
	// that reports errors with status 200 must not have them cached.
	Cacheable func(body []byte) bool
	UserAgent string
	ProxyURL  string
	Logger    *utils.Logger
}

// DefaultClientOptions returns the settings used when config is silent
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:     defaultTimeout,
		MaxRetries:  3,
		EnableCache: true,
		CacheTTL:    defaultCacheTTL,
		UserAgent:   DefaultUserAgent,
	}
}

// NewClient builds a Client. Redirects are not followed: the REST endpoint
// never redirects, so one means the base URL is misconfigured.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	logger = logger.WithComponent("fetcher")
	accept := opts.Cacheable
	if accept == nil {
		accept = func([]byte) bool { return true }
	}

	sessionOpts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(opts.Timeout.Seconds())),
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithNotFollowRedirects(),
	}
	if opts.ProxyURL != "" {
		sessionOpts = append(sessionOpts, tls_client.WithProxyUrl(opts.ProxyURL))
	}
	session, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("create http session: %w", err)
	}

	return &Client{
		session: session,
		agent:   opts.UserAgent,
		retrier: NewRetrier(RetrierOptions{
			MaxRetries:      opts.MaxRetries,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
			Logger:          logger,
		}),
		cache: cachePolicy{
			store:   opts.Cache,
			enabled: opts.EnableCache,
			ttl:     opts.CacheTTL,
			accept:  accept,
		},
		logger: logger,
	}, nil
}

// Get answers from the cache when it holds url, otherwise fetches and
// stores the body if the cache accepts it
func (c *Client) Get(ctx context.Context, url string) (*domain.Response, error) {
	if c.cache.active() {
		if body, err := c.cache.store.Get(ctx, url); err == nil {
			metrics.IncAPIRequest(metrics.RequestCached)
			return cachedResponse(url, body), nil
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Debug().Err(err).Msg("Cache read failed")
		}
	}

	resp, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if c.cache.active() && c.cache.accept(resp.Body) {
		if err := c.cache.store.Set(ctx, url, resp.Body, c.cache.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}
	return resp, nil
}

// GetFresh always performs the request. Feed pages go through here since
// their whole point is freshness.
func (c *Client) GetFresh(ctx context.Context, url string) (*domain.Response, error) {
	return c.fetch(ctx, url)
}

func (c *Client) fetch(ctx context.Context, url string) (*domain.Response, error) {
	resp, err := Retry(ctx, c.retrier, func() (*domain.Response, error) {
		return c.attempt(ctx, url)
	})
	if err != nil {
		metrics.IncAPIRequest(metrics.RequestFailed)
		return nil, err
	}
	metrics.IncAPIRequest(metrics.RequestOK)
	return resp, nil
}

// attempt performs a single request and classifies its failure
func (c *Client) attempt(ctx context.Context, url string) (*domain.Response, error) {
	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewFetchError(url, 0, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err))
	}
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("Accept", "application/json")

	res, err := c.session.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return nil, domain.NewRetryableError(domain.NewFetchError(url, 0, err))
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil, statusError(url, res.StatusCode, res.Header.Get("Retry-After"))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, domain.NewRetryableError(domain.NewFetchError(url, res.StatusCode, fmt.Errorf("read body: %w", err)))
	}
	if len(body) > MaxBodyBytes {
		return nil, domain.NewFetchError(url, res.StatusCode, fmt.Errorf("response exceeds %d bytes", MaxBodyBytes))
	}

	return &domain.Response{
		URL:         url,
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Headers:     http.Header(res.Header.Clone()),
		Body:        body,
	}, nil
}

func cachedResponse(url string, body []byte) *domain.Response {
	return &domain.Response{
		URL:         url,
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        body,
		FromCache:   true,
	}
}

// Close drops idle connections. The cache belongs to the caller.
func (c *Client) Close() error {
	c.session.CloseIdleConnections()
	return nil
}

// SetCache attaches the response cache
func (c *Client) SetCache(cache domain.Cache) {
	c.cache.store = cache
}

// SetCacheEnabled turns response caching on or off
func (c *Client) SetCacheEnabled(enabled bool) {
	c.cache.enabled = enabled
}
