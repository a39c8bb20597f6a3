package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/catalogbuilder/internal/cache"
	"github.com/hyperifyio/catalogbuilder/internal/retry"
)

// DefaultMaxBodyBytes bounds a single fetched document.
const DefaultMaxBodyBytes = 8 << 20

// Client wraps http.Client with per-request timeouts, bounded retry on
// transient errors, a concurrency gate and optional conditional GETs.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Header is added to every request (e.g. Authorization).
	Header http.Header
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt.
	PerRequestTimeout time.Duration
	Backoff           retry.Policy
	// Cache, when set, enables If-None-Match / If-Modified-Since revalidation.
	Cache *cache.HTTPCache
	// BypassCache skips revalidation but still stores fresh responses.
	BypassCache bool
	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests for this client. Zero means unlimited.
	MaxConcurrent int
	// MaxBodyBytes caps the response body. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// OnRetry is called before each retry with the failed attempt's error.
	OnRetry func(url string, attempt int, err error)

	limiter     chan struct{}
	limiterOnce sync.Once
}

// StatusError is a non-2xx, non-304 response.
type StatusError struct {
	URL        string
	StatusCode int
	// RateLimited is set for 429 and for 403 with an exhausted rate-limit header.
	RateLimited bool
	RetryAfter  time.Duration
}

func (e *StatusError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("rate limited: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating the caller's client.
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: c.checkRedirectFunc()}
}

// Get issues a GET and returns the body and content type. Transient failures
// (attempt timeouts, 5xx, rate limiting, connection errors) are retried up to
// MaxAttempts with Backoff between attempts. Cancellation of ctx stops both
// the in-flight attempt and any backoff wait.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	var etag, lastMod string
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.Backoff
	if backoff.Initial <= 0 {
		backoff = retry.DefaultPolicy()
	}
	var lastErr error
	refetched := false
	for i := 0; i < attempts; i++ {
		res, err := c.tryOnce(ctx, rawURL, etag, lastMod)
		if err == nil {
			if res.status == http.StatusNotModified {
				if cached, cerr := c.Cache.LoadBody(ctx, rawURL); cerr == nil {
					return cached, res.contentType, nil
				}
				// Body vanished underneath the metadata; fetch unconditionally once.
				if refetched {
					return nil, "", &StatusError{URL: rawURL, StatusCode: http.StatusNotModified}
				}
				refetched = true
				etag, lastMod = "", ""
				i--
				continue
			}
			if c.Cache != nil {
				_ = c.Cache.Save(ctx, rawURL, res.contentType, res.etag, res.lastModified, res.body)
			}
			return res.body, res.contentType, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if !IsTransient(err) || i == attempts-1 {
			return nil, "", err
		}
		if c.OnRetry != nil {
			c.OnRetry(rawURL, i+1, err)
		}
		wait := backoff.Delay(i + 1)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			wait = se.RetryAfter
			if backoff.Max > 0 && wait > backoff.Max {
				wait = backoff.Max
			}
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, "", err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, "", lastErr
}

type response struct {
	body         []byte
	contentType  string
	etag         string
	lastModified string
	status       int
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, etag string, lastMod string) (response, error) {
	if err := c.acquire(ctx); err != nil {
		return response{}, err
	}
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return response{}, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && c.Cache != nil {
		return response{contentType: resp.Header.Get("Content-Type"), status: resp.StatusCode}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return response{}, statusError(rawURL, resp)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return response{}, ErrBodyTooLarge
	}
	return response{
		body:         b,
		contentType:  resp.Header.Get("Content-Type"),
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		status:       resp.StatusCode,
	}, nil
}

func statusError(rawURL string, resp *http.Response) *StatusError {
	se := &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		se.RateLimited = true
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		se.RateLimited = true
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && secs > 0 {
			se.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return se
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.RateLimited || se.StatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	limit := c.RedirectMaxHops
	if limit <= 0 {
		limit = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	<-c.limiter
}
