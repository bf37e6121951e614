package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// Common errors.
var (
	ErrNotFound     = errors.New("fetch: artifact not found")
	ErrForbidden    = errors.New("fetch: access forbidden")
	ErrUnauthorized = errors.New("fetch: unauthorized")
	ErrServerError  = errors.New("fetch: server error")
	ErrTooLarge     = errors.New("fetch: artifact exceeds size limit")
)

// Options configures the artifact client.
type Options struct {
	// Timeout for individual requests.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts per URL.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 500ms
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 10s
	RetryMaxBackoff time.Duration

	// MaxSize bounds the accepted artifact size in bytes. Zero means the
	// default; negative disables the limit.
	// Default: 64MiB
	MaxSize int64

	// UserAgent sent with every request.
	// Default: "rive-runtime-go"
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    500 * time.Millisecond,
		RetryMaxBackoff: 10 * time.Second,
		MaxSize:         64 << 20,
		UserAgent:       "rive-runtime-go",
	}
}

// Artifact is a fully downloaded binary plus the response metadata the cache
// layer records.
type Artifact struct {
	Data         []byte
	ETag         string
	ContentType  string
	LastModified time.Time
}

// FileInfo contains metadata about a published artifact, from a HEAD request.
type FileInfo struct {
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Client downloads engine artifacts over HTTP with retries.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new artifact client with the given options.
func NewClient(opts Options) *Client {
	if opts.MaxSize == 0 {
		opts.MaxSize = DefaultOptions().MaxSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultOptions().UserAgent
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Fetch downloads the artifact at url. Server errors, transport errors and
// truncated bodies are retried with backoff; 4xx responses fail immediately.
func (c *Client) Fetch(ctx context.Context, url string) (*Artifact, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/wasm, application/octet-stream")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, err
		}

		data, err := c.readAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if errors.Is(err, ErrTooLarge) {
				return nil, fmt.Errorf("%w: %s", ErrTooLarge, url)
			}
			lastErr = err
			continue
		}

		// A short body means the connection dropped mid-transfer.
		if resp.ContentLength >= 0 && int64(len(data)) != resp.ContentLength {
			lastErr = fmt.Errorf("truncated body: got %d of %d bytes", len(data), resp.ContentLength)
			continue
		}

		art := &Artifact{
			Data:        data,
			ETag:        cleanETag(resp.Header.Get("ETag")),
			ContentType: resp.Header.Get("Content-Type"),
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				art.LastModified = t
			}
		}

		return art, nil
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// Head performs a HEAD request to get artifact metadata without downloading
// the body. Used to revalidate cached artifacts against the CDN.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			return nil, err
		}

		info := &FileInfo{
			Size:        resp.ContentLength,
			ETag:        cleanETag(resp.Header.Get("ETag")),
			ContentType: resp.Header.Get("Content-Type"),
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				info.LastModified = t
			}
		}

		return info, nil
	}

	return nil, fmt.Errorf("head request failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// readAll reads the whole body, enforcing the configured size limit.
func (c *Client) readAll(body io.Reader) ([]byte, error) {
	if c.opts.MaxSize < 0 {
		return io.ReadAll(body)
	}

	data, err := io.ReadAll(io.LimitReader(body, c.opts.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.opts.MaxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}
