package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	"github.com/heyjunin/HLSgrab/pkg/errors"
	"github.com/heyjunin/HLSgrab/pkg/logger"
	"github.com/heyjunin/HLSgrab/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	// DefaultPlaylistTimeout bounds a single playlist request.
	DefaultPlaylistTimeout = 30 * time.Second
	// DefaultSegmentTimeout bounds a single segment request.
	DefaultSegmentTimeout = 60 * time.Second
	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "HLSgrab/1.0"

	// DefaultMaxPlaylistBytes caps the size of a playlist body.
	DefaultMaxPlaylistBytes = 16 << 20
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options represents configuration options for the Client.
type Options struct {
	// PlaylistTimeout is the per-request timeout for Fetch. Defaults to 30 seconds.
	PlaylistTimeout time.Duration
	// SegmentTimeout is the per-request timeout for Download. Defaults to 60 seconds.
	SegmentTimeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
	// RequestsPerSecond paces all requests through a token bucket. Zero disables pacing.
	RequestsPerSecond float64
	// Burst is the token bucket size when pacing is enabled. Defaults to 8.
	Burst int
	// MaxPlaylistBytes rejects larger playlist bodies. Defaults to 16 MiB.
	MaxPlaylistBytes int64
	// HTTPClient overrides the underlying client (tests). Its own Timeout is left as is.
	HTTPClient *http.Client
	// Metrics receives request counters. May be nil.
	Metrics *metrics.Metrics
}

// Client performs the HTTP requests of an acquisition job: playlist text fetches
// and segment downloads to disk. It never retries; callers own retry policy.
// Create instances using New().
type Client struct {
	client  *http.Client
	options Options
	limiter *rate.Limiter
}

// New creates a new Client configured with the provided options, filling defaults.
func New(options Options) *Client {
	if options.PlaylistTimeout <= 0 {
		options.PlaylistTimeout = DefaultPlaylistTimeout
	}
	if options.SegmentTimeout <= 0 {
		options.SegmentTimeout = DefaultSegmentTimeout
	}
	if options.UserAgent == "" {
		options.UserAgent = DefaultUserAgent
	}
	if options.Burst <= 0 {
		options.Burst = 8
	}
	if options.MaxPlaylistBytes <= 0 {
		options.MaxPlaylistBytes = DefaultMaxPlaylistBytes
	}

	client := options.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	c := &Client{client: client, options: options}
	if options.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), options.Burst)
	}
	return c
}

// Options returns the effective options after defaults were applied.
func (c *Client) Options() Options {
	return c.options
}

func (c *Client) newRequest(ctx context.Context, uri string) (*http.Request, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.options.UserAgent)
	return req, nil
}

// Fetch performs exactly one GET for a playlist and returns its body as text.
// Non-2xx statuses, transport errors, oversized bodies and bodies that are not valid UTF-8 all fail
// with PlaylistFetchFailed; Status is 0 when no response was received.
// A leading UTF-8 byte order mark is stripped.
func (c *Client) Fetch(ctx context.Context, uri string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.PlaylistTimeout)
	defer cancel()

	text, err := c.fetch(ctx, uri)
	c.options.Metrics.PlaylistFetched(err == nil)
	if err != nil {
		logger.Debug("Playlist fetch failed", "downloader", map[string]interface{}{
			"url":   uri,
			"error": err.Error(),
		})
		return "", err
	}
	return text, nil
}

func (c *Client) fetch(ctx context.Context, uri string) (string, error) {
	req, err := c.newRequest(ctx, uri)
	if err != nil {
		return "", errors.Wrap(err, errors.PlaylistFetchFailed, "Failed to create HTTP request", errors.ErrPlaylistRequest)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.PlaylistFetchFailed, "Failed to fetch playlist", errors.ErrPlaylistRequest)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", errors.New(errors.PlaylistFetchFailed, "HTTP request failed",
			fmt.Sprintf("Status: %s", resp.Status), errors.ErrPlaylistHTTPStatus).WithStatus(resp.StatusCode)
	}

	limit := c.options.MaxPlaylistBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", errors.Wrap(err, errors.PlaylistFetchFailed, "Failed to read playlist body", errors.ErrPlaylistRead).WithStatus(resp.StatusCode)
	}
	if int64(len(body)) > limit {
		return "", errors.New(errors.PlaylistFetchFailed, "Playlist too large",
			fmt.Sprintf("body exceeds %d bytes", limit), errors.ErrPlaylistTooLarge).WithStatus(resp.StatusCode)
	}

	body = bytes.TrimPrefix(body, utf8BOM)
	if !utf8.Valid(body) {
		return "", errors.New(errors.PlaylistFetchFailed, "Playlist is not text", "not UTF-8 text", errors.ErrPlaylistNotUTF8).WithStatus(resp.StatusCode)
	}
	return string(body), nil
}

// Download performs one GET and streams the body to dest, returning the number of
// bytes written. Failures are SegmentFetchFailed with Status set (0 for transport
// errors); dest is removed when the download does not complete.
func (c *Client) Download(ctx context.Context, uri, dest string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.SegmentTimeout)
	defer cancel()

	start := time.Now()
	n, err := c.download(ctx, uri, dest)
	c.options.Metrics.SegmentFetched(err == nil, n, time.Since(start))
	if err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	return n, nil
}

func (c *Client) download(ctx context.Context, uri, dest string) (int64, error) {
	req, err := c.newRequest(ctx, uri)
	if err != nil {
		return 0, errors.Wrap(err, errors.SegmentFetchFailed, "Failed to create HTTP request", errors.ErrSegmentRequest)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, errors.SegmentFetchFailed, "Failed to download segment", errors.ErrSegmentRequest)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, errors.New(errors.SegmentFetchFailed, "HTTP request failed",
			fmt.Sprintf("Status: %s", resp.Status), errors.ErrSegmentHTTPStatus).WithStatus(resp.StatusCode)
	}

	file, err := os.Create(dest)
	if err != nil {
		return 0, errors.Wrap(err, errors.SystemError, "Failed to create segment file", errors.ErrSegmentWrite)
	}
	defer file.Close()

	counter := &progressReader{reader: resp.Body}
	if _, err := io.Copy(file, counter); err != nil {
		return counter.read, errors.Wrap(err, errors.SegmentFetchFailed, "Failed to write segment", errors.ErrSegmentWrite).WithStatus(resp.StatusCode)
	}
	if err := file.Close(); err != nil {
		return counter.read, errors.Wrap(err, errors.SystemError, "Failed to close segment file", errors.ErrSegmentWrite)
	}
	return counter.read, nil
}

// progressReader is an internal io.Reader wrapper that counts the bytes read.
type progressReader struct {
	reader io.Reader
	read   int64
}

// Read implements the io.Reader interface for progressReader.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
	}
	return n, err
}
