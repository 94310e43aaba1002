package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

// maxTextSize bounds pointer and changelog bodies.
const maxTextSize = 8 << 20

// HTTPClient talks to the vendor server.
type HTTPClient struct {
	client    *http.Client
	probeURL  string
	userAgent string
	logger    *events.Logger

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates the client used by checks, bounded by the long
// download timeout.
func NewHTTPClient(cfg *config.UpstreamConfig, logger *events.Logger) *HTTPClient {
	return newHTTPClient(cfg, cfg.Timeout, 2, logger.WithField("component", "upstream_client"))
}

// NewProbeClient creates the diagnostics client, bounded by the short probe
// timeout and never retrying.
func NewProbeClient(cfg *config.UpstreamConfig, logger *events.Logger) *HTTPClient {
	return newHTTPClient(cfg, cfg.ProbeTimeout, 0, logger.WithField("component", "probe_client"))
}

func newHTTPClient(cfg *config.UpstreamConfig, timeout time.Duration, retries int, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		probeURL:   cfg.ProbeURL,
		userAgent:  cfg.UserAgent,
		maxRetries: retries,
		retryDelay: time.Second,
		logger:     logger,
	}
}

// Timeout returns the overall request timeout.
func (c *HTTPClient) Timeout() time.Duration {
	return c.client.Timeout
}

// CheckConnectivity issues a HEAD to the probe URL.
func (c *HTTPClient) CheckConnectivity(ctx context.Context) bool {
	ok := c.FileExists(ctx, c.probeURL)
	if !ok {
		c.logger.WithField("url", c.probeURL).Warn("Upstream unreachable")
	}
	return ok
}

// FileExists issues a HEAD and reports whether the status is 2xx.
func (c *HTTPClient) FileExists(ctx context.Context, url string) bool {
	resp, err := c.do(ctx, http.MethodHead, url, 0)
	if err != nil {
		c.logger.WithError(err).WithField("url", url).Debug("HEAD failed")
		return false
	}
	resp.Body.Close()
	return true
}

// ResolveVersion fetches a pointer file and parses "<version> [<build>]".
func (c *HTTPClient) ResolveVersion(ctx context.Context, url string) (models.Pointer, error) {
	text, err := c.DownloadText(ctx, url)
	if err != nil {
		return models.Pointer{}, err
	}

	p, err := models.ParsePointer(text)
	if err != nil {
		return models.Pointer{}, fmt.Errorf("parse %s: %w", url, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"url":     url,
		"version": p.Version,
		"build":   p.Build,
	}).Debug("Resolved pointer")

	return p, nil
}

// Download streams a file into w. The caller owns cleanup of w on failure.
func (c *HTTPClient) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, url, c.maxRetries)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", url, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"url":  url,
		"size": n,
	}).Debug("Downloaded file")

	return n, nil
}

// DownloadBytes fetches a whole body into memory.
func (c *HTTPClient) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.Download(ctx, url, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadText fetches a small text body.
func (c *HTTPClient) DownloadText(ctx context.Context, url string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, url, c.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextSize))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(data), nil
}

// Probe measures reachability and latency of url with a HEAD request.
func (c *HTTPClient) Probe(ctx context.Context, url string) ProbeResult {
	start := time.Now()
	result := ProbeResult{URL: url}

	resp, err := c.send(ctx, http.MethodHead, url)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !result.OK {
		result.Error = http.StatusText(resp.StatusCode)
	}
	return result
}

// do sends a request and returns the response only for a 2xx status.
func (c *HTTPClient) do(ctx context.Context, method, url string, retries int) (*http.Response, error) {
	var resp *http.Response
	err := c.retry(ctx, retries, func() error {
		r, err := c.send(ctx, method, url)
		if err != nil {
			return err
		}

		if r.StatusCode < 200 || r.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4096))
			r.Body.Close()
			return &models.UpstreamError{URL: url, StatusCode: r.StatusCode}
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) send(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    url,
	}).Debug("Sending request")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, retries int, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return err
		}
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		(status >= 500 && status < 600)
}

// isRetryableError reports whether another attempt may succeed.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var upErr *models.UpstreamError
	if errors.As(err, &upErr) {
		return isRetryable(upErr.StatusCode)
	}

	return true
}
