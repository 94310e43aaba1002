package transport

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// MockUpstream provides an in-memory Upstream for testing.
type MockUpstream struct {
	mu sync.Mutex

	// Response configuration, keyed by URL
	Files map[string][]byte

	// Error injection
	Offline       bool
	ResolveError  error
	DownloadError map[string]error

	// Block, when set, holds CheckConnectivity until it is closed.
	Block chan struct{}

	// Request tracking
	heads     []string
	gets      []string
	downloads []string
}

// NewMockUpstream creates a mock upstream.
func NewMockUpstream() *MockUpstream {
	return &MockUpstream{
		Files:         make(map[string][]byte),
		DownloadError: make(map[string]error),
	}
}

// SetFile serves data at url.
func (m *MockUpstream) SetFile(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[url] = data
}

// SetText serves text at url.
func (m *MockUpstream) SetText(url, text string) {
	m.SetFile(url, []byte(text))
}

// RemoveFile stops serving url.
func (m *MockUpstream) RemoveFile(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Files, url)
}

// SetOffline toggles connectivity.
func (m *MockUpstream) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Offline = offline
}

// CheckConnectivity reports whether the mock is online.
func (m *MockUpstream) CheckConnectivity(ctx context.Context) bool {
	m.mu.Lock()
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return false
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Offline
}

// ResolveVersion parses the pointer text served at url.
func (m *MockUpstream) ResolveVersion(ctx context.Context, url string) (models.Pointer, error) {
	m.mu.Lock()
	resolveErr := m.ResolveError
	m.mu.Unlock()

	if resolveErr != nil {
		return models.Pointer{}, resolveErr
	}

	text, err := m.DownloadText(ctx, url)
	if err != nil {
		return models.Pointer{}, err
	}
	return models.ParsePointer(text)
}

// FileExists reports whether url is served.
func (m *MockUpstream) FileExists(ctx context.Context, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.heads = append(m.heads, url)
	if m.Offline {
		return false
	}
	_, ok := m.Files[url]
	return ok
}

// Download writes the body served at url into w.
func (m *MockUpstream) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	data, err := m.get(ctx, url)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.downloads = append(m.downloads, url)
	m.mu.Unlock()

	n, err := w.Write(data)
	return int64(n), err
}

// DownloadText returns the body served at url.
func (m *MockUpstream) DownloadText(ctx context.Context, url string) (string, error) {
	data, err := m.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Probe reports the mock's view of url.
func (m *MockUpstream) Probe(ctx context.Context, url string) ProbeResult {
	start := time.Now()
	if m.FileExists(ctx, url) {
		return ProbeResult{URL: url, OK: true, StatusCode: http.StatusOK, Latency: time.Since(start)}
	}
	return ProbeResult{URL: url, StatusCode: http.StatusNotFound, Latency: time.Since(start), Error: "Not Found"}
}

func (m *MockUpstream) get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets = append(m.gets, url)
	if err, ok := m.DownloadError[url]; ok {
		return nil, err
	}
	data, ok := m.Files[url]
	if !ok {
		return nil, &models.UpstreamError{URL: url, StatusCode: http.StatusNotFound}
	}
	return data, nil
}

// Helper methods for testing

// Downloads returns the URLs fetched through Download, sorted.
func (m *MockUpstream) Downloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]string(nil), m.downloads...)
	sort.Strings(out)
	return out
}

// Gets returns every GET URL in request order.
func (m *MockUpstream) Gets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.gets...)
}

// Heads returns every HEAD URL in request order.
func (m *MockUpstream) Heads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.heads...)
}

// Reset clears request tracking.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heads = nil
	m.gets = nil
	m.downloads = nil
}
