package transport

import (
	"context"
	"io"
	"time"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Upstream is the vendor download server.
type Upstream interface {
	// CheckConnectivity issues a HEAD to the probe URL.
	CheckConnectivity(ctx context.Context) bool

	// ResolveVersion fetches and parses a pointer file.
	ResolveVersion(ctx context.Context, url string) (models.Pointer, error)

	// FileExists issues a HEAD and reports a success status.
	FileExists(ctx context.Context, url string) bool

	// Download streams a file body into w.
	Download(ctx context.Context, url string, w io.Writer) (int64, error)

	// DownloadText fetches a small text file such as CHANGELOG.
	DownloadText(ctx context.Context, url string) (string, error)
}

// ProbeResult describes one diagnostics probe.
type ProbeResult struct {
	URL        string        `json:"url"`
	OK         bool          `json:"ok"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
}

// Prober runs diagnostics probes.
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}
