// Package metrics exposes check and serving counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for checks and file serving.
type Metrics interface {
	ObserveCheck(status string, durationSeconds float64)
	AddDownloads(branch string, files int, bytes int64)
	AddDownloadFailures(branch string, files int)
	AddBytesFreed(bytes int64)
	IncFileRequest(kind string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveCheck(string, float64)    {}
func (Noop) AddDownloads(string, int, int64) {}
func (Noop) AddDownloadFailures(string, int) {}
func (Noop) AddBytesFreed(int64)             {}
func (Noop) IncFileRequest(string)           {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	checks           *prometheus.CounterVec
	checkDuration    *prometheus.HistogramVec
	filesDownloaded  *prometheus.CounterVec
	bytesDownloaded  *prometheus.CounterVec
	downloadFailures *prometheus.CounterVec
	bytesFreed       prometheus.Counter
	fileRequests     *prometheus.CounterVec
	once             sync.Once
}

// NewProm creates and registers the collectors under namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Update checks by result status",
		}, []string{"status"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Update check duration by result status",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"status"}),
		filesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_downloaded_total",
			Help:      "Firmware files downloaded by branch",
		}, []string{"branch"}),
		bytesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Bytes downloaded by branch",
		}, []string{"branch"}),
		downloadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_failures_total",
			Help:      "Failed file downloads by branch",
		}, []string{"branch"}),
		bytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_bytes_freed_total",
			Help:      "Bytes freed by version cleanup",
		}),
		fileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_requests_total",
			Help:      "Device file requests by resolution kind",
		}, []string{"kind"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.checks,
			p.checkDuration,
			p.filesDownloaded,
			p.bytesDownloaded,
			p.downloadFailures,
			p.bytesFreed,
			p.fileRequests,
		)
	})
}

func (p *Prom) ObserveCheck(status string, durationSeconds float64) {
	p.checks.WithLabelValues(status).Inc()
	p.checkDuration.WithLabelValues(status).Observe(durationSeconds)
}

func (p *Prom) AddDownloads(branch string, files int, bytes int64) {
	p.filesDownloaded.WithLabelValues(branch).Add(float64(files))
	p.bytesDownloaded.WithLabelValues(branch).Add(float64(bytes))
}

func (p *Prom) AddDownloadFailures(branch string, files int) {
	p.downloadFailures.WithLabelValues(branch).Add(float64(files))
}

func (p *Prom) AddBytesFreed(bytes int64) {
	p.bytesFreed.Add(float64(bytes))
}

func (p *Prom) IncFileRequest(kind string) {
	p.fileRequests.WithLabelValues(kind).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
