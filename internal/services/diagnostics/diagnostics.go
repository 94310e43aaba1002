// Package diagnostics reports upstream reachability and local mirror health.
package diagnostics

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/storage"
	"github.com/TheMichaelB/rosmirror/internal/transport"
)

// Report is the result of one diagnostics run.
type Report struct {
	Time       time.Time               `json:"time"`
	Reachable  bool                    `json:"reachable"`
	Probes     []transport.ProbeResult `json:"probes"`
	MirrorRoot string                  `json:"mirror_root"`
	Versions   int                     `json:"versions"`
	Incomplete []string                `json:"incomplete,omitempty"`
	DiskUsage  int64                   `json:"disk_usage"`
	DiskHuman  string                  `json:"disk_usage_human"`
	Arches     []string                `json:"arches"`
}

// Service runs diagnostics.
type Service struct {
	prober   transport.Prober
	upstream config.UpstreamConfig
	versions *storage.VersionStore
	logger   *events.Logger
}

// New creates a diagnostics service. The prober should use the short probe timeout.
func New(prober transport.Prober, upstream config.UpstreamConfig, versions *storage.VersionStore, logger *events.Logger) *Service {
	return &Service{
		prober:   prober,
		upstream: upstream,
		versions: versions,
		logger:   logger.WithField("component", "diagnostics"),
	}
}

// Targets lists the URLs probed on every run.
func (s *Service) Targets() []string {
	return []string{
		s.upstream.ProbeURL,
		s.upstream.PointerURL(s.upstream.V6Pointer),
		s.upstream.PointerURL(s.upstream.V7Pointer),
	}
}

// Run probes every target concurrently and inspects the local store.
func (s *Service) Run(ctx context.Context) Report {
	report := Report{
		Time:       time.Now().UTC(),
		MirrorRoot: s.versions.Files().BaseDir(),
		Arches:     s.versions.Arches(),
	}

	p := pool.NewWithResults[transport.ProbeResult]()
	for _, url := range s.Targets() {
		url := url
		p.Go(func() transport.ProbeResult {
			return s.prober.Probe(ctx, url)
		})
	}
	probes := p.Wait()

	// Keep target order stable for callers.
	byURL := make(map[string]transport.ProbeResult, len(probes))
	for _, r := range probes {
		byURL[r.URL] = r
	}
	for _, url := range s.Targets() {
		r := byURL[url]
		report.Probes = append(report.Probes, r)
		if r.OK {
			report.Reachable = true
		}
	}

	for _, v := range s.versions.ListVersions() {
		report.Versions++
		report.DiskUsage += v.Size
		if !v.Complete {
			report.Incomplete = append(report.Incomplete, v.Major+"/"+v.Version)
		}
	}
	report.DiskHuman = humanize.Bytes(uint64(report.DiskUsage))

	s.logger.WithFields(map[string]interface{}{
		"reachable": report.Reachable,
		"versions":  report.Versions,
		"disk":      report.DiskHuman,
	}).Debug("Diagnostics finished")

	return report
}
