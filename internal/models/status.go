package models

import "time"

// Status is the outcome code of a check cycle.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusInProgress         Status = "already_in_progress"
	StatusNetworkUnavailable Status = "network_unavailable"
	StatusNetworkError       Status = "network_error"
	StatusTimeout            Status = "timeout"
	StatusFetchFailed        Status = "fetch_failed"
	StatusError              Status = "error"
)

// Soft reports whether the status is an expected condition rather than a failure.
func (s Status) Soft() bool {
	return s == StatusSuccess || s == StatusInProgress || s == StatusNetworkUnavailable
}

// CheckResult is returned from every check, whatever the outcome.
type CheckResult struct {
	ID         string        `json:"id"`
	Status     Status        `json:"status"`
	Message    string        `json:"message"`
	Downloaded int           `json:"downloaded"`
	Failed     int           `json:"failed"`
	Versions   Versions      `json:"versions"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// ItemResult records the outcome for a single file in a batch.
type ItemResult struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Missing bool   `json:"missing,omitempty"`
	Bytes   int64  `json:"bytes,omitempty"`
	Err     error  `json:"-"`
}

// OK reports whether the item finished without an error.
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// Downloaded reports whether the item caused a download.
func (r ItemResult) Downloaded() bool {
	return r.Err == nil && !r.Skipped && !r.Missing
}

// BatchResult aggregates per-item results.
type BatchResult struct {
	Items []ItemResult
}

// Add appends a result.
func (b *BatchResult) Add(r ItemResult) {
	b.Items = append(b.Items, r)
}

// Merge appends all results from another batch.
func (b *BatchResult) Merge(other BatchResult) {
	b.Items = append(b.Items, other.Items...)
}

// Downloaded counts items that were fetched.
func (b BatchResult) Downloaded() int {
	n := 0
	for _, it := range b.Items {
		if it.Downloaded() {
			n++
		}
	}
	return n
}

// Failed counts items with an error.
func (b BatchResult) Failed() int {
	n := 0
	for _, it := range b.Items {
		if !it.OK() {
			n++
		}
	}
	return n
}

// Bytes sums downloaded bytes.
func (b BatchResult) Bytes() int64 {
	var n int64
	for _, it := range b.Items {
		if it.Downloaded() {
			n += it.Bytes
		}
	}
	return n
}
