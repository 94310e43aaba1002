package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Error codes for structured error handling.
const (
	ErrCodeNetwork   = "NETWORK_ERROR"
	ErrCodeUpstream  = "UPSTREAM_ERROR"
	ErrCodeStorage   = "STORAGE_ERROR"
	ErrCodeArchive   = "ARCHIVE_ERROR"
	ErrCodeState     = "STATE_ERROR"
	ErrCodeConfig    = "CONFIG_ERROR"
	ErrCodeIntegrity = "INTEGRITY_ERROR"
)

// Sentinel errors
var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrUnreachable    = errors.New("upstream unreachable")
	ErrNoVersion      = errors.New("no version in pointer response")
	ErrNotFound       = errors.New("not found upstream")
	ErrVersionActive  = errors.New("version is active")
	ErrVersionMissing = errors.New("version not found locally")
	ErrInvalidArch    = errors.New("invalid architecture token")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// UpstreamError represents a non-success response from the vendor server.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: HTTP %d", e.URL, e.StatusCode)
}

// Is makes a 404 response match ErrNotFound.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// SyncError provides detailed sync failure information.
type SyncError struct {
	Code   string
	Phase  string
	Branch Branch
	Path   string
	Err    error
}

func (e *SyncError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("sync %s [%s]: branch %s: %s: %v", e.Phase, e.Code, e.Branch, e.Path, e.Err)
	}
	return fmt.Sprintf("sync %s [%s]: branch %s: %v", e.Phase, e.Code, e.Branch, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Classify maps an error raised during a check to the status reported to callers.
func Classify(err error) Status {
	if err == nil {
		return StatusSuccess
	}

	switch {
	case errors.Is(err, ErrSyncInProgress):
		return StatusInProgress
	case errors.Is(err, ErrUnreachable):
		return StatusNetworkUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, ErrNoVersion):
		return StatusFetchFailed
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return StatusFetchFailed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return StatusNetworkError
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return StatusNetworkError
	}

	return StatusError
}
