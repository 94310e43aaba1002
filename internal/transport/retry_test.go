package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

func newRetryClient(delay time.Duration) *HTTPClient {
	var buf bytes.Buffer
	return &HTTPClient{
		retryDelay: delay,
		logger:     events.NewTestLogger(events.DebugLevel, "json", &buf),
	}
}

func TestRetryWithBackoff(t *testing.T) {
	attempts := 0
	startTime := time.Now()
	client := newRetryClient(50 * time.Millisecond)

	err := client.retry(context.Background(), 3, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// delays: 50ms then 100ms
	assert.GreaterOrEqual(t, time.Since(startTime), 150*time.Millisecond)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	attempts := 0
	client := newRetryClient(100 * time.Millisecond)

	err := client.retry(ctx, 5, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Equal(t, context.DeadlineExceeded, err)
	assert.LessOrEqual(t, attempts, 3)
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	client := newRetryClient(10 * time.Millisecond)

	err := client.retry(context.Background(), 2, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithoutRetries(t *testing.T) {
	attempts := 0
	client := newRetryClient(10 * time.Millisecond)
	sentinel := errors.New("refused")

	err := client.retry(context.Background(), 0, func() error {
		attempts++
		return sentinel
	})

	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryNonRetryableStatus(t *testing.T) {
	attempts := 0
	client := newRetryClient(10 * time.Millisecond)

	err := client.retry(context.Background(), 3, func() error {
		attempts++
		return &models.UpstreamError{URL: "x", StatusCode: 404}
	})

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, attempts)
}

func TestRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	client := newRetryClient(10 * time.Millisecond)

	err := client.retry(ctx, 3, func() error {
		attempts++
		return fmt.Errorf("send: %w", context.Canceled)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{599, true},
		{600, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.status))
		})
	}
}
