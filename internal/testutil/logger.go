package testutil

import (
	"bytes"
	"sync"

	"github.com/TheMichaelB/rosmirror/internal/events"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// LogBuffer is a concurrency-safe log sink for assertions on output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewCapturingLogger returns a JSON logger writing into the returned buffer.
func NewCapturingLogger() (*events.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return events.NewTestLogger(events.DebugLevel, "json", buf), buf
}
