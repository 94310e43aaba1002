package storage

import (
	"io"
	"os"
	"time"
)

// BlobStore manages files under the mirror root. Paths are relative to the root.
type BlobStore interface {
	// Path returns the absolute, sanitized location of a relative path.
	Path(path string) (string, error)

	// Write saves data to a file path atomically.
	Write(path string, data []byte) error

	// WriteStream saves data from a reader atomically and returns the bytes written.
	WriteStream(path string, reader io.Reader) (int64, error)

	// Read retrieves file contents.
	Read(path string) ([]byte, error)

	// Delete removes a file.
	Delete(path string) error

	// RemoveAll removes a directory tree and returns the bytes freed.
	RemoveAll(path string) (int64, error)

	// Exists checks if a file exists.
	Exists(path string) (bool, error)

	// Stat returns file information.
	Stat(path string) (FileInfo, error)

	// EnsureDir creates a directory if it doesn't exist.
	EnsureDir(path string) error

	// ListDir returns directory contents.
	ListDir(path string) ([]FileInfo, error)
}

// FileInfo contains file metadata.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
}
