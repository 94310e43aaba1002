package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/TheMichaelB/rosmirror/internal/events"
)

// ErrInvalidPath is returned for paths that escape the base directory.
var ErrInvalidPath = errors.New("invalid path")

// LocalStore implements BlobStore on the local file system.
type LocalStore struct {
	baseDir       string
	logger        *events.Logger
	maxPathLength int
}

var _ BlobStore = (*LocalStore)(nil)

// NewLocalStore creates a local file store rooted at baseDir.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_store"),
		maxPathLength: 4096,
	}, nil
}

// BaseDir returns the absolute root directory.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Path returns the sanitized absolute path for a relative path.
func (s *LocalStore) Path(path string) (string, error) {
	return s.sanitizePath(path)
}

// Write saves data to a file atomically.
func (s *LocalStore) Write(path string, data []byte) error {
	_, err := s.WriteStream(path, bytes.NewReader(data))
	return err
}

// WriteStream copies reader into a temp file next to the destination and
// renames it into place. The destination never holds partial content.
func (s *LocalStore) WriteStream(path string, reader io.Reader) (int64, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return 0, fmt.Errorf("sanitize path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		return 0, fmt.Errorf("create parent directory: %w", err)
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", safePath, time.Now().UnixNano())
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		tempFile.Close()
		if !success {
			os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(tempFile, reader)
	if err != nil {
		return written, fmt.Errorf("write stream: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return written, fmt.Errorf("sync file: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, safePath); err != nil {
		return written, fmt.Errorf("rename temp file: %w", err)
	}
	success = true

	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": written,
	}).Debug("File written")

	return written, nil
}

// Read retrieves file contents.
func (s *LocalStore) Read(path string) ([]byte, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes a file. Missing files are not an error.
func (s *LocalStore) Delete(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	if err := os.Remove(safePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// RemoveAll removes a directory tree and reports how many bytes it held.
func (s *LocalStore) RemoveAll(path string) (int64, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return 0, fmt.Errorf("sanitize path: %w", err)
	}
	if safePath == s.baseDir {
		return 0, fmt.Errorf("%w: refusing to remove base directory", ErrInvalidPath)
	}

	size := dirSize(safePath)

	s.logger.WithField("path", path).Debug("Removing directory")

	if err := os.RemoveAll(safePath); err != nil {
		return 0, fmt.Errorf("remove %s: %w", path, err)
	}
	return size, nil
}

// Exists checks if a path exists.
func (s *LocalStore) Exists(path string) (bool, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return false, fmt.Errorf("sanitize path: %w", err)
	}

	_, err = os.Stat(safePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Stat returns file information.
func (s *LocalStore) Stat(path string) (FileInfo, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("sanitize path: %w", err)
	}

	stat, err := os.Stat(safePath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat file: %w", err)
	}

	return FileInfo{
		Path:    path,
		Name:    stat.Name(),
		Size:    stat.Size(),
		Mode:    stat.Mode(),
		ModTime: stat.ModTime(),
		IsDir:   stat.IsDir(),
	}, nil
}

// EnsureDir creates a directory if it doesn't exist.
func (s *LocalStore) EnsureDir(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}
	return os.MkdirAll(safePath, 0755)
}

// ListDir returns directory contents.
func (s *LocalStore) ListDir(path string) ([]FileInfo, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	entries, err := os.ReadDir(safePath)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Path:    filepath.ToSlash(filepath.Join(path, entry.Name())),
			Name:    entry.Name(),
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	return files, nil
}

// sanitizePath validates and normalizes a relative path.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: contains null bytes", ErrInvalidPath)
	}

	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) ||
		strings.Contains(cleaned, string(filepath.Separator)+"..") {
		return "", fmt.Errorf("%w: contains '..'", ErrInvalidPath)
	}

	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	fullPath := filepath.Join(s.baseDir, cleaned)

	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) && fullPath != s.baseDir {
		return "", fmt.Errorf("%w: escapes base directory", ErrInvalidPath)
	}

	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("%w: too long (%d characters)", ErrInvalidPath, len(fullPath))
	}

	if err := validatePlatformPath(cleaned); err != nil {
		return "", err
	}

	return fullPath, nil
}

// validatePlatformPath checks platform-specific path restrictions.
func validatePlatformPath(path string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	for _, part := range strings.Split(path, string(filepath.Separator)) {
		for _, char := range `<>:"|?*` {
			if strings.ContainsRune(part, char) {
				return fmt.Errorf("%w: contains character '%c'", ErrInvalidPath, char)
			}
		}
	}
	return nil
}

func dirSize(root string) int64 {
	var size int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

// AtomicFile is a temp file that replaces its destination on Commit.
type AtomicFile struct {
	*os.File
	target string
	done   bool
}

// Create opens an atomic writer for a relative path.
func (s *LocalStore) Create(path string) (*AtomicFile, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", safePath, time.Now().UnixNano())
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{File: f, target: safePath}, nil
}

// Commit syncs the temp file and renames it over the destination.
func (f *AtomicFile) Commit() error {
	if f.done {
		return nil
	}
	f.done = true

	if err := f.Sync(); err != nil {
		f.File.Close()
		os.Remove(f.Name())
		return fmt.Errorf("sync file: %w", err)
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.File.Close()
	os.Remove(f.Name())
}
