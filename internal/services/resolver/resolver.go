// Package resolver maps device-facing download paths onto mirror content.
package resolver

import (
	"path"
	"strings"
	"time"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/pointers"
	"github.com/TheMichaelB/rosmirror/internal/storage"
)

// Kind is the outcome of a resolution.
type Kind int

const (
	NotFound Kind = iota
	Physical
	Synthesized
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case Physical:
		return "physical"
	case Synthesized:
		return "synthesized"
	case Forbidden:
		return "forbidden"
	default:
		return "not_found"
	}
}

// Content types by extension.
const (
	TypeBinary = "application/octet-stream"
	TypeZip    = "application/zip"
	TypeText   = "text/plain; charset=utf-8"
	TypeCSV    = "text/csv"
)

// Resolution describes what to send for a request.
type Resolution struct {
	Kind        Kind
	Name        string    // file name used for Content-Disposition
	Path        string    // absolute path, Physical only
	Content     []byte    // body, Synthesized only
	Size        int64
	ModTime     time.Time
	ContentType string
	Attachment  bool
}

// Files is the read side of the mirror store.
type Files interface {
	Stat(path string) (storage.FileInfo, error)
	Read(path string) ([]byte, error)
	Path(path string) (string, error)
}

// Snapshotter returns the active versions.
type Snapshotter interface {
	Snapshot() models.Versions
}

// Resolver answers file requests from the mirror root.
type Resolver struct {
	files  Files
	active Snapshotter
	logger *events.Logger
}

// New creates a resolver.
func New(files Files, active Snapshotter, logger *events.Logger) *Resolver {
	return &Resolver{
		files:  files,
		active: active,
		logger: logger.WithField("component", "resolver"),
	}
}

// Resolve maps an optional version segment and a file name to content.
func (r *Resolver) Resolve(version, filename string) Resolution {
	if unsafeSegment(version) || unsafeSegment(filename) || filename == "" {
		r.logger.WithFields(map[string]interface{}{
			"version": version,
			"file":    filename,
		}).Warn("Rejected unsafe path")
		return Resolution{Kind: Forbidden, Name: filename}
	}

	if pointers.IsPointerName(filename) {
		return r.pointer(filename)
	}

	if version != "" {
		switch filename {
		case storage.ChangelogFile:
			return r.first(filename,
				storage.ChangelogPath(models.BranchV6, version),
				storage.ChangelogPath(models.BranchV7Latest, version))
		case storage.PackagesFile:
			return r.first(filename,
				path.Join(storage.VersionDir(models.BranchV6, version), filename),
				path.Join(storage.VersionDir(models.BranchV7Latest, version), filename),
				storage.PackagesPath(models.MinorBranch(version)))
		default:
			return r.first(filename,
				path.Join(storage.VersionDir(models.BranchV6, version), filename),
				path.Join(storage.VersionDir(models.BranchV7Latest, version), filename))
		}
	}

	return r.first(filename, filename)
}

// pointer prefers a literal file on disk and otherwise synthesizes the
// pointer body from the active versions.
func (r *Resolver) pointer(filename string) Resolution {
	if res := r.first(filename, storage.PointerPath(filename)); res.Kind == Physical {
		return res
	}

	entry, ok := pointers.Build(r.active.Snapshot()).Lookup(filename)
	if !ok || entry.Version == "" {
		return Resolution{Kind: NotFound, Name: filename}
	}

	content := []byte(entry.Content())
	return Resolution{
		Kind:        Synthesized,
		Name:        filename,
		Content:     content,
		Size:        int64(len(content)),
		ContentType: ContentType(filename),
		Attachment:  Attachment(filename),
	}
}

// first returns the first candidate that is a regular file.
func (r *Resolver) first(filename string, candidates ...string) Resolution {
	for _, rel := range candidates {
		info, err := r.files.Stat(rel)
		if err != nil || info.IsDir {
			continue
		}
		abs, err := r.files.Path(rel)
		if err != nil {
			continue
		}
		return Resolution{
			Kind:        Physical,
			Name:        filename,
			Path:        abs,
			Size:        info.Size,
			ModTime:     info.ModTime,
			ContentType: ContentType(filename),
			Attachment:  Attachment(filename),
		}
	}
	return Resolution{Kind: NotFound, Name: filename}
}

// ContentType derives the response type from the file extension.
func ContentType(filename string) string {
	if filename == storage.ChangelogFile {
		return TypeText
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".zip":
		return TypeZip
	case ".txt", ".log":
		return TypeText
	case ".csv":
		return TypeCSV
	default:
		return TypeBinary
	}
}

// Attachment reports whether the file is sent as a download.
func Attachment(filename string) bool {
	return filename != storage.ChangelogFile
}

func unsafeSegment(s string) bool {
	return strings.Contains(s, "..") || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0)
}
