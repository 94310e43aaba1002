// Package archive post-processes v6 all_packages bundles: it strips unwanted
// entries, re-packs the bundle and extracts the npk payloads next to it.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/TheMichaelB/rosmirror/internal/events"
)

// ErrUnsafeEntry is returned for archive entries that would escape the target directory.
var ErrUnsafeEntry = errors.New("unsafe archive entry")

// Result reports what one Process call did. Errors are collected per step
// and never abort later steps.
type Result struct {
	Removed   []string `json:"removed,omitempty"`
	Repacked  bool     `json:"repacked"`
	Extracted []string `json:"extracted,omitempty"`
	Errors    []error  `json:"-"`
}

// OK reports whether every step succeeded.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err joins the collected errors.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Processor filters bundles and extracts npk files.
type Processor struct {
	logger *events.Logger
}

// NewProcessor creates a processor.
func NewProcessor(logger *events.Logger) *Processor {
	return &Processor{logger: logger.WithField("component", "archive")}
}

// Process filters zipPath by prefixes and extracts every npk entry into destDir.
func (p *Processor) Process(zipPath, destDir string, prefixes []string) Result {
	var result Result
	logger := p.logger.WithField("zip", filepath.Base(zipPath))

	if len(normalizePrefixes(prefixes)) > 0 {
		removed, repacked, err := p.filter(zipPath, prefixes)
		result.Removed = removed
		result.Repacked = repacked
		if err != nil {
			logger.WithError(err).Warn("Filtering bundle failed")
			result.Errors = append(result.Errors, err)
		}
	}

	extracted, err := ExtractNPK(zipPath, destDir)
	result.Extracted = extracted
	if err != nil {
		logger.WithError(err).Warn("Extracting npk files failed")
		result.Errors = append(result.Errors, err)
	}

	logger.WithFields(map[string]interface{}{
		"removed":   len(result.Removed),
		"repacked":  result.Repacked,
		"extracted": len(result.Extracted),
	}).Debug("Bundle processed")

	return result
}

// filter extracts the bundle to a scratch directory, drops matching entries
// and re-packs it when anything was dropped.
func (p *Processor) filter(zipPath string, prefixes []string) ([]string, bool, error) {
	scratch, err := os.MkdirTemp(filepath.Dir(zipPath), ".scratch-")
	if err != nil {
		return nil, false, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := ExtractAll(zipPath, scratch); err != nil {
		return nil, false, err
	}

	removed, err := RemoveMatching(scratch, prefixes)
	if err != nil {
		return removed, false, err
	}
	if len(removed) == 0 {
		return nil, false, nil
	}

	tmp := zipPath + ".tmp"
	if err := Pack(scratch, tmp); err != nil {
		os.Remove(tmp)
		return removed, false, err
	}
	if err := os.Remove(zipPath); err != nil {
		os.Remove(tmp)
		return removed, false, fmt.Errorf("remove original bundle: %w", err)
	}
	if err := os.Rename(tmp, zipPath); err != nil {
		return removed, false, fmt.Errorf("replace bundle: %w", err)
	}

	p.logger.WithFields(map[string]interface{}{
		"zip":     filepath.Base(zipPath),
		"removed": strings.Join(removed, ","),
	}).Info("Bundle filtered")

	return removed, true, nil
}

// ExtractAll unpacks every entry of zipPath below dir.
func ExtractAll(zipPath, dir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		name, err := safeEntryName(f.Name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create %s: %w", name, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMatching deletes files under dir whose base name starts with one of
// prefixes, ignoring case. It returns the removed relative paths.
func RemoveMatching(dir string, prefixes []string) ([]string, error) {
	norm := normalizePrefixes(prefixes)
	var removed []string

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !HasPrefix(info.Name(), norm) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("remove %s: %w", info.Name(), err)
		}
		rel, _ := filepath.Rel(dir, p)
		removed = append(removed, filepath.ToSlash(rel))
		return nil
	})

	sort.Strings(removed)
	return removed, err
}

// Pack writes every file under dir into a new zip at zipPath.
func Pack(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}

	w := zip.NewWriter(out)
	walkErr := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		dst, err := w.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})

	closeErr := w.Close()
	fileErr := out.Close()
	if walkErr != nil {
		return fmt.Errorf("pack bundle: %w", walkErr)
	}
	if closeErr != nil {
		return fmt.Errorf("finish bundle: %w", closeErr)
	}
	return fileErr
}

// ExtractNPK copies every *.npk entry of zipPath into dir under its base name.
func ExtractNPK(zipPath, dir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer r.Close()

	var extracted []string
	var errs []error
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".npk") {
			continue
		}
		base := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		if base == "." || base == "/" || base == ".." {
			continue
		}
		if err := extractFile(f, filepath.Join(dir, base)); err != nil {
			errs = append(errs, err)
			continue
		}
		extracted = append(extracted, base)
	}

	sort.Strings(extracted)
	return extracted, errors.Join(errs...)
}

// HasPrefix reports whether name starts with one of the lowercase prefixes.
func HasPrefix(name string, lowerPrefixes []string) bool {
	lower := strings.ToLower(name)
	for _, p := range lowerPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func normalizePrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func safeEntryName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}
	return clean, nil
}

// extractFile writes one entry through a temp file.
func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	tmp := fmt.Sprintf("%s.tmp.%d", target, time.Now().UnixNano())
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(target), err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", filepath.Base(target), err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(target), err)
	}
	return nil
}
