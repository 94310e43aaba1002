package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/pointers"
	"github.com/TheMichaelB/rosmirror/internal/storage"
)

// changelogOrder is the section order of the aggregated changelog, newest first.
var changelogOrder = []models.Branch{models.BranchV7Latest, models.BranchV7Fixed, models.BranchV6}

// publish regenerates every root-level derived file from the active versions.
func (e *Engine) publish(ctx context.Context) error {
	snap := e.active.Snapshot()

	if err := e.writePointers(ctx, snap); err != nil {
		return &models.SyncError{Code: models.ErrCodeStorage, Phase: PhasePublishing, Err: err}
	}
	e.fetchPackages(ctx, snap)
	if err := e.writeChangelog(ctx, snap); err != nil {
		events.FromContext(ctx).WithError(err).Warn("Write aggregated changelog failed")
	}
	return nil
}

// writePointers materializes the pointer table. Files whose content is
// already current are left untouched.
func (e *Engine) writePointers(ctx context.Context, snap models.Versions) error {
	files := e.versions.Files()
	written := 0

	for _, entry := range pointers.Build(snap).Files() {
		rel := storage.PointerPath(entry.Name)
		if entry.Version == "" {
			// A stale file would shadow the resolver's NotFound.
			if ok, _ := files.Exists(rel); ok {
				if err := files.Delete(rel); err != nil {
					return fmt.Errorf("remove pointer %s: %w", entry.Name, err)
				}
				written++
			}
			continue
		}
		content := []byte(entry.Content())
		if existing, err := files.Read(rel); err == nil && bytes.Equal(existing, content) {
			continue
		}
		if err := files.Write(rel, content); err != nil {
			return fmt.Errorf("write pointer %s: %w", entry.Name, err)
		}
		written++
	}

	if written > 0 {
		events.FromContext(ctx).WithField("count", written).Info("Updated pointer files")
	}
	return nil
}

// fetchPackages refreshes packages.csv once per distinct v7 minor branch.
func (e *Engine) fetchPackages(ctx context.Context, snap models.Versions) {
	logger := events.FromContext(ctx)
	seen := make(map[string]bool)

	for _, version := range []string{snap.V7Latest, snap.V7Fixed} {
		minor := models.MinorBranch(version)
		if minor == "" || seen[minor] {
			continue
		}
		seen[minor] = true

		l := logger.WithFields(map[string]interface{}{"minor": minor, "version": version})
		text, err := e.upstream.DownloadText(ctx, e.upstreamCfg.FileURL(version, storage.PackagesFile))
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				l.Info("No packages list published")
			} else {
				l.WithError(err).Warn("Fetch packages list failed")
			}
			continue
		}
		if err := e.versions.WriteFile(storage.PackagesPath(minor), []byte(text)); err != nil {
			l.WithError(err).Warn("Save packages list failed")
		}
	}
}

// writeChangelog concatenates the per-version changelogs of the active versions.
func (e *Engine) writeChangelog(ctx context.Context, snap models.Versions) error {
	data := AggregateChangelog(e.versions.Files(), snap)
	if len(data) == 0 {
		events.FromContext(ctx).Debug("No changelogs to aggregate")
		return nil
	}
	return e.versions.WriteFile(storage.ChangelogFile, data)
}

// AggregateChangelog builds the root CHANGELOG from the stored per-version
// changelogs, newest branch first. Versions shared by two branches appear once.
func AggregateChangelog(files *storage.LocalStore, snap models.Versions) []byte {
	var (
		buf  bytes.Buffer
		seen = make(map[string]bool)
	)

	for _, b := range changelogOrder {
		version := snap.Get(b).Version
		if version == "" || seen[version] {
			continue
		}
		seen[version] = true

		data, err := files.Read(storage.ChangelogPath(b, version))
		if err != nil || len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(strings.TrimRight(string(data), "\n"))
		buf.WriteString("\n")
	}

	return buf.Bytes()
}
