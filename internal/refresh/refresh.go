// Package refresh keeps the index in sync with the folders the user has added.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/indexer"
	"github.com/hyperjump/utsushi/internal/metrics"
	"github.com/hyperjump/utsushi/internal/models"
	"github.com/hyperjump/utsushi/internal/scanner"
	"github.com/hyperjump/utsushi/internal/storage"
)

// Observer receives progress from a refresh. Finished is not called when the refresh is canceled.
type Observer interface {
	Progress(folder string, processed, total int)
	Finished(stats models.RefreshStats)
}

type nopObserver struct{}

func (nopObserver) Progress(string, int, int)       {}
func (nopObserver) Finished(models.RefreshStats) {}

// Coordinator diffs folders on disk against storage and applies the difference through the indexer.
type Coordinator struct {
	storage storage.Storage
	scanner *scanner.Scanner
	indexer *indexer.Indexer
	logger  *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator.
func New(store storage.Storage, sc *scanner.Scanner, idx *indexer.Indexer, opts ...Option) *Coordinator {
	c := &Coordinator{storage: store, scanner: sc, indexer: idx, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Diff returns the paths in current but not known, and in known but not current, both sorted.
func Diff(current, known []string) (toAdd, toRemove []string) {
	cur := make(map[string]struct{}, len(current))
	for _, p := range current {
		cur[p] = struct{}{}
	}
	kn := make(map[string]struct{}, len(known))
	for _, p := range known {
		kn[p] = struct{}{}
	}
	for p := range cur {
		if _, ok := kn[p]; !ok {
			toAdd = append(toAdd, p)
		}
	}
	for p := range kn {
		if _, ok := cur[p]; !ok {
			toRemove = append(toRemove, p)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// Refresh brings each folder in sync: stored files that disappeared are removed, new files are
// indexed. It stops between units of work when ctx is canceled and returns ctx's error with the
// stats gathered so far. Files already processed stay processed.
func (c *Coordinator) Refresh(ctx context.Context, folders []string, obs Observer) (models.RefreshStats, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	var stats models.RefreshStats
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			metrics.RefreshRunsTotal.WithLabelValues("canceled").Inc()
			return stats, err
		}
		if err := c.refreshFolder(ctx, folder, obs, &stats); err != nil {
			if ctx.Err() != nil {
				metrics.RefreshRunsTotal.WithLabelValues("canceled").Inc()
				return stats, ctx.Err()
			}
			c.logger.Error("failed to refresh folder", zap.String("folder", folder), zap.Error(err))
		}
	}
	metrics.RefreshRunsTotal.WithLabelValues("finished").Inc()
	c.logger.Info("refresh finished", zap.Int("added", stats.Added), zap.Int("removed", stats.Removed), zap.Int("failed", stats.Failed))
	obs.Finished(stats)
	return stats, nil
}

func (c *Coordinator) refreshFolder(ctx context.Context, folder string, obs Observer, stats *models.RefreshStats) error {
	folder, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	current, err := c.scanner.Scan(ctx, folder)
	incomplete := errors.Is(err, scanner.ErrIncomplete)
	switch {
	case err == nil:
	case incomplete:
		c.logger.Warn("folder only partly readable, keeping stored files", zap.String("folder", folder), zap.Error(err))
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Warn("folder no longer exists, removing its files", zap.String("folder", folder))
		current = nil
	default:
		return fmt.Errorf("scan %s: %w", folder, err)
	}
	known, err := c.storage.ListFilePathsUnderFolder(ctx, folder)
	if err != nil {
		return fmt.Errorf("list stored files under %s: %w", folder, err)
	}
	toAdd, toRemove := Diff(current, known)
	if incomplete {
		// A file missing from a partial scan may only be hidden by an unreadable directory.
		toRemove = nil
	}
	c.logger.Info("refreshing folder", zap.String("folder", folder), zap.Int("add", len(toAdd)), zap.Int("remove", len(toRemove)))

	for _, path := range toRemove {
		if err := ctx.Err(); err != nil {
			return err
		}
		removed, err := c.indexer.RemoveFile(ctx, path)
		if err != nil {
			stats.Failed++
			c.logger.Warn("failed to remove file", zap.String("path", path), zap.Error(err))
			continue
		}
		if removed {
			stats.Removed++
			metrics.RefreshFilesRemoved.Inc()
		}
	}

	name := filepath.Base(folder)
	obs.Progress(name, 0, len(toAdd))
	results, err := c.indexer.IndexFiles(ctx, toAdd, func(done, total int) {
		obs.Progress(name, done, total)
	})
	for _, res := range results {
		switch {
		case res.Indexed:
			stats.Added++
			metrics.RefreshFilesAdded.Inc()
		case res.Reason != indexer.ReasonCanceled:
			stats.Failed++
		}
	}
	return err
}

// RefreshAll refreshes every folder recorded in storage.
func (c *Coordinator) RefreshAll(ctx context.Context, obs Observer) (models.RefreshStats, error) {
	folders, err := c.storage.ListFolders(ctx)
	if err != nil {
		return models.RefreshStats{}, fmt.Errorf("list folders: %w", err)
	}
	paths := make([]string, len(folders))
	for i, f := range folders {
		paths[i] = f.Path
	}
	return c.Refresh(ctx, paths, obs)
}

// AddFolder records path as an indexed folder and indexes everything in it. Adding a folder
// twice is harmless: files already indexed are skipped.
func (c *Coordinator) AddFolder(ctx context.Context, path string, obs Observer) (models.IndexReport, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.IndexReport{}, fmt.Errorf("absolute path: %w", err)
	}
	if _, err := c.storage.AddFolder(ctx, abs); err != nil {
		return models.IndexReport{}, fmt.Errorf("record folder: %w", err)
	}
	name := filepath.Base(abs)
	report, err := c.indexer.IndexDirectory(ctx, abs, func(done, total int) {
		obs.Progress(name, done, total)
	})
	if err != nil {
		return report, err
	}
	obs.Finished(models.RefreshStats{Added: len(report.Indexed), Failed: report.Failed})
	return report, nil
}

// RemoveFolder stops tracking path and removes every stored file below it, except files that
// also belong to another recorded folder. It returns the number of files removed.
func (c *Coordinator) RemoveFolder(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	if _, err := c.storage.GetFolderByPath(ctx, abs); err != nil {
		return 0, err
	}
	folders, err := c.storage.ListFolders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list folders: %w", err)
	}
	known, err := c.storage.ListFilePathsUnderFolder(ctx, abs)
	if err != nil {
		return 0, fmt.Errorf("list stored files under %s: %w", abs, err)
	}

	removed := 0
	for _, p := range known {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if coveredByOther(p, abs, folders) {
			continue
		}
		ok, err := c.indexer.RemoveFile(ctx, p)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
			metrics.RefreshFilesRemoved.Inc()
		}
	}
	if err := c.storage.RemoveFolder(ctx, abs); err != nil {
		return removed, fmt.Errorf("forget folder: %w", err)
	}
	c.logger.Info("folder removed", zap.String("folder", abs), zap.Int("files", removed))
	return removed, nil
}

// coveredByOther reports whether path lies inside a recorded folder other than self.
func coveredByOther(path, self string, folders []*models.IndexedFolder) bool {
	for _, f := range folders {
		if f.Path == self {
			continue
		}
		if path == f.Path || strings.HasPrefix(path, f.Path+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
