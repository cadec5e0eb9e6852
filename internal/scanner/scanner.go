// Package scanner walks directory trees and classifies files as images or videos by extension.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/models"
)

// ErrIncomplete is returned by Scan, together with the paths it did find, when some entries
// below the root could not be read.
var ErrIncomplete = errors.New("scan incomplete")

// Scanner finds supported media under a root directory.
type Scanner struct {
	imageExts  map[string]bool
	videoExts  map[string]bool
	skipHidden bool
	logger     *zap.Logger
	walk       func(root string, fn fs.WalkDirFunc) error
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger used to report skipped entries.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSkipHidden controls whether files and directories starting with "." are skipped.
func WithSkipHidden(skip bool) Option {
	return func(s *Scanner) { s.skipHidden = skip }
}

// New creates a Scanner. Extensions are matched case-insensitively and a missing leading dot is added.
func New(imageExts, videoExts []string, opts ...Option) *Scanner {
	s := &Scanner{
		imageExts:  normalizeExtensions(imageExts),
		videoExts:  normalizeExtensions(videoExts),
		skipHidden: true,
		logger:     zap.NewNop(),
		walk:       filepath.WalkDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeExtensions(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m[ext] = true
	}
	return m
}

// Classify returns the media type of path based on its extension.
func (s *Scanner) Classify(path string) models.FileType {
	ext := strings.ToLower(filepath.Ext(path))
	if s.imageExts[ext] {
		return models.FileTypeImage
	}
	if s.videoExts[ext] {
		return models.FileTypeVideo
	}
	return models.FileTypeUnsupported
}

// IsSupported reports whether path has an image or video extension.
func (s *Scanner) IsSupported(path string) bool {
	return s.Classify(path) != models.FileTypeUnsupported
}

// Scan returns the sorted absolute paths of all supported regular files under root.
// An unreadable root is an error. Unreadable entries below root are skipped and reported
// through an error wrapping ErrIncomplete, returned alongside the paths that were found.
func (s *Scanner) Scan(ctx context.Context, root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	var (
		paths      []string
		unreadable []string
		firstErr   error
	)
	err = s.walk(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			s.logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(walkErr))
			if firstErr == nil {
				firstErr = walkErr
			}
			unreadable = append(unreadable, path)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if s.skipHidden && path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !s.IsSupported(path) {
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks and other special entries count only when they resolve to a regular file.
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	if len(unreadable) > 0 {
		return paths, fmt.Errorf("%w: %d unreadable entries under %s, first %s: %v", ErrIncomplete, len(unreadable), root, unreadable[0], firstErr)
	}
	return paths, nil
}
