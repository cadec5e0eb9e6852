// Package indexer turns media files into relational rows plus vector store entries.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/embedding"
	"github.com/hyperjump/utsushi/internal/idgen"
	"github.com/hyperjump/utsushi/internal/keyword"
	"github.com/hyperjump/utsushi/internal/metrics"
	"github.com/hyperjump/utsushi/internal/models"
	"github.com/hyperjump/utsushi/internal/scanner"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/internal/vector"
	"github.com/hyperjump/utsushi/internal/video"
	"github.com/hyperjump/utsushi/internal/workers"
)

// Config holds the indexer settings taken from the application config.
type Config struct {
	// CacheDir receives video frame thumbnails under video_frames/{media id}.
	CacheDir string
	// FrameSampleRate is the number of frames sampled per second of video.
	FrameSampleRate float64
}

// Indexer indexes media files into storage, the vector store and an optional keyword index.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectors      vector.VectorStore
	scanner      *scanner.Scanner
	decoder      video.Decoder
	thumbs       *video.ThumbnailWriter
	config       Config
	keywordIndex keyword.Index
	pool         *workers.Pool
	logger       *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex indexes file names in k on insert and removes them on delete.
func WithKeywordIndex(k keyword.Index) Option {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithWorkers sets the pool used by IndexFiles and IndexDirectory.
func WithWorkers(p *workers.Pool) Option {
	return func(idx *Indexer) { idx.pool = p }
}

// New creates an indexer with the given dependencies.
func New(
	store storage.Storage,
	embedder embedding.Embedder,
	vectors vector.VectorStore,
	sc *scanner.Scanner,
	decoder video.Decoder,
	thumbs *video.ThumbnailWriter,
	cfg Config,
	opts ...Option,
) *Indexer {
	idx := &Indexer{
		storage:  store,
		embedder: embedder,
		vectors:  vectors,
		scanner:  sc,
		decoder:  decoder,
		thumbs:   thumbs,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.pool == nil {
		idx.pool = workers.NewPool(workers.ForCPU(0))
	}
	return idx
}

// IndexSingleFile indexes path and reports whether it is indexed afterwards.
func (idx *Indexer) IndexSingleFile(ctx context.Context, path string) bool {
	return idx.IndexFile(ctx, path).Indexed
}

// IndexFile indexes one image or video. It never panics and never leaves partial state:
// on failure every row, vector and thumbnail written for the file is removed again.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			idx.logger.Error("panic while indexing", zap.String("path", path), zap.Any("panic", r), zap.Stack("stack"))
			res = failed(path, ReasonInternal, fmt.Errorf("panic: %v", r))
		}
		idx.record(res, time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return failed(path, ReasonCanceled, err)
	}
	indexed, err := idx.storage.IsFileIndexed(ctx, path)
	if err != nil {
		return failed(path, ReasonStorage, err)
	}
	if indexed {
		idx.logger.Debug("file already indexed", zap.String("path", path))
		return Result{Path: path, Indexed: true, Skipped: true}
	}

	switch idx.scanner.Classify(path) {
	case models.FileTypeImage:
		return idx.indexImage(ctx, path)
	case models.FileTypeVideo:
		return idx.indexVideo(ctx, path)
	default:
		return failed(path, ReasonUnsupported, fmt.Errorf("unsupported file type: %s", filepath.Ext(path)))
	}
}

func (idx *Indexer) record(res Result, elapsed time.Duration) {
	if res.Skipped {
		return
	}
	if !res.Indexed {
		metrics.FilesFailed.WithLabelValues(string(res.Reason)).Inc()
		if res.Reason != ReasonCanceled {
			idx.logger.Warn("failed to index file", zap.String("path", res.Path), zap.String("reason", string(res.Reason)), zap.Error(res.Err))
		}
		return
	}
	kind := string(models.FileTypeImage)
	if res.Frames > 0 {
		kind = string(models.FileTypeVideo)
		metrics.FramesIndexed.Add(float64(res.Frames))
	}
	metrics.FilesIndexed.WithLabelValues(kind).Inc()
	metrics.FileIndexDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (idx *Indexer) indexImage(ctx context.Context, path string) Result {
	vec, err := idx.embedder.EmbedImage(ctx, path)
	if err != nil {
		return failed(path, ReasonExtraction, err)
	}
	if err := embedding.ValidateVector(vec, idx.embedder.Dimensions()); err != nil {
		return failed(path, ReasonExtraction, err)
	}

	mf := &models.MediaFile{FilePath: path, FileType: models.FileTypeImage}
	if err := idx.storage.CreateMediaFile(ctx, mf); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Result{Path: path, Indexed: true, Skipped: true}
		}
		return failed(path, ReasonStorage, err)
	}

	if _, err := idx.vectors.UpsertIfAbsent(ctx, models.VectorID(mf.ID), vec, models.ImageVectorMeta(mf)); err != nil {
		if delErr := idx.storage.DeleteMediaFile(context.WithoutCancel(ctx), mf.ID); delErr != nil {
			idx.logger.Error("failed to roll back media file", zap.Int64("id", mf.ID), zap.Error(delErr))
		}
		return failed(path, ReasonVector, err)
	}

	idx.indexName(ctx, mf)
	idx.logger.Debug("image indexed", zap.String("path", path), zap.Int64("id", mf.ID))
	return Result{Path: path, Indexed: true}
}

type sampledFrame struct {
	frame *models.VideoFrame
	vec   []float32
}

func (idx *Indexer) indexVideo(ctx context.Context, path string) Result {
	info, err := idx.decoder.Probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return failed(path, ReasonCanceled, ctx.Err())
		}
		return failed(path, ReasonContainer, err)
	}
	if info.FPS <= 0 || info.TotalFrames <= 0 {
		return failed(path, ReasonContainer, fmt.Errorf("%w: fps=%g frames=%d", video.ErrInvalidContainer, info.FPS, info.TotalFrames))
	}

	stride := video.Stride(info.FPS, idx.config.FrameSampleRate)
	mediaID := idgen.Next()
	dir := video.Dir(idx.config.CacheDir, mediaID)
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			idx.logger.Warn("failed to remove frame dir", zap.String("dir", dir), zap.Error(err))
		}
	}

	var frames []sampledFrame
	err = idx.decoder.Frames(ctx, path, info, stride, func(n int, img image.Image) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f, ok := idx.sampleFrame(ctx, path, dir, n, info.FPS, img); ok {
			frames = append(frames, f)
		}
		return nil
	})
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return failed(path, ReasonCanceled, ctx.Err())
		}
		return failed(path, ReasonContainer, err)
	}
	if len(frames) == 0 {
		cleanup()
		return failed(path, ReasonNoFrames, fmt.Errorf("no frames extracted from %s", path))
	}

	mf := &models.MediaFile{
		ID:       mediaID,
		FilePath: path,
		FileType: models.FileTypeVideo,
		Metadata: models.NewVideoMetadata(info.FPS, info.TotalFrames),
	}
	rows := make([]*models.VideoFrame, len(frames))
	for i, f := range frames {
		rows[i] = f.frame
	}
	if err := idx.storage.CreateVideo(ctx, mf, rows); err != nil {
		cleanup()
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Result{Path: path, Indexed: true, Skipped: true}
		}
		return failed(path, ReasonStorage, err)
	}

	upserted := make([]string, 0, len(frames))
	for _, f := range frames {
		id := models.FrameVectorID(mf.ID, f.frame.ID)
		if _, err := idx.vectors.UpsertIfAbsent(ctx, id, f.vec, models.FrameVectorMeta(mf, f.frame)); err != nil {
			idx.compensateVideo(mf.ID, upserted)
			cleanup()
			return failed(path, ReasonVector, err)
		}
		upserted = append(upserted, id)
	}

	idx.indexName(ctx, mf)
	idx.logger.Debug("video indexed", zap.String("path", path), zap.Int64("id", mf.ID), zap.Int("frames", len(frames)))
	return Result{Path: path, Indexed: true, Frames: len(frames)}
}

// sampleFrame writes the thumbnail for frame n and embeds it. A failed frame leaves nothing behind.
func (idx *Indexer) sampleFrame(ctx context.Context, path, dir string, n int, fps float64, img image.Image) (sampledFrame, bool) {
	thumb, err := idx.thumbs.Write(dir, n, img)
	if err != nil {
		idx.logger.Warn("failed to write frame thumbnail", zap.String("path", path), zap.Int("frame", n), zap.Error(err))
		return sampledFrame{}, false
	}
	vec, err := idx.embedder.EmbedFrame(ctx, img)
	if err == nil {
		err = embedding.ValidateVector(vec, idx.embedder.Dimensions())
	}
	if err != nil {
		idx.logger.Warn("failed to embed frame", zap.String("path", path), zap.Int("frame", n), zap.Error(err))
		_ = os.Remove(thumb)
		return sampledFrame{}, false
	}
	return sampledFrame{
		frame: &models.VideoFrame{
			ID:          idgen.Next(),
			FrameNumber: n,
			Timestamp:   video.Timestamp(n, fps),
			FramePath:   thumb,
		},
		vec: vec,
	}, true
}

// compensateVideo removes the vectors and rows of a video whose vector writes failed part way.
func (idx *Indexer) compensateVideo(mediaID int64, vectorIDs []string) {
	ctx := context.Background()
	if err := idx.vectors.DeleteByIDs(ctx, vectorIDs); err != nil {
		idx.logger.Error("failed to roll back frame vectors", zap.Int64("id", mediaID), zap.Error(err))
	}
	if err := idx.storage.DeleteMediaFile(ctx, mediaID); err != nil {
		idx.logger.Error("failed to roll back video", zap.Int64("id", mediaID), zap.Error(err))
	}
}

func (idx *Indexer) indexName(ctx context.Context, mf *models.MediaFile) {
	if idx.keywordIndex == nil {
		return
	}
	if err := idx.keywordIndex.Index(ctx, models.VectorID(mf.ID), filepath.Base(mf.FilePath), mf.FilePath); err != nil {
		idx.logger.Warn("failed to index file name", zap.String("path", mf.FilePath), zap.Error(err))
	}
}

// ProgressFunc receives the number of files finished so far and the total.
type ProgressFunc func(done, total int)

// IndexFiles indexes paths on the worker pool. progress, if set, is called once per finished
// file in completion order. Once ctx is canceled no new files start.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string, progress ProgressFunc) ([]Result, error) {
	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(paths))
	)
	err := workers.Run(ctx, idx.pool, paths, func(ctx context.Context, path string) {
		res := idx.IndexFile(ctx, path)
		mu.Lock()
		results = append(results, res)
		done := len(results)
		if progress != nil {
			progress(done, len(paths))
		}
		mu.Unlock()
	})
	return results, err
}

// IndexDirectory scans root and indexes every supported file in it.
func (idx *Indexer) IndexDirectory(ctx context.Context, root string, progress ProgressFunc) (models.IndexReport, error) {
	report := models.IndexReport{Root: root}
	paths, err := idx.scanner.Scan(ctx, root)
	if err != nil {
		if !errors.Is(err, scanner.ErrIncomplete) {
			return report, err
		}
		idx.logger.Warn("indexing the readable part of directory", zap.String("root", root), zap.Error(err))
	}
	report.Total = len(paths)
	idx.logger.Info("indexing directory", zap.String("root", root), zap.Int("files", len(paths)))

	results, err := idx.IndexFiles(ctx, paths, progress)
	for _, res := range results {
		if res.Indexed {
			report.Indexed = append(report.Indexed, res.Path)
		} else {
			report.Failed++
		}
	}
	sort.Strings(report.Indexed)
	return report, err
}

// RemoveFile deletes every row, vector, thumbnail and name entry stored for path.
// It returns false when nothing was stored for path.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (bool, error) {
	files, err := idx.storage.GetMediaFilesByPath(ctx, path)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", path, err)
	}
	if len(files) == 0 {
		return false, nil
	}
	for _, mf := range files {
		if mf.FileType == models.FileTypeVideo {
			if err := idx.removeFrames(ctx, mf); err != nil {
				return false, err
			}
		}
		if err := idx.vectors.DeleteByIDs(ctx, []string{models.VectorID(mf.ID)}); err != nil {
			return false, fmt.Errorf("failed to delete vector for %s: %w", path, err)
		}
		if err := idx.storage.DeleteMediaFile(ctx, mf.ID); err != nil {
			return false, fmt.Errorf("failed to delete media file %s: %w", path, err)
		}
		if idx.keywordIndex != nil {
			if err := idx.keywordIndex.Delete(ctx, models.VectorID(mf.ID)); err != nil {
				idx.logger.Warn("failed to delete file name", zap.String("path", path), zap.Error(err))
			}
		}
		idx.logger.Debug("file removed", zap.String("path", path), zap.Int64("id", mf.ID))
	}
	return true, nil
}

func (idx *Indexer) removeFrames(ctx context.Context, mf *models.MediaFile) error {
	frames, err := idx.storage.GetVideoFramesByMediaFileID(ctx, mf.ID)
	if err != nil {
		return fmt.Errorf("failed to list frames of %s: %w", mf.FilePath, err)
	}
	for _, vf := range frames {
		if err := idx.vectors.DeleteByIDs(ctx, []string{models.FrameVectorID(mf.ID, vf.ID)}); err != nil {
			return fmt.Errorf("failed to delete frame vector %d: %w", vf.ID, err)
		}
		if err := idx.storage.DeleteVideoFrame(ctx, vf.ID); err != nil {
			return fmt.Errorf("failed to delete frame %d: %w", vf.ID, err)
		}
	}
	dir := video.Dir(idx.config.CacheDir, mf.ID)
	if err := os.RemoveAll(dir); err != nil {
		idx.logger.Warn("failed to remove frame dir", zap.String("dir", dir), zap.Error(err))
	}
	return nil
}

