package server

import (
	"context"
	"fmt"

	"github.com/hyperjump/utsushi/internal/config"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/internal/tasks"
	"github.com/hyperjump/utsushi/internal/vector"
)

// StatusConfig is the configuration subset reported by the status endpoint.
type StatusConfig struct {
	VectorStoreType     string  `json:"vector_store_type"`
	EmbeddingProvider   string  `json:"embedding_provider,omitempty"`
	EmbeddingDimensions int     `json:"embedding_dimensions,omitempty"`
	FrameSampleRate     float64 `json:"frame_sample_rate,omitempty"`
	DatabasePath        string  `json:"database_path,omitempty"`
	CacheDir            string  `json:"cache_dir,omitempty"`
}

// StatusReport is the body of GET /api/v1/status.
type StatusReport struct {
	MediaFiles      int64              `json:"media_files"`
	VideoFrames     int64              `json:"video_frames"`
	Folders         int                `json:"folders"`
	VectorStoreSize int                `json:"vector_store_size"`
	DiskUsage       *storage.DiskUsage `json:"disk_usage,omitempty"`
	Task            *tasks.Status      `json:"task,omitempty"`
	Config          *StatusConfig      `json:"config,omitempty"`
}

// BuildStatus collects library counts and configuration. runner and cfg may be nil.
func BuildStatus(
	ctx context.Context,
	store storage.Storage,
	vectors vector.VectorStore,
	runner *tasks.Runner,
	cfg *config.Config,
) (*StatusReport, error) {
	mediaCount, err := store.CountMediaFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("count media files: %w", err)
	}
	frameCount, err := store.CountVideoFrames(ctx)
	if err != nil {
		return nil, fmt.Errorf("count video frames: %w", err)
	}
	folders, err := store.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}

	report := &StatusReport{
		MediaFiles:      mediaCount,
		VideoFrames:     frameCount,
		Folders:         len(folders),
		VectorStoreSize: vectors.Size(),
		Config:          &StatusConfig{VectorStoreType: vectors.Type()},
	}
	if runner != nil {
		st := runner.Status()
		report.Task = &st
	}
	if cfg != nil {
		report.Config.EmbeddingProvider = cfg.Embedding.Provider
		report.Config.EmbeddingDimensions = cfg.Embedding.Dimensions
		report.Config.FrameSampleRate = cfg.Media.FrameSampleRate
		report.Config.DatabasePath = cfg.Storage.DatabasePath
		report.Config.CacheDir = cfg.Storage.CacheDir

		usage, err := storage.MeasureDiskUsage(storage.DiskPaths{
			Database:   cfg.Storage.DatabasePath,
			Vectors:    cfg.Storage.VectorPath,
			NameIndex:  cfg.Storage.BleveIndexPath,
			Thumbnails: cfg.Storage.CacheDir,
		})
		if err == nil {
			report.DiskUsage = &usage
		}
	}
	return report, nil
}
