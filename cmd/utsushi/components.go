package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/config"
	"github.com/hyperjump/utsushi/internal/embedding"
	"github.com/hyperjump/utsushi/internal/indexer"
	"github.com/hyperjump/utsushi/internal/keyword"
	"github.com/hyperjump/utsushi/internal/refresh"
	"github.com/hyperjump/utsushi/internal/scanner"
	"github.com/hyperjump/utsushi/internal/search"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/internal/tasks"
	"github.com/hyperjump/utsushi/internal/vector"
	"github.com/hyperjump/utsushi/internal/video"
	"github.com/hyperjump/utsushi/internal/workers"
)

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	Vectors      vector.VectorStore
	KeywordIndex *keyword.BleveIndex
	Engine       *search.Engine
	Indexer      *indexer.Indexer
	Refresh      *refresh.Coordinator
	Tasks        *tasks.Runner
}

// Close releases every component. Vector stores that snapshot on close save here.
func (c *Components) Close() {
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// newEmbedder builds the configured embedder. A CLIP embedder that cannot load falls back
// to the mock embedder so the CLI stays usable without models.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	if cfg.Embedding.Provider == "mock" {
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}
	clip, err := embedding.NewCLIPEmbedder(embedding.CLIPConfig{
		ImageModelPath: cfg.Embedding.ImageModelPath,
		TextModelPath:  cfg.Embedding.TextModelPath,
		VocabPath:      cfg.Embedding.VocabPath,
		Dimensions:     cfg.Embedding.Dimensions,
		MaxTokens:      cfg.Embedding.MaxTokens,
	})
	if err != nil {
		logger.Warn("CLIP embedder unavailable, using mock embeddings", zap.Error(err))
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}
	return clip
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Embedder = newEmbedder(cfg, logger)

	vectors, err := vector.New(ctx, vector.Options{
		Type:       cfg.Vector.Type,
		Dimensions: cfg.Embedding.Dimensions,
		Path:       cfg.Storage.VectorPath,
		Qdrant: vector.QdrantConfig{
			Host:       cfg.Vector.Qdrant.Host,
			Port:       cfg.Vector.Qdrant.Port,
			APIKey:     cfg.Vector.Qdrant.APIKey,
			UseTLS:     cfg.Vector.Qdrant.UseTLS,
			Collection: cfg.Vector.Qdrant.Collection,
		},
		Logger: logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	c.Vectors = vectors
	logger.Info("vector store initialized", zap.String("type", c.Vectors.Type()), zap.Int("size", c.Vectors.Size()))

	names, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize name index: %w", err)
	}
	c.KeywordIndex = names

	sc := scanner.New(cfg.Media.ImageExtensions, cfg.Media.VideoExtensions,
		scanner.WithSkipHidden(cfg.Media.SkipHiddenOrDefault()),
		scanner.WithLogger(logger))
	decoder := video.NewFFmpegDecoder(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, video.WithLogger(logger))
	if !decoder.Available() {
		logger.Warn("ffmpeg/ffprobe not found, videos will fail to index",
			zap.String("ffmpeg", cfg.Media.FFmpegPath), zap.String("ffprobe", cfg.Media.FFprobePath))
	}

	poolSize := cfg.Index.Workers
	if poolSize <= 0 {
		poolSize = workers.ForCPU(0)
	}
	c.Indexer = indexer.New(store, c.Embedder, c.Vectors, sc, decoder,
		video.NewThumbnailWriter(cfg.Media.ThumbnailSize, cfg.Media.ThumbnailQuality),
		indexer.Config{CacheDir: cfg.Storage.CacheDir, FrameSampleRate: cfg.Media.FrameSampleRate},
		indexer.WithLogger(logger),
		indexer.WithKeywordIndex(c.KeywordIndex),
		indexer.WithWorkers(workers.NewPool(poolSize)),
	)
	c.Refresh = refresh.New(store, sc, c.Indexer, refresh.WithLogger(logger))
	c.Tasks = tasks.NewRunner(tasks.WithLogger(logger))
	c.Engine = search.NewEngine(store,
		embedding.NewCachedEmbedder(c.Embedder, cfg.Embedding.CacheSize),
		c.Vectors, cfg.Search,
		search.WithLogger(logger),
		search.WithKeywordIndex(c.KeywordIndex),
	)
	return c, nil
}
