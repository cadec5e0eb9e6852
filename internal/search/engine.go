// Package search answers text, example-image and file-name queries over the indexed media.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/config"
	"github.com/hyperjump/utsushi/internal/embedding"
	"github.com/hyperjump/utsushi/internal/keyword"
	"github.com/hyperjump/utsushi/internal/metrics"
	"github.com/hyperjump/utsushi/internal/models"
	"github.com/hyperjump/utsushi/internal/storage"
	"github.com/hyperjump/utsushi/internal/vector"
)

// ErrNameSearchDisabled is returned by NameSearch when no keyword index is configured.
var ErrNameSearchDisabled = errors.New("name search is not enabled")

// Engine runs semantic and name searches.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectors      vector.VectorStore
	keywordIndex keyword.Index
	config       config.SearchConfig
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithKeywordIndex enables NameSearch over k.
func WithKeywordIndex(k keyword.Index) Option {
	return func(e *Engine) { e.keywordIndex = k }
}

// NewEngine creates a search engine. Text query embeddings are not cached here; wrap the
// embedder with embedding.NewCachedEmbedder for that.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	vectors vector.VectorStore,
	cfg config.SearchConfig,
	opts ...Option,
) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 200
	}
	e := &Engine{
		storage:  store,
		embedder: embedder,
		vectors:  vectors,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TextSearch ranks indexed images and video frames by similarity to the query text.
func (e *Engine) TextSearch(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	if err := query.ValidateText(e.config.DefaultPageSize, e.config.MaxPageSize); err != nil {
		return nil, err
	}
	return e.semanticSearch(ctx, "text", query, query.Text, func(ctx context.Context) ([]float32, error) {
		return e.embedder.EmbedText(ctx, query.Text)
	})
}

// ImageSearch ranks indexed images and video frames by similarity to the image at query.ImagePath.
func (e *Engine) ImageSearch(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	if err := query.ValidateImage(e.config.DefaultPageSize, e.config.MaxPageSize); err != nil {
		return nil, err
	}
	return e.semanticSearch(ctx, "image", query, query.ImagePath, func(ctx context.Context) ([]float32, error) {
		return e.embedder.EmbedImage(ctx, query.ImagePath)
	})
}

func (e *Engine) semanticSearch(
	ctx context.Context,
	kind string,
	query *models.SearchQuery,
	label string,
	embed func(context.Context) ([]float32, error),
) (*models.SearchResponse, error) {
	startTime := time.Now()
	defer func() { metrics.SearchDuration.WithLabelValues(kind).Observe(time.Since(startTime).Seconds()) }()

	resp := &models.SearchResponse{
		Results:  []*models.SearchResult{},
		Page:     query.Page,
		PageSize: query.PageSize,
		Query:    label,
	}

	count, err := e.storage.CountMediaFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("count media files: %w", err)
	}
	if count == 0 {
		resp.IndexEmpty = true
		resp.QueryTime = time.Since(startTime).Milliseconds()
		return resp, nil
	}

	vec, err := embed(ctx)
	if err == nil {
		err = embedding.ValidateVector(vec, e.embedder.Dimensions())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("query embedding failed", zap.String("kind", kind), zap.String("query", label), zap.Error(err))
		resp.QueryTime = time.Since(startTime).Milliseconds()
		return resp, nil
	}

	matches, err := e.vectors.Query(ctx, vec, e.config.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	metrics.VectorStoreSize.Set(float64(e.vectors.Size()))

	resp.Total = len(matches)
	start, end := pageBounds(resp.Total, query.Page, query.PageSize)
	for i, m := range matches[start:end] {
		r, err := e.hydrate(ctx, m)
		if err != nil {
			e.logger.Warn("dropping unresolvable match", zap.String("id", m.ID), zap.Error(err))
			continue
		}
		r.Rank = start + i + 1
		resp.Results = append(resp.Results, r)
	}
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}

// pageBounds returns the slice bounds of page (1-based) over total items.
func pageBounds(total, page, pageSize int) (int, int) {
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

// hydrate turns a vector match into a result, reading storage only for fields the
// vector metadata lacks.
func (e *Engine) hydrate(ctx context.Context, m *vector.Match) (*models.SearchResult, error) {
	mediaID, frameID, err := models.ParseVectorID(m.ID)
	if err != nil {
		return nil, err
	}
	r := &models.SearchResult{
		ID:           m.ID,
		Score:        m.Score,
		MediaFileID:  mediaID,
		VideoFrameID: frameID,
		FilePath:     metaString(m.Meta, models.MetaKeyFilePath),
		FramePath:    metaString(m.Meta, models.MetaKeyFramePath),
		FileType:     models.FileType(metaString(m.Meta, models.MetaKeyFileType)),
	}
	if r.FileType == "" {
		r.FileType = models.FileTypeImage
		if frameID != 0 {
			r.FileType = models.FileTypeVideoFrame
		}
	}

	if r.FilePath == "" {
		mf, err := e.storage.GetMediaFile(ctx, mediaID)
		if err != nil {
			return nil, err
		}
		r.FilePath = mf.FilePath
	}

	if frameID == 0 {
		return r, nil
	}
	ts, ok := metaFloat(m.Meta, models.MetaKeyTimestamp)
	if !ok || r.FramePath == "" {
		vf, err := e.storage.GetVideoFrame(ctx, frameID)
		if err != nil {
			return nil, err
		}
		ts = vf.Timestamp
		r.FramePath = vf.FramePath
	}
	r.Timestamp = &ts
	return r, nil
}

// NameSearch finds media files whose file name matches query. Scores are normalized
// so the best hit scores 1.
func (e *Engine) NameSearch(ctx context.Context, query string, limit int) (*models.SearchResponse, error) {
	if e.keywordIndex == nil {
		return nil, ErrNameSearchDisabled
	}
	startTime := time.Now()
	defer func() { metrics.SearchDuration.WithLabelValues("name").Observe(time.Since(startTime).Seconds()) }()

	if limit <= 0 {
		limit = e.config.DefaultPageSize
	}
	if e.config.MaxPageSize > 0 && limit > e.config.MaxPageSize {
		limit = e.config.MaxPageSize
	}

	hits, err := e.keywordIndex.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("name search: %w", err)
	}
	scores := normalizeScores(hits)

	resp := &models.SearchResponse{
		Results:  []*models.SearchResult{},
		Page:     1,
		PageSize: limit,
		Query:    query,
	}
	for _, h := range hits {
		mediaID, _, err := models.ParseVectorID(h.ID)
		if err != nil {
			e.logger.Warn("invalid keyword document id", zap.String("id", h.ID))
			continue
		}
		mf, err := e.storage.GetMediaFile(ctx, mediaID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, &models.SearchResult{
			ID:          h.ID,
			Score:       scores[h.ID],
			Rank:        len(resp.Results) + 1,
			MediaFileID: mf.ID,
			FilePath:    mf.FilePath,
			FileType:    mf.FileType,
		})
	}
	resp.Total = len(resp.Results)
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}

// normalizeScores divides keyword scores by the best one.
func normalizeScores(hits []*keyword.Result) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	var maxScore float64
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		if maxScore > 0 {
			normalized[h.ID] = h.Score / maxScore
		}
	}
	return normalized
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

// metaFloat reads a number that may have been decoded from JSON or a Qdrant payload.
func metaFloat(meta map[string]any, key string) (float64, bool) {
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
