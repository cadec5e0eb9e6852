package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "~/.config/utsushi/media.db"
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = "~/.cache/utsushi"
	}
	if cfg.Storage.VectorPath == "" {
		cfg.Storage.VectorPath = "~/.config/utsushi/vectors.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "~/.config/utsushi/names.bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "clip"
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = "~/.config/utsushi/models/clip-vit-b32-vision.onnx"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "~/.config/utsushi/models/clip-vit-b32-text.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "~/.config/utsushi/models/vocab.txt"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Media.ImageExtensions == nil {
		cfg.Media.ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}
	}
	if cfg.Media.VideoExtensions == nil {
		cfg.Media.VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}
	}
	if cfg.Media.FrameSampleRate <= 0 {
		cfg.Media.FrameSampleRate = 0.5
	}
	if cfg.Media.ThumbnailSize == 0 {
		cfg.Media.ThumbnailSize = 320
	}
	if cfg.Media.ThumbnailQuality == 0 {
		cfg.Media.ThumbnailQuality = 85
	}
	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}
	if cfg.Media.FFprobePath == "" {
		cfg.Media.FFprobePath = "ffprobe"
	}
	if cfg.Media.SkipHidden == nil {
		t := true
		cfg.Media.SkipHidden = &t
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "bolt"
	}
	if cfg.Vector.Qdrant.Host == "" {
		cfg.Vector.Qdrant.Host = "localhost"
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "media_embeddings"
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 200
	}
	if cfg.Search.DefaultPageSize == 0 {
		cfg.Search.DefaultPageSize = 20
	}
	if cfg.Search.MaxPageSize == 0 {
		cfg.Search.MaxPageSize = 100
	}
}
