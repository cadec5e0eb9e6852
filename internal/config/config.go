// Package config provides configuration loading and structs for the utsushi server and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Media     MediaConfig     `yaml:"media"`
	Vector    VectorConfig    `yaml:"vector"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database, cache, and indices.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	CacheDir       string `yaml:"cache_dir"`
	VectorPath     string `yaml:"vector_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig holds CLIP embedder settings.
type EmbeddingConfig struct {
	// Provider is "clip" or "mock".
	Provider       string `yaml:"provider"`
	ImageModelPath string `yaml:"image_model_path"`
	TextModelPath  string `yaml:"text_model_path"`
	VocabPath      string `yaml:"vocab_path"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
}

// MediaConfig holds file classification and video sampling settings.
type MediaConfig struct {
	ImageExtensions  []string `yaml:"image_extensions"`
	VideoExtensions  []string `yaml:"video_extensions"`
	FrameSampleRate  float64  `yaml:"frame_sample_rate"`
	ThumbnailSize    int      `yaml:"thumbnail_size"`
	ThumbnailQuality int      `yaml:"thumbnail_quality"`
	FFmpegPath       string   `yaml:"ffmpeg_path"`
	FFprobePath      string   `yaml:"ffprobe_path"`
	SkipHidden       *bool    `yaml:"skip_hidden"`
}

// SkipHiddenOrDefault returns whether hidden files are skipped; defaults to true when unset.
func (m *MediaConfig) SkipHiddenOrDefault() bool {
	if m.SkipHidden != nil {
		return *m.SkipHidden
	}
	return true
}

// VectorConfig selects and configures the vector store backend.
type VectorConfig struct {
	// Type is "memory", "bolt" or "qdrant".
	Type   string       `yaml:"type"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds remote Qdrant settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// SearchConfig holds search and pagination settings.
type SearchConfig struct {
	MaxResults      int `yaml:"max_results"`
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// IndexConfig holds indexing concurrency settings.
type IndexConfig struct {
	// Workers bounds concurrent file indexing. Zero picks a value from GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := finalize(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns the default configuration when path does not exist.
// Callers pass explicit paths to Load so a missing user-supplied file stays an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = &Config{}
	if err := finalize(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finalize(cfg *Config, configDir string) error {
	if err := ApplyEnv(cfg, filepath.Join(configDir, ".env")); err != nil {
		return err
	}
	ApplyDefaults(cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.CacheDir = expandPath(cfg.Storage.CacheDir, configDir)
	cfg.Storage.VectorPath = expandPath(cfg.Storage.VectorPath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
