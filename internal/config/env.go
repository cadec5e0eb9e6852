package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvCacheDir        = "UTSUSHI_CACHE_DIR"
	EnvDBPath          = "UTSUSHI_DB_PATH"
	EnvImageExtensions = "UTSUSHI_IMAGE_EXTENSIONS"
	EnvVideoExtensions = "UTSUSHI_VIDEO_EXTENSIONS"
	EnvFrameSampleRate = "UTSUSHI_FRAME_SAMPLE_RATE"
	EnvMaxResults      = "UTSUSHI_MAX_RESULTS"
	EnvVectorType      = "UTSUSHI_VECTOR_TYPE"
	EnvQdrantHost      = "UTSUSHI_QDRANT_HOST"
	EnvQdrantAPIKey    = "UTSUSHI_QDRANT_API_KEY"
)

// ApplyEnv loads envFile (if it exists) into the process environment and applies
// UTSUSHI_* overrides to cfg. Variables already set in the environment take precedence
// over the file.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if v := os.Getenv(EnvCacheDir); v != "" {
		cfg.Storage.CacheDir = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv(EnvImageExtensions); v != "" {
		cfg.Media.ImageExtensions = splitList(v)
	}
	if v := os.Getenv(EnvVideoExtensions); v != "" {
		cfg.Media.VideoExtensions = splitList(v)
	}
	if v := os.Getenv(EnvFrameSampleRate); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate <= 0 {
			return fmt.Errorf("%s must be a positive number, got %q", EnvFrameSampleRate, v)
		}
		cfg.Media.FrameSampleRate = rate
	}
	if v := os.Getenv(EnvMaxResults); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvMaxResults, v)
		}
		cfg.Search.MaxResults = n
	}
	if v := os.Getenv(EnvVectorType); v != "" {
		cfg.Vector.Type = v
	}
	if v := os.Getenv(EnvQdrantHost); v != "" {
		cfg.Vector.Qdrant.Host = v
	}
	if v := os.Getenv(EnvQdrantAPIKey); v != "" {
		cfg.Vector.Qdrant.APIKey = v
	}
	return nil
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
