package video

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
)

// ThumbnailWriter stores sampled frames as JPEG thumbnails.
type ThumbnailWriter struct {
	size    int
	quality int
}

// NewThumbnailWriter creates a writer that fits frames into size x size pixels.
func NewThumbnailWriter(size, quality int) *ThumbnailWriter {
	if size <= 0 {
		size = 320
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &ThumbnailWriter{size: size, quality: quality}
}

// Dir returns the thumbnail directory for a media file.
func Dir(cacheDir string, mediaID int64) string {
	return filepath.Join(cacheDir, "video_frames", strconv.FormatInt(mediaID, 10))
}

// Write saves img as frame_{index}.jpg under dir and returns its path.
func (w *ThumbnailWriter) Write(dir string, frameIndex int, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}
	thumb := imaging.Fit(img, w.size, w.size, imaging.Lanczos)
	path := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", frameIndex))
	if err := imaging.Save(thumb, path, imaging.JPEGQuality(w.quality)); err != nil {
		return "", fmt.Errorf("save thumbnail: %w", err)
	}
	return path, nil
}
