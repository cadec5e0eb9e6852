// Package embedding turns images, video frames and query text into vectors in a shared space.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/hyperjump/utsushi/pkg/utils"
)

// Embedder produces vector embeddings for images and text. Image and text vectors must
// be comparable by cosine similarity.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedFrame(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Close() error
}

// ErrInvalidVector is returned when an embedding is empty, has the wrong length, or holds NaN/Inf.
var ErrInvalidVector = errors.New("invalid embedding vector")

// ValidateVector checks vec is a usable embedding of length dim.
// A dim of zero skips the length check.
func ValidateVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidVector, len(vec), dim)
	}
	if !utils.AllFinite(vec) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidVector)
	}
	return nil
}
