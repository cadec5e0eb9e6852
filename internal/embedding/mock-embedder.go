package embedding

import (
	"context"
	"hash/fnv"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/hyperjump/utsushi/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and for builds without ONNX.
// Text is hashed by content; images and frames are hashed over their decoded pixels so
// identical pictures embed identically regardless of file name or format.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vectorFromSeed(uint64(HashString(text))), nil
}

// EmbedImage decodes path and embeds its pixels.
func (e *MockEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return e.EmbedFrame(ctx, img)
}

// EmbedFrame returns a deterministic embedding based on the pixel content of img.
func (e *MockEmbedder) EmbedFrame(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vectorFromSeed(PixelHash(img)), nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func (e *MockEmbedder) vectorFromSeed(seed uint64) []float32 {
	h := float64(seed%100003) + 1
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(h*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// PixelHash returns an FNV-64a hash over the RGBA pixels of img.
func PixelHash(img image.Image) uint64 {
	nrgba := imaging.Clone(img)
	h := fnv.New64a()
	var dims [8]byte
	w, ht := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	dims[0], dims[1], dims[2], dims[3] = byte(w>>24), byte(w>>16), byte(w>>8), byte(w)
	dims[4], dims[5], dims[6], dims[7] = byte(ht>>24), byte(ht>>16), byte(ht>>8), byte(ht)
	_, _ = h.Write(dims[:])
	_, _ = h.Write(nrgba.Pix)
	return h.Sum64()
}
