//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
	"image"
)

// CLIPConfig locates the CLIP encoder models.
type CLIPConfig struct {
	ImageModelPath string
	TextModelPath  string
	VocabPath      string
	Dimensions     int
	MaxTokens      int
}

// CLIPEmbedder stub type when built without CGO (see clip.go for the real implementation).
type CLIPEmbedder struct{}

var errNoCGO = errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// NewCLIPEmbedder returns an error when built without CGO (ONNX not available).
func NewCLIPEmbedder(_ CLIPConfig) (*CLIPEmbedder, error) {
	return nil, errNoCGO
}

func (e *CLIPEmbedder) EmbedImage(context.Context, string) ([]float32, error) { return nil, errNoCGO }

func (e *CLIPEmbedder) EmbedText(context.Context, string) ([]float32, error) { return nil, errNoCGO }

func (e *CLIPEmbedder) EmbedFrame(context.Context, image.Image) ([]float32, error) {
	return nil, errNoCGO
}

func (e *CLIPEmbedder) Dimensions() int { return 0 }

func (e *CLIPEmbedder) Close() error { return nil }
