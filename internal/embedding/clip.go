//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/utsushi/pkg/utils"
)

// CLIPConfig locates the CLIP encoder models.
type CLIPConfig struct {
	ImageModelPath string
	TextModelPath  string
	VocabPath      string
	Dimensions     int
	MaxTokens      int
}

// CLIPEmbedder runs the CLIP vision and text encoders with ONNX Runtime. It requires CGO
// and the onnxruntime shared library. Inference is serialized; the sessions reuse
// pre-allocated tensors.
type CLIPEmbedder struct {
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	imageSession *ort.AdvancedSession
	pixelTensor  *ort.Tensor[float32]
	imageOutput  *ort.Tensor[float32]

	textSession         *ort.AdvancedSession
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	textOutput          *ort.Tensor[float32]

	imageMu sync.Mutex
	textMu  sync.Mutex
}

// NewCLIPEmbedder creates both encoder sessions. The ONNX runtime environment is initialized once per process.
func NewCLIPEmbedder(cfg CLIPConfig) (*CLIPEmbedder, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 512
	}
	if cfg.MaxTokens <= 2 {
		cfg.MaxTokens = 77
	}
	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	tokenizer, err := NewWordTokenizer(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	e := &CLIPEmbedder{dimensions: cfg.Dimensions, maxTokens: cfg.MaxTokens, tokenizer: tokenizer}
	if err := e.initImage(cfg.ImageModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initText(cfg.TextModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *CLIPEmbedder) initImage(modelPath string) error {
	var err error
	e.pixelTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, ClipImageSize, ClipImageSize))
	if err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.imageSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create image encoder session: %w", err)
	}
	return nil
}

func (e *CLIPEmbedder) initText(modelPath string) error {
	var err error
	shape := ort.NewShape(1, int64(e.maxTokens))
	e.inputIDsTensor, err = ort.NewEmptyTensor[int64](shape)
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.attentionMaskTensor, err = ort.NewEmptyTensor[int64](shape)
	if err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	e.textOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor},
		[]ort.ArbitraryTensor{e.textOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text encoder session: %w", err)
	}
	return nil
}

// EmbedImage decodes the image at path and embeds it.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return e.EmbedFrame(ctx, img)
}

// EmbedFrame embeds an already decoded image.
func (e *CLIPEmbedder) EmbedFrame(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels := PixelValues(img)

	e.imageMu.Lock()
	defer e.imageMu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	return e.readOutput(e.imageOutput), nil
}

// EmbedText embeds query text.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.maxTokens)

	e.textMu.Lock()
	defer e.textMu.Unlock()

	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	return e.readOutput(e.textOutput), nil
}

func (e *CLIPEmbedder) readOutput(t *ort.Tensor[float32]) []float32 {
	out := make([]float32, e.dimensions)
	copy(out, t.GetData())
	utils.NormalizeL2(out)
	return out
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the sessions and tensors.
func (e *CLIPEmbedder) Close() error {
	var err error
	if e.imageSession != nil {
		err = e.imageSession.Destroy()
		e.imageSession = nil
	}
	if e.textSession != nil {
		if terr := e.textSession.Destroy(); err == nil {
			err = terr
		}
		e.textSession = nil
	}
	destroyTensor(e.pixelTensor)
	destroyTensor(e.imageOutput)
	destroyTensor(e.textOutput)
	destroyTensor(e.inputIDsTensor)
	destroyTensor(e.attentionMaskTensor)
	e.pixelTensor, e.imageOutput, e.textOutput = nil, nil, nil
	e.inputIDsTensor, e.attentionMaskTensor = nil, nil
	return err
}

func destroyTensor[T ort.TensorData](t *ort.Tensor[T]) {
	if t != nil {
		_ = t.Destroy()
	}
}

var (
	ortOnce    sync.Once
	ortInitErr error
)

func initRuntime() error {
	ortOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}
