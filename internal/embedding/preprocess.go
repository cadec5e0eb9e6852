package embedding

import (
	"fmt"
	"image"

	// Decoders for formats imaging does not register itself.
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// CLIP input geometry and normalization constants.
const (
	ClipImageSize = 224
)

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// LoadImage decodes the image at path honoring EXIF orientation.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return img, nil
}

// PixelValues resizes and center-crops img to ClipImageSize and returns the
// normalized CHW tensor data expected by the CLIP vision encoder.
func PixelValues(img image.Image) []float32 {
	const size = ClipImageSize
	crop := imaging.Fill(img, size, size, imaging.Center, imaging.CatmullRom)

	out := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := crop.PixOffset(x, y)
			idx := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(crop.Pix[off+c]) / 255
				out[c*plane+idx] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
