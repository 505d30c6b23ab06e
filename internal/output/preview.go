// Package output writes what the engine produces: camera previews, the
// blending map and the manifest describing them.
package output

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
)

// Preview controls how a camera image is written.
type Preview struct {
	// Supersample is the factor the image was rendered at; it is scaled
	// back by this factor.
	Supersample int
	// MaxEdge bounds the longest edge of the written image, 0 for none.
	MaxEdge int
}

// Size returns the written size of a w×h render.
func (p Preview) Size(w, h int) (int, int) {
	if p.Supersample > 1 {
		w, h = max(1, w/p.Supersample), max(1, h/p.Supersample)
	}
	return Fit(w, h, p.MaxEdge)
}

// WritePreview writes img as a lossless WebP at path, creating the
// directory. It returns the written size.
func WritePreview(path string, img image.Image, p Preview) (image.Point, error) {
	src := NRGBA(img)
	w, h := p.Size(src.Bounds().Dx(), src.Bounds().Dy())
	out := Downsample(src, w, h)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return image.Point{}, fmt.Errorf("output: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return image.Point{}, fmt.Errorf("output: %w", err)
	}
	defer f.Close()

	if err := nativewebp.Encode(f, out, nil); err != nil {
		return image.Point{}, fmt.Errorf("output: webp encode %s: %w", path, err)
	}
	return out.Bounds().Size(), f.Close()
}
