package output

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"projection-mapper/internal/blendmap"
)

// ErrNotGray16 is returned when reading a TIFF that is not a 16-bit
// grayscale image.
var ErrNotGray16 = errors.New("output: not a 16-bit grayscale image")

// WriteBlendingMap stores m as a deflate-compressed 16-bit grayscale TIFF:
// one sample per texel, texel (x, y) at pixel (x, y).
func WriteBlendingMap(path string, m *blendmap.Map) error {
	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			v := m.At(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("output: tiff encode %s: %w", path, err)
	}
	return f.Close()
}

// ReadBlendingMap loads a map written by WriteBlendingMap.
func ReadBlendingMap(path string) (*blendmap.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("output: tiff decode %s: %w", path, err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrNotGray16, path, img)
	}
	b := gray.Bounds()
	m := blendmap.New(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			m.Set(x, y, gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
		}
	}
	return m, nil
}
