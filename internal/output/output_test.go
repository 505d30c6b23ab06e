package output

import (
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"

	"projection-mapper/internal/blendmap"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestDownsample(t *testing.T) {
	src := solid(64, 32, color.NRGBA{200, 100, 50, 255})
	assert.Same(t, src, Downsample(src, 64, 64), "already small enough")

	out := Downsample(src, 16, 8)
	assert.Equal(t, image.Rect(0, 0, 16, 8), out.Bounds())
	assert.Equal(t, color.NRGBA{200, 100, 50, 255}, out.NRGBAAt(8, 4))
}

func TestDownsampleTransparentEdges(t *testing.T) {
	src := solid(32, 32, color.NRGBA{})
	for y := 0; y < 32; y++ {
		for x := 0; x < 16; x++ {
			src.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	out := Downsample(src, 8, 8)
	// colour is not darkened where alpha fades out
	edge := out.NRGBAAt(3, 4)
	assert.Less(t, edge.A, uint8(255))
	assert.Greater(t, edge.A, uint8(0))
	assert.Equal(t, uint8(255), edge.R)
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, edge   int
		wantW, wantH int
	}{
		{800, 600, 0, 800, 600},
		{800, 600, 1000, 800, 600},
		{800, 600, 400, 400, 300},
		{600, 800, 400, 300, 400},
		{1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		w, h := Fit(tt.w, tt.h, tt.edge)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}

func TestWritePreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "left", "0.webp")
	img := image.NewNRGBA64(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA64(x, y, color.NRGBA64{0xffff, 0, 0, 0xffff})
		}
	}
	size, err := WritePreview(path, img, Preview{Supersample: 2})
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 10), size)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	back, err := webp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), back.Bounds())
	r, g, _, a := back.At(10, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Equal(t, uint32(0xffff), a)
}

func TestBlendingMapFile(t *testing.T) {
	m := blendmap.New(70, 65)
	m.Set(0, 0, 1)
	m.Set(69, 64, 0xffff)
	m.Set(12, 30, 2*blendmap.Bias+128)
	path := filepath.Join(t.TempDir(), "maps", "blending.tiff")
	require.NoError(t, WriteBlendingMap(path, m))

	back, err := ReadBlendingMap(path)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestReadBlendingMapErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadBlendingMap(filepath.Join(dir, "missing.tiff"))
	assert.Error(t, err)

	junk := filepath.Join(dir, "junk.tiff")
	require.NoError(t, os.WriteFile(junk, []byte("not a tiff"), 0644))
	_, err = ReadBlendingMap(junk)
	assert.ErrorContains(t, err, "tiff decode")
}

func TestWriteManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := Manifest{
		Project:     "wall",
		BlendingMap: "blending.tiff",
		Images:      []ManifestEntry{{Camera: "left", Frame: 3, Image: "left/3.webp", Width: 64, Height: 48}},
	}
	require.NoError(t, WriteManifest(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Manifest
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Images, back.Images)
	assert.Equal(t, "blending.tiff", back.BlendingMap)
}
