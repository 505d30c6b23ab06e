package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/blendmap"
	"projection-mapper/internal/geometry"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/projection"
)

// With an identity mvp, positions are normalized device coordinates.
var ndc = mathutil.Mat4Identity()

func quad(x0, y0, x1, y1, z float64) *geometry.Mesh {
	m := &geometry.Mesh{}
	p := func(x, y float64) mathutil.Vec3 { return mathutil.Vec3{x, y, z} }
	uv := func(x, y float64) mathutil.Vec2 { return mathutil.Vec2{(x + 1) / 2, (y + 1) / 2} }
	m.AddTriangle([3]mathutil.Vec3{p(x0, y0), p(x1, y0), p(x1, y1)},
		&[3]mathutil.Vec2{uv(x0, y0), uv(x1, y0), uv(x1, y1)}, nil)
	m.AddTriangle([3]mathutil.Vec3{p(x0, y0), p(x1, y1), p(x0, y1)},
		&[3]mathutil.Vec2{uv(x0, y0), uv(x1, y1), uv(x0, y1)}, nil)
	return m
}

func covered(fb *FrameBuffer) int {
	n := 0
	for _, d := range fb.Depth {
		if d < 1 {
			n++
		}
	}
	return n
}

func TestDrawColorFullScreen(t *testing.T) {
	fb := NewFrameBuffer(16, 8)
	n := DrawMesh(fb, quad(-1, -1, 1, 1, 0), ndc, State{Fill: FillColor, Color: [4]float64{1, 0, 0, 1}}, nil)
	assert.Equal(t, 2, n)
	assert.Equal(t, 16*8, covered(fb))
	assert.Equal(t, [4]uint16{65535, 0, 0, 65535}, fb.At(3, 5))
	assert.InDelta(t, 0.5, fb.Depth[0], 1e-12)
}

func TestDrawPartialCoverage(t *testing.T) {
	fb := NewFrameBuffer(8, 8)
	// left half of the screen, top half in NDC (y up) is the top rows
	DrawMesh(fb, quad(-1, 0, 0, 1, 0), ndc, State{Fill: FillColor, Color: [4]float64{0, 1, 0, 1}}, nil)
	assert.Equal(t, 16, covered(fb))
	assert.Equal(t, uint16(65535), fb.At(0, 0)[1])
	assert.Equal(t, uint16(65535), fb.At(3, 3)[1])
	assert.Equal(t, uint16(0), fb.At(4, 3)[1])
	assert.Equal(t, uint16(0), fb.At(0, 4)[1])
}

func TestDepthTest(t *testing.T) {
	fb := NewFrameBuffer(4, 4)
	near := State{Fill: FillColor, Color: [4]float64{1, 0, 0, 1}}
	far := State{Fill: FillColor, Color: [4]float64{0, 0, 1, 1}}

	DrawMesh(fb, quad(-1, -1, 1, 1, -0.5), ndc, near, nil)
	DrawMesh(fb, quad(-1, -1, 1, 1, 0.5), ndc, far, nil)
	assert.Equal(t, [4]uint16{65535, 0, 0, 65535}, fb.At(1, 1), "farther quad must not overwrite")

	fb.Clear()
	DrawMesh(fb, quad(-1, -1, 1, 1, 0.5), ndc, far, nil)
	DrawMesh(fb, quad(-1, -1, 1, 1, -0.5), ndc, near, nil)
	assert.Equal(t, [4]uint16{65535, 0, 0, 65535}, fb.At(1, 1))

	fb.Clear()
	DrawMesh(fb, quad(-1, -1, 1, 1, 2), ndc, near, nil)
	assert.Equal(t, 0, covered(fb), "beyond the far plane")
}

func TestFillUVDecodes(t *testing.T) {
	fb := NewFrameBuffer(32, 32)
	DrawMesh(fb, quad(-1, -1, 1, 1, 0), ndc, State{Fill: FillUV}, nil)
	img := fb.NRGBA64()

	// pixel centre (x+0.5, y+0.5) has uv ((x+0.5)/32, 1-(y+0.5)/32)
	c := img.NRGBA64At(8, 24)
	x, y, ok := blendmap.DecodeUV(c.R, c.G, c.B, c.A, 100, 100)
	require.True(t, ok)
	assert.Equal(t, 26, x)
	assert.Equal(t, 23, y)

	layer := blendmap.Accumulate(img, 32, 32, 0)
	for i, set := range layer.IsSet {
		assert.True(t, set || i == 0, "texel %d", i)
	}
}

func TestFillPrimitive(t *testing.T) {
	fb := NewFrameBuffer(8, 8)
	DrawMesh(fb, quad(-1, -1, 1, 1, 0), ndc, State{Fill: FillPrimitive, Object: 7}, nil)

	obj, prim, ok := fb.Primitive(7, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(7), obj)
	assert.Equal(t, 0, prim, "lower right triangle")
	_, prim, ok = fb.Primitive(0, 6)
	require.True(t, ok)
	assert.Equal(t, 1, prim)

	fb.Clear()
	_, _, ok = fb.Primitive(0, 6)
	assert.False(t, ok)
}

func TestFillBlended(t *testing.T) {
	fb := NewFrameBuffer(4, 4)
	m := quad(-1, -1, 1, 1, 0)
	factors := []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	DrawMesh(fb, m, ndc, State{Fill: FillBlended, Color: [4]float64{1, 1, 1, 1}}, factors)
	c := fb.At(2, 2)
	assert.InDelta(t, 32768, int(c[0]), 1)
	assert.Equal(t, uint16(65535), c[3])
}

func TestFillTexture(t *testing.T) {
	tex := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			tex.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	fb := NewFrameBuffer(4, 4)
	DrawMesh(fb, quad(-1, -1, 1, 1, 0), ndc, State{Fill: FillTexture, Texture: tex, Brightness: 1}, nil)
	c := fb.NRGBA().NRGBAAt(1, 1)
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, c)
}

func TestBehindCameraSkipped(t *testing.T) {
	eye := mathutil.Vec3{0, 0, 5}
	view := projection.ViewMatrix(eye, mathutil.Vec3{}, mathutil.Vec3{0, 1, 0})
	proj := projection.ProjectionMatrix(60, 0.5, 0.5, 0.1, 100, 8, 8)
	mvp := mathutil.Mat4Mul(proj, view)

	fb := NewFrameBuffer(8, 8)
	behind := geometry.Plane(1, 1)
	for i := range behind.Positions {
		behind.Positions[i][2] = 10
	}
	assert.Equal(t, 0, DrawMesh(fb, behind, mvp, State{}, nil))
	assert.Equal(t, 2, DrawMesh(fb, geometry.Plane(1, 1), mvp, State{}, nil))
	assert.Greater(t, covered(fb), 0)
}

func TestSampleTextureOrientation(t *testing.T) {
	tex := image.NewNRGBA(image.Rect(0, 0, 1, 2))
	tex.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255}) // top row
	tex.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255}) // bottom row

	assert.Equal(t, [4]float64{0, 0, 1, 1}, SampleTexture(tex, 0, 0))
	top := SampleTexture(tex, 0, 0.999)
	assert.InDelta(t, 1, top[0], 0.01)
}

func TestParseFill(t *testing.T) {
	for _, f := range []Fill{FillColor, FillTexture, FillUV, FillPrimitive, FillBlended} {
		got, err := ParseFill(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFill("wireframe")
	assert.Error(t, err)
}

func TestOverlay(t *testing.T) {
	fb := NewFrameBuffer(4, 4)
	fb.Overlay(-2, 3, 2, 9, [4]float64{0, 0, 1, 1})
	assert.Equal(t, [4]uint16{0, 0, 65535, 65535}, fb.At(1, 3))
	assert.Equal(t, [4]uint16{}, fb.At(2, 3))
	assert.Equal(t, [4]uint16{}, fb.At(0, 2))
	assert.Equal(t, 0, covered(fb), "depth untouched")
}
