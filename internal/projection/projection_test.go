package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/mathutil"
)

func TestFrustumSymmetric(t *testing.T) {
	f := FrustumBounds(90, 0.5, 0.5, 0.1, 100, 512, 512)
	assert.InDelta(t, 0.1, f.Top, 1e-12)
	assert.InDelta(t, -f.Right, f.Left, 1e-12)
	assert.InDelta(t, -f.Top, f.Bottom, 1e-12)
	assert.InDelta(t, f.Top, f.Right, 1e-12)
}

func TestFrustumPrincipalPointShift(t *testing.T) {
	base := FrustumBounds(40, 0.5, 0.5, 1, 10, 400, 200)
	shifted := FrustumBounds(40, 0.75, 0.25, 1, 10, 400, 200)

	height := base.Top - base.Bottom
	width := base.Right - base.Left
	assert.InDelta(t, 2*base.Top/base.Right, height/width*2, 1e-12)

	// cx above 0.5 moves the window left, cy below 0.5 moves it up
	assert.InDelta(t, base.Left-0.25*width, shifted.Left, 1e-12)
	assert.InDelta(t, base.Right-0.25*width, shifted.Right, 1e-12)
	assert.InDelta(t, base.Top+0.25*height, shifted.Top, 1e-12)
	assert.InDelta(t, base.Bottom+0.25*height, shifted.Bottom, 1e-12)
}

func TestViewTargetFallback(t *testing.T) {
	eye := mathutil.Vec3{1, 2, 3}
	up := mathutil.Vec3{0, 0, 1}
	assert.Equal(t, mathutil.Vec3{1, 3, 3}, ViewTarget(eye, eye, up))
	assert.Equal(t, mathutil.Vec3{}, ViewTarget(eye, mathutil.Vec3{}, up))

	m := ViewMatrix(eye, eye, up)
	for _, v := range m {
		assert.False(t, math.IsNaN(v), "NaN in fallback view matrix")
	}
}

func TestProjectUnProject(t *testing.T) {
	view := ViewMatrix(mathutil.Vec3{3, -4, 2.5}, mathutil.Vec3{0.5, 0.5, 0.5}, mathutil.Vec3{0, 0, 1})
	proj := ProjectionMatrix(40, 0.45, 0.55, 0.1, 100, 320, 240)
	vp := NewViewport(320, 240)

	p := mathutil.Vec3{0.2, 0.9, 0.1}
	win := Project(p, view, proj, vp)
	assert.True(t, win[2] > 0 && win[2] < 1)

	back, ok := UnProject(win, view, proj, vp)
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, p[i], back[i], 1e-7)
	}

	// the look-at target projects onto the principal point
	c := Project(mathutil.Vec3{0.5, 0.5, 0.5}, view, proj, vp)
	assert.InDelta(t, 0.45*320, c[0], 1e-9)
	assert.InDelta(t, 0.55*240, c[1], 1e-9)
}

func TestProjectVerticesMatchesProject(t *testing.T) {
	view := ViewMatrix(mathutil.Vec3{0, -5, 0}, mathutil.Vec3{}, mathutil.Vec3{0, 0, 1})
	proj := ProjectionMatrix(50, 0.5, 0.5, 0.1, 100, 64, 48)
	mvp := mathutil.Mat4Mul(proj, view)

	pts := []mathutil.Vec3{{0.3, 0, 0.2}, {0, 10, 0}}
	px, py, pz, iw := ProjectVertices(pts, mvp, 64, 48)

	win := Project(pts[0], view, proj, NewViewport(64, 48))
	assert.InDelta(t, win[0], px[0], 1e-9)
	assert.InDelta(t, 48-win[1], py[0], 1e-9)
	assert.InDelta(t, win[2], pz[0], 1e-9)
	assert.Greater(t, iw[0], 0.0)

	s := PixelToNormalized(px[0], py[0], 64, 48)
	x, y := NormalizedToPixel(s, 64, 48)
	assert.InDelta(t, px[0], x, 1e-9)
	assert.InDelta(t, py[0], y, 1e-9)

	// behind the camera
	back := []mathutil.Vec3{{0, -10, 0}}
	_, _, _, iw = ProjectVertices(back, mvp, 64, 48)
	assert.Zero(t, iw[0])
	_, ok := ToNormalized(back[0], mvp)
	assert.False(t, ok)
}
