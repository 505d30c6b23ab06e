package compute

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/geometry"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/raster"
)

// identity uniforms: object positions are normalized device coordinates.
func identity() Uniforms {
	i := mathutil.Mat4Identity()
	return Uniforms{Model: i, View: i, Projection: i, BlendWidth: 0.05}
}

func allVisible(g *geometry.Geometry) {
	g.Update(func(_ *geometry.Mesh, annexe []geometry.Annexe) {
		for i := range annexe {
			annexe[i].Visible = true
		}
	})
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "transferVisibilityToAttr", TransferVisibility.String())
	assert.Equal(t, "tessellateFromCamera", Tessellate.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}

func TestContribution(t *testing.T) {
	assert.Equal(t, 1.0, Contribution(0, 0, 0.1))
	assert.Equal(t, 1.0, Contribution(0.99, 0.99, 0))
	assert.Equal(t, 0.0, Contribution(1, 0, 0.1), "frame edge")
	assert.Equal(t, 0.0, Contribution(1.2, 0, 0.1), "outside")

	// distance to the right edge 0.05, half the blend width
	assert.InDelta(t, 4.0/9, Contribution(0.9, 0, 0.1), 1e-12)
}

func TestFacing(t *testing.T) {
	n := mathutil.Vec3{0, 0, 1}
	front := mathutil.Vec3{0, 0, 5}
	back := mathutil.Vec3{0, 0, -5}
	assert.True(t, Facing(BothSides, mathutil.Vec3{}, n, back))
	assert.True(t, Facing(FrontOnly, mathutil.Vec3{}, n, front))
	assert.False(t, Facing(FrontOnly, mathutil.Vec3{}, n, back))
	assert.True(t, Facing(BackOnly, mathutil.Vec3{}, n, back))
}

func TestResetPhases(t *testing.T) {
	g := geometry.New(geometry.Plane(1, 1))
	g.Update(func(_ *geometry.Mesh, annexe []geometry.Annexe) {
		for i := range annexe {
			annexe[i] = geometry.Annexe{Visible: true, Blend: 2, Count: 3}
		}
	})
	dev := NewCPU(2)
	ctx := context.Background()

	require.NoError(t, dev.Dispatch(ctx, ResetBlending, g, Uniforms{}))
	a := g.Annexe()
	assert.True(t, a[0].Visible)
	assert.Zero(t, a[0].Blend)
	assert.Zero(t, a[0].Count)

	require.NoError(t, dev.Dispatch(ctx, ResetVisibility, g, Uniforms{}))
	assert.False(t, g.Annexe()[5].Visible)
}

func TestTransferVisibility(t *testing.T) {
	g := geometry.New(geometry.Plane(1, 1))
	fb := raster.NewFrameBuffer(3, 1)
	fb.Prim[0], fb.Object[0] = 2, 3 // triangle 1 of object 3
	fb.Prim[1], fb.Object[1] = 1, 9 // another object

	u := identity()
	u.IDs, u.Object = fb, 3
	require.NoError(t, NewCPU(1).Dispatch(context.Background(), TransferVisibility, g, u))

	a := g.Annexe()
	for i, v := range a {
		assert.Equal(t, i >= 3, v.Visible, "vertex %d", i)
	}

	assert.ErrorIs(t, NewCPU(1).Dispatch(context.Background(), TransferVisibility, g, identity()), ErrNoIDBuffer)

	fb.Prim[2], fb.Object[2] = 40, 3
	assert.Error(t, NewCPU(1).Dispatch(context.Background(), TransferVisibility, g, u))
}

func TestTransferFromRenderedIDs(t *testing.T) {
	m := geometry.Plane(2, 2)
	fb := raster.NewFrameBuffer(16, 16)
	raster.DrawMesh(fb, m, mathutil.Mat4Identity(), raster.State{Fill: raster.FillPrimitive, Object: 1}, nil)

	g := geometry.New(m)
	u := identity()
	u.IDs, u.Object = fb, 1
	require.NoError(t, NewCPU(4).Dispatch(context.Background(), TransferVisibility, g, u))
	for i, a := range g.Annexe() {
		assert.True(t, a.Visible, "vertex %d", i)
	}
}

func TestCameraContribution(t *testing.T) {
	g := geometry.New(geometry.Plane(1, 1))
	dev := NewCPU(2)
	ctx := context.Background()

	// nothing visible yet
	require.NoError(t, dev.Dispatch(ctx, CameraContribution, g, identity()))
	assert.Zero(t, g.Annexe()[0].Count)

	allVisible(g)
	require.NoError(t, dev.Dispatch(ctx, CameraContribution, g, identity()))
	require.NoError(t, dev.Dispatch(ctx, CameraContribution, g, identity()))
	for _, a := range g.Annexe() {
		assert.InDelta(t, 2, a.Blend, 1e-12)
		assert.Equal(t, 2, a.Count)
	}

	outside := geometry.New(geometry.Plane(4, 1))
	allVisible(outside)
	require.NoError(t, dev.Dispatch(ctx, CameraContribution, outside, identity()))
	assert.Zero(t, outside.Annexe()[0].Count)
}

func TestCameraContributionSideness(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		side  Sideness
		eye   mathutil.Vec3
		count int
	}{
		{BothSides, mathutil.Vec3{0, 0, -5}, 1},
		{FrontOnly, mathutil.Vec3{0, 0, 5}, 1},
		{FrontOnly, mathutil.Vec3{0, 0, -5}, 0},
		{BackOnly, mathutil.Vec3{0, 0, -5}, 1},
	} {
		g := geometry.New(geometry.Plane(1, 1))
		allVisible(g)
		u := identity()
		u.Sideness, u.Eye = tt.side, tt.eye
		require.NoError(t, NewCPU(1).Dispatch(ctx, CameraContribution, g, u))
		assert.Equal(t, tt.count, g.Annexe()[0].Count, "side %d eye %v", tt.side, tt.eye)
	}
}

func TestTessellate(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		levels int
		tris   int
	}{
		{1, 8},
		{2, 32},
	} {
		g := geometry.New(geometry.Plane(2, 1))
		u := identity()
		u.Precision, u.Levels = 0.3, tt.levels
		require.NoError(t, NewCPU(3).Dispatch(ctx, Tessellate, g, u))

		assert.True(t, g.UsingAlternate())
		m := g.Active()
		assert.Equal(t, tt.tris, m.TriangleCount())
		assert.Len(t, m.UVs, 3*tt.tris)
		assert.Len(t, m.Normals, 3*tt.tris)
		assert.Len(t, g.Annexe(), 3*tt.tris)
		lo, hi := m.Bounds()
		assert.Equal(t, mathutil.Vec3{-1, -1, 0}, lo)
		assert.Equal(t, mathutil.Vec3{1, 1, 0}, hi)
		assert.Equal(t, 2, g.Original().TriangleCount(), "original buffers kept")

		g.ResetAlternate()
		assert.Equal(t, 6, g.VertexCount())
	}
}

func TestTessellateKeepsInteriorTriangles(t *testing.T) {
	g := geometry.New(geometry.Plane(0.2, 1))
	u := identity()
	u.Precision, u.Levels = 0.01, 3
	require.NoError(t, NewCPU(1).Dispatch(context.Background(), Tessellate, g, u))
	assert.True(t, g.UsingAlternate())
	assert.Equal(t, 2, g.Active().TriangleCount())
}

func TestDispatchErrors(t *testing.T) {
	g := geometry.New(geometry.Plane(1, 1))
	assert.ErrorIs(t, NewCPU(1).Dispatch(context.Background(), Phase(42), g, Uniforms{}), ErrUnknownPhase)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewCPU(1).Dispatch(ctx, ResetBlending, g, Uniforms{}), context.Canceled)
}
