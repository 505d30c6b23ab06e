package geometry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/mathutil"
)

func TestPlane(t *testing.T) {
	m := Plane(2, 3)
	require.NoError(t, m.Validate())
	assert.Equal(t, 3*3*2, m.TriangleCount())

	lo, hi := m.Bounds()
	assert.Equal(t, mathutil.Vec3{-1, -1, 0}, lo)
	assert.Equal(t, mathutil.Vec3{1, 1, 0}, hi)
	for i := range m.Positions {
		assert.Equal(t, mathutil.Vec3{0, 0, 1}, m.Normal(i))
		uv := m.UV(i)
		assert.InDelta(t, (m.Positions[i][0]+1)/2, uv[0], 1e-12)
	}
}

func TestCubeNormalsOutward(t *testing.T) {
	m := Cube(2)
	require.NoError(t, m.Validate())
	assert.Equal(t, 12, m.TriangleCount())

	for tri := 0; tri < m.TriangleCount(); tri++ {
		a, b, c := m.Positions[3*tri], m.Positions[3*tri+1], m.Positions[3*tri+2]
		face := b.Sub(a).Cross(c.Sub(a)).Normalize()
		assert.InDelta(t, 1, face.Dot(m.Normals[3*tri]), 1e-12, "triangle %d winding", tri)
		center := a.Add(b).Add(c).Scale(1.0 / 3)
		assert.Greater(t, center.Dot(face), 0.0)
	}
}

func TestMeshNearest(t *testing.T) {
	m := Cube(2)
	i, d := m.Nearest(mathutil.Vec3{1.1, 0.9, 1.2})
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, mathutil.Vec3{1, 1, 1}, m.Positions[i])
	assert.InDelta(t, 0.2449, d, 1e-4)

	i, _ = (&Mesh{}).Nearest(mathutil.Vec3{})
	assert.Equal(t, -1, i)
}

func TestValidate(t *testing.T) {
	m := &Mesh{Positions: make([]mathutil.Vec3, 4)}
	assert.ErrorIs(t, m.Validate(), ErrMalformed)
	m = &Mesh{Positions: make([]mathutil.Vec3, 3), UVs: make([]mathutil.Vec2, 2)}
	assert.ErrorIs(t, m.Validate(), ErrMalformed)
}

func TestAlternateBuffers(t *testing.T) {
	g := New(Plane(1, 1))
	assert.Equal(t, 6, g.VertexCount())
	assert.Len(t, g.Annexe(), 6)

	g.Update(func(_ *Mesh, a []Annexe) { a[0].Blend = 3 })
	g.SetAlternate(Plane(1, 2))
	assert.False(t, g.UsingAlternate())
	assert.Equal(t, 3.0, g.Annexe()[0].Blend)

	v := g.Version()
	g.UseAlternate(true)
	assert.True(t, g.UsingAlternate())
	assert.Greater(t, g.Version(), v)
	assert.Equal(t, 24, g.VertexCount())
	assert.Len(t, g.Annexe(), 24)
	assert.Equal(t, 6, g.Original().VertexCount())

	g.ResetAlternate()
	assert.False(t, g.UsingAlternate())
	assert.Equal(t, 6, g.VertexCount())
	assert.Len(t, g.Annexe(), 6)

	g.Update(func(_ *Mesh, a []Annexe) { a[2] = Annexe{Visible: true, Blend: 1, Count: 1} })
	g.ResetAnnexe()
	assert.Equal(t, Annexe{}, g.Annexe()[2])
}

func TestBinaryRoundTrip(t *testing.T) {
	src := New(Cube(1))
	src.SetAlternate(Plane(2, 2))
	src.UseAlternate(true)
	src.Update(func(_ *Mesh, a []Annexe) {
		a[1] = Annexe{Visible: true, Blend: 0.5, Count: 2}
	})

	data, err := src.MarshalBinary()
	require.NoError(t, err)

	dst := New(Cube(3))
	require.NoError(t, dst.UnmarshalBinary(data))
	assert.True(t, dst.UsingAlternate())
	assert.Equal(t, src.Active(), dst.Active())
	assert.Equal(t, src.Annexe(), dst.Annexe())
	assert.Equal(t, 36, dst.Original().VertexCount())

	plain, err := New(Plane(1, 1)).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, dst.UnmarshalBinary(plain))
	assert.False(t, dst.UsingAlternate())
	assert.Equal(t, 6, dst.Original().VertexCount())
}

func TestUnmarshalMalformed(t *testing.T) {
	g := New(Plane(1, 1))
	data, err := g.MarshalBinary()
	require.NoError(t, err)

	for name, b := range map[string][]byte{
		"empty":     nil,
		"magic":     append([]byte("XYZ"), data[3:]...),
		"version":   append([]byte("PMG\x09"), data[4:]...),
		"truncated": data[:len(data)-3],
	} {
		assert.ErrorIs(t, g.UnmarshalBinary(b), ErrMalformed, name)
	}
	assert.Equal(t, 6, g.VertexCount())
}

const quadOBJ = `# quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func TestParseOBJ(t *testing.T) {
	m, err := ParseOBJ(strings.NewReader(quadOBJ))
	require.NoError(t, err)
	assert.Equal(t, 2, m.TriangleCount())
	assert.Equal(t, []mathutil.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 0, 0}, {1, 1, 0}, {0, 1, 0}}, m.Positions)
	assert.Equal(t, mathutil.Vec2{1, 1}, m.UVs[2])
	assert.Equal(t, mathutil.Vec3{0, 0, 1}, m.Normals[5])
}

func TestParseOBJPartialAttributes(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nv 1 1 0\nvt 0 0\nf 1/1 2/1 3/1\nf -3 -1 -2\n"
	m, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 2, m.TriangleCount())
	assert.Nil(t, m.UVs)
	assert.Nil(t, m.Normals)
	assert.Equal(t, mathutil.Vec3{1, 0, 0}, m.Positions[3])
}

func TestParseOBJErrors(t *testing.T) {
	for name, src := range map[string]string{
		"no faces":   "v 0 0 0\n",
		"bad float":  "v 0 x 0\n",
		"bad index":  "v 0 0 0\nf 1 2 3\n",
		"short face": "v 0 0 0\nv 1 0 0\nf 1 2\n",
	} {
		_, err := ParseOBJ(strings.NewReader(src))
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}
