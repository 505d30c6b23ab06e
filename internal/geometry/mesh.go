// Package geometry holds triangle meshes together with the per-vertex
// blending annexe and the alternate buffers produced by tessellation.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"projection-mapper/internal/mathutil"
)

// ErrMalformed reports inconsistent or truncated geometry data.
var ErrMalformed = errors.New("geometry: malformed data")

// Mesh is a triangle soup: vertices 3i, 3i+1 and 3i+2 form triangle i.
// UVs and Normals are either empty or parallel to Positions.
type Mesh struct {
	Positions []mathutil.Vec3
	UVs       []mathutil.Vec2
	Normals   []mathutil.Vec3
}

func (m *Mesh) VertexCount() int   { return len(m.Positions) }
func (m *Mesh) TriangleCount() int { return len(m.Positions) / 3 }

// Validate checks the layout invariants.
func (m *Mesh) Validate() error {
	n := len(m.Positions)
	switch {
	case n%3 != 0:
		return fmt.Errorf("%w: %d vertices is not a whole number of triangles", ErrMalformed, n)
	case len(m.UVs) != 0 && len(m.UVs) != n:
		return fmt.Errorf("%w: %d uvs for %d vertices", ErrMalformed, len(m.UVs), n)
	case len(m.Normals) != 0 && len(m.Normals) != n:
		return fmt.Errorf("%w: %d normals for %d vertices", ErrMalformed, len(m.Normals), n)
	}
	return nil
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	return &Mesh{
		Positions: append([]mathutil.Vec3(nil), m.Positions...),
		UVs:       append([]mathutil.Vec2(nil), m.UVs...),
		Normals:   append([]mathutil.Vec3(nil), m.Normals...),
	}
}

// UV returns the texture coordinate of vertex i, zero when absent.
func (m *Mesh) UV(i int) mathutil.Vec2 {
	if i < len(m.UVs) {
		return m.UVs[i]
	}
	return mathutil.Vec2{}
}

// Normal returns the normal of vertex i, or the face normal of its triangle
// when the mesh carries none.
func (m *Mesh) Normal(i int) mathutil.Vec3 {
	if i < len(m.Normals) {
		return m.Normals[i]
	}
	t := i - i%3
	a, b, c := m.Positions[t], m.Positions[t+1], m.Positions[t+2]
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}

// AddTriangle appends one triangle. uv and normal may be nil.
func (m *Mesh) AddTriangle(p [3]mathutil.Vec3, uv *[3]mathutil.Vec2, normal *[3]mathutil.Vec3) {
	m.Positions = append(m.Positions, p[:]...)
	if uv != nil {
		m.UVs = append(m.UVs, uv[:]...)
	}
	if normal != nil {
		m.Normals = append(m.Normals, normal[:]...)
	}
}

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() (lo, hi mathutil.Vec3) {
	if len(m.Positions) == 0 {
		return lo, hi
	}
	lo = mathutil.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi = mathutil.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, p := range m.Positions {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], p[k])
			hi[k] = math.Max(hi[k], p[k])
		}
	}
	return lo, hi
}

// Nearest returns the index of the vertex closest to p, or -1.
func (m *Mesh) Nearest(p mathutil.Vec3) (int, float64) {
	best, index := math.MaxFloat64, -1
	for i, v := range m.Positions {
		if d := v.Dist(p); d < best {
			best, index = d, i
		}
	}
	return index, best
}
