// Package raster is a software rasterizer with the fill modes the mapping
// engine needs: color, texture, UV encoding, primitive ids and blended.
package raster

import (
	"projection-mapper/internal/geometry"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/projection"
)

// DefaultColor is used when a mesh has neither texture nor color.
var DefaultColor = [4]float64{0.63, 0.63, 0.67, 1}

// DrawMesh projects m with mvp and rasterizes every triangle into fb.
// factors, used by FillBlended, holds one value per vertex. Triangles with a
// vertex behind the camera are skipped. Returns the number of triangles
// handed to the rasterizer.
func DrawMesh(fb *FrameBuffer, m *geometry.Mesh, mvp mathutil.Mat4, st State, factors []float64) int {
	if m == nil || m.VertexCount() == 0 {
		return 0
	}
	px, py, pz, iw := projection.ProjectVertices(m.Positions, mvp, fb.Width, fb.Height)

	if st.Color == [4]float64{} {
		st.Color = DefaultColor
	}
	// Compute default color (average of texture)
	if st.Texture != nil && len(m.UVs) == 0 {
		st.Color = AverageColor(st.Texture)
		st.Texture = nil
	}

	drawn := 0
	for t := 0; t < m.TriangleCount(); t++ {
		var tri [3]Vertex
		behind := false
		for k := 0; k < 3; k++ {
			i := 3*t + k
			if iw[i] == 0 {
				behind = true
				break
			}
			uv := m.UV(i)
			f := 1.0
			if i < len(factors) {
				f = factors[i]
			}
			tri[k] = Vertex{X: px[i], Y: py[i], Z: pz[i], IW: iw[i], U: uv[0], V: uv[1], Factor: f}
		}
		if behind {
			continue
		}
		RasterizeTriangle(fb, tri, &st, t)
		drawn++
	}
	return drawn
}
