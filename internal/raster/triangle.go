package raster

import (
	"fmt"
	"image"
	"math"

	"projection-mapper/internal/blendmap"
)

// Fill selects what a fragment writes.
type Fill int

const (
	FillColor     Fill = iota // flat color
	FillTexture               // bilinear texture lookup
	FillUV                    // texture coordinates packed on 16-bit channels
	FillPrimitive             // object id and primitive index
	FillBlended               // texture or color scaled by the vertex blending factor
)

var fillNames = [...]string{"color", "texture", "uv", "primitive", "blended"}

func (f Fill) String() string {
	if f >= 0 && int(f) < len(fillNames) {
		return fillNames[f]
	}
	return fmt.Sprintf("fill(%d)", int(f))
}

// ParseFill returns the fill mode named s.
func ParseFill(s string) (Fill, error) {
	for i, n := range fillNames {
		if n == s {
			return Fill(i), nil
		}
	}
	return 0, fmt.Errorf("raster: unknown fill %q", s)
}

// Vertex is a projected vertex: raster position (y down), window depth,
// 1/w and the attributes interpolated across the triangle.
type Vertex struct {
	X, Y, Z float64
	IW      float64
	U, V    float64
	Factor  float64
}

// State is the constant part of a draw call.
type State struct {
	Fill       Fill
	Color      [4]float64 // RGBA in [0,1]
	Texture    *image.NRGBA
	Object     uint32
	Brightness float64
}

// RasterizeTriangle fills the pixels whose centres lie inside the
// triangle, with depth test (a fragment passes when nearer than the stored
// depth) and perspective-correct attributes. prim is the primitive index
// written in FillPrimitive mode.
//
// This is the HOT PATH: no allocation in the pixel loop.
func RasterizeTriangle(fb *FrameBuffer, v [3]Vertex, st *State, prim int) {
	x0, y0, z0 := v[0].X, v[0].Y, v[0].Z
	x1, y1, z1 := v[1].X, v[1].Y, v[1].Z
	x2, y2, z2 := v[2].X, v[2].Y, v[2].Z

	// Bounding box
	minX := max(int(math.Floor(min(x0, x1, x2))), 0)
	maxX := min(int(math.Ceil(max(x0, x1, x2))), fb.Width-1)
	minY := max(int(math.Floor(min(y0, y1, y2))), 0)
	maxY := min(int(math.Ceil(max(y0, y1, y2))), fb.Height-1)
	if minX > maxX || minY > maxY {
		return
	}

	// Barycentric setup
	det := (y1-y2)*(x0-x2) + (x2-x1)*(y0-y2)
	if det > -1e-12 && det < 1e-12 {
		return
	}
	invDet := 1.0 / det

	// Precompute edge deltas
	dy12 := y1 - y2
	dx21 := x2 - x1
	dy20 := y2 - y0
	dx02 := x0 - x2

	const eps = -1e-9
	brightness := st.Brightness
	if brightness == 0 {
		brightness = 1
	}

	for sy := minY; sy <= maxY; sy++ {
		dsy := float64(sy) + 0.5 - y2
		rowOff := sy * fb.Width
		for sx := minX; sx <= maxX; sx++ {
			dsx := float64(sx) + 0.5 - x2
			w0 := (dy12*dsx + dx21*dsy) * invDet
			w1 := (dy20*dsx + dx02*dsy) * invDet
			w2 := 1.0 - w0 - w1
			if w0 < eps || w1 < eps || w2 < eps {
				continue
			}

			z := w0*z0 + w1*z1 + w2*z2
			idx := rowOff + sx
			if z < 0 || z > 1 || z >= fb.Depth[idx] {
				continue
			}

			// perspective-correct weights
			p0, p1, p2 := w0*v[0].IW, w1*v[1].IW, w2*v[2].IW
			q := p0 + p1 + p2
			if q <= 0 {
				continue
			}
			p0, p1, p2 = p0/q, p1/q, p2/q

			var c [4]float64
			switch st.Fill {
			case FillUV:
				u := p0*v[0].U + p1*v[1].U + p2*v[2].U
				vv := p0*v[0].V + p1*v[1].V + p2*v[2].V
				fb.Depth[idx] = z
				pxIdx := idx * 4
				fb.Color[pxIdx], fb.Color[pxIdx+1] = blendmap.EncodeUV(u)
				fb.Color[pxIdx+2], fb.Color[pxIdx+3] = blendmap.EncodeUV(vv)
				continue
			case FillPrimitive:
				fb.Depth[idx] = z
				fb.Object[idx] = st.Object
				fb.Prim[idx] = uint32(prim + 1)
				id := uint32(prim + 1)
				pxIdx := idx * 4
				fb.Color[pxIdx] = uint16(id)
				fb.Color[pxIdx+1] = uint16(id >> 16)
				fb.Color[pxIdx+2] = uint16(st.Object)
				fb.Color[pxIdx+3] = math.MaxUint16
				continue
			case FillTexture, FillBlended:
				if st.Texture != nil {
					u := p0*v[0].U + p1*v[1].U + p2*v[2].U
					vv := p0*v[0].V + p1*v[1].V + p2*v[2].V
					c = SampleTexture(st.Texture, u, vv)
				} else {
					c = st.Color
				}
			default:
				c = st.Color
			}

			// Skip transparent texels
			if c[3] < 8.0/255 {
				continue
			}
			scale := brightness
			if st.Fill == FillBlended {
				scale *= p0*v[0].Factor + p1*v[1].Factor + p2*v[2].Factor
			}
			fb.Depth[idx] = z

			pxIdx := idx * 4
			fb.Color[pxIdx] = clamp16(c[0] * scale)
			fb.Color[pxIdx+1] = clamp16(c[1] * scale)
			fb.Color[pxIdx+2] = clamp16(c[2] * scale)
			fb.Color[pxIdx+3] = clamp16(c[3])
		}
	}
}

func clamp16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return math.MaxUint16
	}
	return uint16(v*math.MaxUint16 + 0.5)
}
