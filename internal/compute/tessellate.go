package compute

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"projection-mapper/internal/geometry"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/projection"
)

// tessellate subdivides the active mesh near the camera frame edges and
// installs the result as the active alternate buffer.
func (d *CPU) tessellate(ctx context.Context, g *geometry.Geometry, u Uniforms) error {
	var mesh *geometry.Mesh
	g.View(func(m *geometry.Mesh, _ []geometry.Annexe) { mesh = m.Clone() })

	mvp := u.MVP()
	for level := 0; level < max(u.Levels, 1); level++ {
		next, split, err := d.subdivide(ctx, mesh, mvp, u.BlendWidth, u.Precision)
		if err != nil {
			return err
		}
		mesh = next
		if split == 0 {
			break
		}
	}
	g.SetAlternate(mesh)
	g.UseAlternate(true)
	return nil
}

type corner struct {
	p  mathutil.Vec3
	uv mathutil.Vec2
	n  mathutil.Vec3
}

func mid(a, b corner) corner {
	return corner{
		p:  a.p.Lerp(b.p, 0.5),
		uv: mathutil.Vec2{(a.uv[0] + b.uv[0]) / 2, (a.uv[1] + b.uv[1]) / 2},
		n:  a.n.Add(b.n).Normalize(),
	}
}

// subdivide runs one 1->4 split pass. Triangles are processed in parallel
// ranges whose outputs are concatenated in order.
func (d *CPU) subdivide(ctx context.Context, m *geometry.Mesh, mvp mathutil.Mat4, width, precision float64) (*geometry.Mesh, int, error) {
	tris := m.TriangleCount()
	workers := max(d.Workers, 1)
	size := max((tris+workers-1)/workers, minChunk/3)
	nparts := 0
	if tris > 0 {
		nparts = (tris + size - 1) / size
	}
	parts := make([]*geometry.Mesh, nparts)
	counts := make([]int, nparts)

	hasUV := len(m.UVs) == len(m.Positions) && len(m.UVs) > 0
	hasN := len(m.Normals) == len(m.Positions) && len(m.Normals) > 0

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for part := 0; part < nparts; part++ {
		eg.Go(func() error {
			lo, hi := part*size, min((part+1)*size, tris)
			out := &geometry.Mesh{}
			for t := lo; t < hi; t++ {
				if t%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				var c [3]corner
				for k := range c {
					i := 3*t + k
					c[k] = corner{p: m.Positions[i], uv: m.UV(i), n: m.Normal(i)}
				}
				if !inBlendBand(c, mvp, width, precision) {
					emit(out, c, hasUV, hasN)
					continue
				}
				counts[part]++
				m01, m12, m20 := mid(c[0], c[1]), mid(c[1], c[2]), mid(c[2], c[0])
				emit(out, [3]corner{c[0], m01, m20}, hasUV, hasN)
				emit(out, [3]corner{m01, c[1], m12}, hasUV, hasN)
				emit(out, [3]corner{m20, m12, c[2]}, hasUV, hasN)
				emit(out, [3]corner{m01, m12, m20}, hasUV, hasN)
			}
			parts[part] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	res := &geometry.Mesh{}
	split := 0
	for i, p := range parts {
		split += counts[i]
		res.Positions = append(res.Positions, p.Positions...)
		res.UVs = append(res.UVs, p.UVs...)
		res.Normals = append(res.Normals, p.Normals...)
	}
	return res, split, nil
}

func emit(dst *geometry.Mesh, c [3]corner, hasUV, hasN bool) {
	p := [3]mathutil.Vec3{c[0].p, c[1].p, c[2].p}
	var uv *[3]mathutil.Vec2
	var n *[3]mathutil.Vec3
	if hasUV {
		uv = &[3]mathutil.Vec2{c[0].uv, c[1].uv, c[2].uv}
	}
	if hasN {
		n = &[3]mathutil.Vec3{c[0].n, c[1].n, c[2].n}
	}
	dst.AddTriangle(p, uv, n)
}

// inBlendBand reports whether a triangle overlaps the band of the given
// width along the frame border while one of its screen edges is longer
// than precision. Screen coordinates are in [0,1].
func inBlendBand(c [3]corner, mvp mathutil.Mat4, width, precision float64) bool {
	if precision <= 0 {
		return false
	}
	var s [3]mathutil.Vec2
	for k := range c {
		ndc, front := projection.ToNormalized(c[k].p, mvp)
		if !front {
			return false
		}
		s[k] = mathutil.Vec2{0.5 + 0.5*ndc[0], 0.5 + 0.5*ndc[1]}
	}
	minX := math.Min(s[0][0], math.Min(s[1][0], s[2][0]))
	maxX := math.Max(s[0][0], math.Max(s[1][0], s[2][0]))
	minY := math.Min(s[0][1], math.Min(s[1][1], s[2][1]))
	maxY := math.Max(s[0][1], math.Max(s[1][1], s[2][1]))
	if maxX < 0 || minX > 1 || maxY < 0 || minY > 1 {
		return false
	}
	if minX >= width && maxX <= 1-width && minY >= width && maxY <= 1-width {
		return false
	}
	longest := math.Max(s[0].Dist(s[1]), math.Max(s[1].Dist(s[2]), s[2].Dist(s[0])))
	return longest > precision
}
