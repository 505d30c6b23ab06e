package geometry

import (
	"projection-mapper/internal/mathutil"
)

// Plane returns a size×size square in the XY plane centred on the origin,
// facing +Z, split into div×div quads. UVs span [0,1].
func Plane(size float64, div int) *Mesh {
	if div < 1 {
		div = 1
	}
	m := &Mesh{}
	n := mathutil.Vec3{0, 0, 1}
	normals := [3]mathutil.Vec3{n, n, n}
	step := 1 / float64(div)
	at := func(i, j int) (mathutil.Vec3, mathutil.Vec2) {
		u, v := float64(i)*step, float64(j)*step
		return mathutil.Vec3{(u - 0.5) * size, (v - 0.5) * size, 0}, mathutil.Vec2{u, v}
	}
	for j := 0; j < div; j++ {
		for i := 0; i < div; i++ {
			p00, t00 := at(i, j)
			p10, t10 := at(i+1, j)
			p11, t11 := at(i+1, j+1)
			p01, t01 := at(i, j+1)
			m.AddTriangle([3]mathutil.Vec3{p00, p10, p11}, &[3]mathutil.Vec2{t00, t10, t11}, &normals)
			m.AddTriangle([3]mathutil.Vec3{p00, p11, p01}, &[3]mathutil.Vec2{t00, t11, t01}, &normals)
		}
	}
	return m
}

// Cube returns an axis-aligned cube of the given edge length centred on
// the origin, with outward normals and a full [0,1] UV square per face.
func Cube(size float64) *Mesh {
	h := size / 2
	type face struct {
		n, u, v mathutil.Vec3
	}
	faces := []face{
		{mathutil.Vec3{1, 0, 0}, mathutil.Vec3{0, 1, 0}, mathutil.Vec3{0, 0, 1}},
		{mathutil.Vec3{-1, 0, 0}, mathutil.Vec3{0, 0, 1}, mathutil.Vec3{0, 1, 0}},
		{mathutil.Vec3{0, 1, 0}, mathutil.Vec3{0, 0, 1}, mathutil.Vec3{1, 0, 0}},
		{mathutil.Vec3{0, -1, 0}, mathutil.Vec3{1, 0, 0}, mathutil.Vec3{0, 0, 1}},
		{mathutil.Vec3{0, 0, 1}, mathutil.Vec3{1, 0, 0}, mathutil.Vec3{0, 1, 0}},
		{mathutil.Vec3{0, 0, -1}, mathutil.Vec3{0, 1, 0}, mathutil.Vec3{1, 0, 0}},
	}
	m := &Mesh{}
	for _, f := range faces {
		c := f.n.Scale(h)
		corner := func(a, b float64) mathutil.Vec3 {
			return c.Add(f.u.Scale(a * h)).Add(f.v.Scale(b * h))
		}
		p00, p10, p11, p01 := corner(-1, -1), corner(1, -1), corner(1, 1), corner(-1, 1)
		normals := [3]mathutil.Vec3{f.n, f.n, f.n}
		m.AddTriangle([3]mathutil.Vec3{p00, p10, p11},
			&[3]mathutil.Vec2{{0, 0}, {1, 0}, {1, 1}}, &normals)
		m.AddTriangle([3]mathutil.Vec3{p00, p11, p01},
			&[3]mathutil.Vec2{{0, 0}, {1, 1}, {0, 1}}, &normals)
	}
	return m
}
