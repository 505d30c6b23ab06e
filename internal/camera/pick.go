package camera

import (
	"math"

	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/projection"
)

// Picks read the depth of the last render. Coordinates are normalized to
// [0,1] with y going up, as in window space.

// PickFragment returns the world position of the surface drawn at (x, y)
// and its depth along the camera axis (negative in front of the camera).
func (c *Camera) PickFragment(x, y float64) (world mathutil.Vec3, depth float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	world, ok = c.fragment(x, y)
	if !ok {
		return world, 0, false
	}
	return world, c.lastVP.view.MulPoint(world)[2], true
}

// fragment unprojects the depth under (x, y). Callers hold mu.
func (c *Camera) fragment(x, y float64) (mathutil.Vec3, bool) {
	fb := c.last
	if fb == nil || fb.Width == 0 || fb.Height == 0 {
		return mathutil.Vec3{}, false
	}
	wx := min(max(x*float64(fb.Width), 0), float64(fb.Width)-0.5)
	wy := min(max(y*float64(fb.Height), 0), float64(fb.Height)-0.5)
	px, py := int(wx), fb.Height-1-int(wy)
	depth := fb.Depth[py*fb.Width+px]
	if depth >= 1 {
		return mathutil.Vec3{}, false
	}
	win := mathutil.Vec3{float64(px) + 0.5, float64(fb.Height-1-py) + 0.5, depth}
	return projection.UnProject(win, c.lastVP.view, c.lastVP.proj, projection.NewViewport(fb.Width, fb.Height))
}

// PickVertex returns the vertex of the linked objects closest to the
// surface drawn at (x, y).
func (c *Camera) PickVertex(x, y float64) (mathutil.Vec3, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pickVertex(x, y)
}

func (c *Camera) pickVertex(x, y float64) (mathutil.Vec3, bool) {
	frag, ok := c.fragment(x, y)
	if !ok {
		return mathutil.Vec3{}, false
	}
	best, found := math.MaxFloat64, false
	var vertex mathutil.Vec3
	for _, o := range c.objects() {
		v, d, ok := o.NearestVertex(frag)
		if ok && d < best {
			best, vertex, found = d, v, true
		}
	}
	return vertex, found
}

// PickCalibrationPoint returns the world position of the calibration point
// whose projection is nearest to (x, y).
func (c *Camera) PickCalibrationPoint(x, y float64) (mathutil.Vec3, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pickCalibrationPoint(x, y)
}

func (c *Camera) pickCalibrationPoint(x, y float64) (mathutil.Vec3, bool) {
	i := c.points.Nearest(c.window(x, y), c.projector())
	p, ok := c.points.At(i)
	return p.World, ok
}

// PickVertexOrCalibrationPoint returns whichever of the picked vertex and
// calibration point projects nearer to (x, y), preferring the point on a
// tie.
func (c *Camera) PickVertexOrCalibrationPoint(x, y float64) (mathutil.Vec3, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vertex, vok := c.pickVertex(x, y)
	point, pok := c.pickCalibrationPoint(x, y)
	switch {
	case !vok:
		return point, pok
	case !pok:
		return vertex, true
	}
	target := c.window(x, y)
	project := c.projector()
	if project(point).Dist(target) <= project(vertex).Dist(target) {
		return point, true
	}
	return vertex, true
}
