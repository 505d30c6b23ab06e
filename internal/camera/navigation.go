package camera

import (
	"math"

	"projection-mapper/internal/mathutil"
)

// minElevation is the smallest angle, in radians, kept between the view
// direction and the vertical axis by the orbiting moves.
const minElevation = 0.2

var zAxis = mathutil.Vec3{0, 0, 1}

func (c *Camera) MoveEye(d mathutil.Vec3) {
	c.mu.Lock()
	c.eye = c.eye.Add(d)
	c.mu.Unlock()
}

func (c *Camera) MoveTarget(d mathutil.Vec3) {
	c.mu.Lock()
	c.target = c.target.Add(d)
	c.mu.Unlock()
}

// Forward moves eye and target together along the view axis. Positive
// values move backwards, away from the target.
func (c *Camera) Forward(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.eye.Sub(c.target).Normalize().Scale(value)
	c.eye = c.eye.Add(d)
	c.target = c.target.Add(d)
}

// Pan moves the camera in its focal plane; d is expressed in camera axes.
func (c *Camera) Pan(d mathutil.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inv, ok := c.viewMatrix().Inverse()
	if !ok {
		return
	}
	w := inv.MulDir(d)
	c.eye = c.eye.Add(w)
	c.target = c.target.Add(w)
}

// steepEnough reports whether the direction keeps away from the vertical.
func steepEnough(d mathutil.Vec3) bool {
	return mathutil.AngleBetween(mathutil.Vec3{d[0], d[1], math.Abs(d[2])}, zAxis) >= minElevation
}

// horizontal is the axis of elevation changes for the direction d.
func horizontal(d mathutil.Vec3) mathutil.Vec3 {
	return mathutil.Vec3{d[1], -d[0], 0}
}

// RotateAroundTarget orbits the eye around the target: yaw clockwise
// around the vertical axis, then pitch around the horizontal axis. The
// pitch is dropped when it would bring the view too close to the vertical.
// Angles are in radians.
func (c *Camera) RotateAroundTarget(yaw, pitch float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir := c.eye.Sub(c.target)
	dir = mathutil.RotZ(-yaw).MulVec3(dir)
	c.eye = c.target.Add(dir)

	if h := horizontal(dir); h.Len() > 0 {
		if next := mathutil.AxisAngle(h, pitch).Rotate(dir); steepEnough(next) {
			c.eye = c.target.Add(next)
		}
	}
}

// RotateAroundPoint orbits eye and target around p, with the same rules as
// RotateAroundTarget.
func (c *Camera) RotateAroundPoint(yaw, pitch float64, p mathutil.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rz := mathutil.RotZ(-yaw)
	c.target = p.Add(rz.MulVec3(c.target.Sub(p)))
	c.eye = p.Add(rz.MulVec3(c.eye.Sub(p)))

	h := horizontal(c.eye.Sub(c.target).Normalize())
	if h.Len() == 0 {
		return
	}
	q := mathutil.AxisAngle(h, pitch)
	target := p.Add(q.Rotate(c.target.Sub(p)))
	eye := p.Add(q.Rotate(c.eye.Sub(p)))
	if steepEnough(eye.Sub(target)) {
		c.eye, c.target = eye, target
	}
}
