package calib

import (
	"math"

	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/projection"
)

// Indices into Params.
const (
	ParamFov = iota
	ParamCx
	ParamCy
	ParamEyeX
	ParamEyeY
	ParamEyeZ
	ParamYaw
	ParamPitch
	ParamRoll
	NumParams
)

// MaxFov is the widest field of view the search accepts, in degrees.
const MaxFov = 120.0

// Params is the vector of calibration unknowns:
// fov, cx, cy, eye xyz, yaw, pitch, roll (radians).
type Params [NumParams]float64

// ParamsFrom copies a solver vector.
func ParamsFrom(x []float64) Params {
	var p Params
	copy(p[:], x)
	return p
}

// Pose reconstructs eye, target and up. The forward direction is the
// rotated +X axis, up the rotated +Z axis.
func (p Params) Pose() (eye, target, up mathutil.Vec3) {
	eye = mathutil.Vec3{p[ParamEyeX], p[ParamEyeY], p[ParamEyeZ]}
	rot := mathutil.YawPitchRoll(p[ParamYaw], p[ParamPitch], p[ParamRoll])
	target = eye.Add(rot.MulVec3(mathutil.Vec3{1, 0, 0}))
	up = rot.MulVec3(mathutil.Vec3{0, 0, 1}).Normalize()
	return eye, target, up
}

// Problem is one calibration instance. Locked values replace whatever the
// solver proposes for the corresponding parameters.
type Problem struct {
	Points        []Point
	Width, Height int
	Near, Far     float64
	Weighted      bool

	LockFov       bool
	Fov           float64
	LockPrincipal bool
	Cx, Cy        float64
}

// SetCount returns the number of points taking part in the objective.
func (pb *Problem) SetCount() int {
	n := 0
	for _, p := range pb.Points {
		if p.IsSet {
			n++
		}
	}
	return n
}

// Feasible applies the locks to p and reports whether the result lies in the
// searchable region.
func (pb *Problem) Feasible(p Params) (Params, bool) {
	if pb.LockFov {
		p[ParamFov] = pb.Fov
	}
	if pb.LockPrincipal {
		p[ParamCx], p[ParamCy] = pb.Cx, pb.Cy
	}
	fov, cx, cy := p[ParamFov], p[ParamCx], p[ParamCy]
	if fov > MaxFov || fov <= 0 || math.Abs(cx-0.5) > 1 || math.Abs(cy-0.5) > 1 {
		return p, false
	}
	return p, true
}

// Objective is the mean (optionally weighted) squared pixel distance between
// projected world points and their screen targets. Infeasible parameters
// yield math.MaxFloat64.
func (pb *Problem) Objective(x []float64) float64 {
	p, ok := pb.Feasible(ParamsFrom(x))
	if !ok {
		return math.MaxFloat64
	}
	eye, target, up := p.Pose()
	return pb.Evaluate(p[ParamFov], p[ParamCx], p[ParamCy], mathutil.LookAt(eye, target, up))
}

// Evaluate is the objective for explicit intrinsics and view matrix, with
// no feasibility check. It is math.MaxFloat64 when no point is set.
func (pb *Problem) Evaluate(fov, cx, cy float64, view mathutil.Mat4) float64 {
	sum, n := 0.0, 0
	pb.eachResidual(fov, cx, cy, view, func(pt Point, dx, dy float64) {
		w := 1.0
		if pb.Weighted {
			w = pt.Weight
		}
		sum += w * (dx*dx + dy*dy)
		n++
	})
	if n == 0 {
		return math.MaxFloat64
	}
	return sum / float64(n)
}

// Residuals returns the unweighted pixel distance of every set point.
func (pb *Problem) Residuals(p Params) []float64 {
	p, _ = pb.Feasible(p)
	eye, target, up := p.Pose()
	var out []float64
	pb.eachResidual(p[ParamFov], p[ParamCx], p[ParamCy], mathutil.LookAt(eye, target, up), func(_ Point, dx, dy float64) {
		out = append(out, math.Hypot(dx, dy))
	})
	return out
}

func (pb *Problem) eachResidual(fov, cx, cy float64, view mathutil.Mat4, fn func(pt Point, dx, dy float64)) {
	proj := projection.ProjectionMatrix(fov, cx, cy, pb.Near, pb.Far, pb.Width, pb.Height)
	mvp := mathutil.Mat4Mul(proj, view)
	vp := projection.NewViewport(pb.Width, pb.Height)
	w, h := float64(pb.Width), float64(pb.Height)

	for _, pt := range pb.Points {
		if !pt.IsSet {
			continue
		}
		win := projection.ProjectMVP(pt.World, mvp, vp)
		ix := (pt.Screen[0] + 1) / 2 * w
		iy := (pt.Screen[1] + 1) / 2 * h
		fn(pt, ix-win[0], iy-win[1])
	}
}
