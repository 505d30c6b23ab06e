package camera

import (
	"context"
	"errors"
	"math"

	"projection-mapper/internal/calib"
	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/projection"
)

// AddCalibrationPoint adds a world point and selects it. An existing point
// at the same position is selected instead of being duplicated.
func (c *Camera) AddCalibrationPoint(world mathutil.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, added := c.points.Add(world); !added {
		return
	}
	for _, o := range c.objects() {
		o.AddCalibrationPoint(world)
	}
}

// RemoveCalibrationPointAt removes the point whose projection is nearest to
// the screen position (x, y in [0,1], y up).
func (c *Camera) RemoveCalibrationPointAt(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.points.Nearest(c.window(x, y), c.projector())
	p, ok := c.points.Remove(i)
	if !ok {
		return false
	}
	for _, o := range c.objects() {
		o.RemoveCalibrationPoint(p.World)
	}
	c.calibratedOnce = false
	return true
}

// RemoveCalibrationPoint removes the point at world. With unlessSet, a point
// already given a screen position is kept.
func (c *Camera) RemoveCalibrationPoint(world mathutil.Vec3, unlessSet bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calibratedOnce = false
	if !c.points.RemoveWorld(world, unlessSet) {
		return false
	}
	for _, o := range c.objects() {
		o.RemoveCalibrationPoint(world)
	}
	return true
}

// SetCalibrationPoint gives the selected point its normalized screen
// position ([-1,1], y up).
func (c *Camera) SetCalibrationPoint(screen mathutil.Vec2) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.points.SetScreen(screen) {
		return false
	}
	c.calibratedOnce = false
	return true
}

// MoveCalibrationPoint shifts the screen position of the selected point by
// a delta in pixels, then recalibrates if the camera was calibrated since
// the last change of points.
func (c *Camera) MoveCalibrationPoint(dx, dy float64) {
	c.mu.Lock()
	ok := c.points.Move(dx/float64(c.width), dy/float64(c.height))
	again := ok && c.calibratedOnce
	c.mu.Unlock()
	if again {
		c.DoCalibration()
	}
}

func (c *Camera) SelectNextCalibrationPoint() {
	c.mu.Lock()
	c.points.SelectNext()
	c.mu.Unlock()
}

func (c *Camera) SelectPreviousCalibrationPoint() {
	c.mu.Lock()
	c.points.SelectPrevious()
	c.mu.Unlock()
}

func (c *Camera) DeselectCalibrationPoint() {
	c.mu.Lock()
	c.points.Deselect()
	c.mu.Unlock()
}

// SelectedCalibrationPoint returns the selected point.
func (c *Camera) SelectedCalibrationPoint() (calib.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.points.At(c.points.Selected())
}

// CalibrationPoints returns the points as (world xyz, screen xy, isSet).
func (c *Camera) CalibrationPoints() [][6]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.points.Serialize()
}

// SetCalibrationPoints replaces the points and mirrors them on the linked
// objects.
func (c *Camera) SetCalibrationPoints(tuples [][6]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.points.Load(tuples)
	c.calibratedOnce = false
	for _, o := range c.objects() {
		for _, p := range c.points.Points() {
			o.AddCalibrationPoint(p.World)
		}
	}
}

// projector maps world points to window pixels (y up) with the current
// parameters. Callers hold mu.
func (c *Camera) projector() func(mathutil.Vec3) mathutil.Vec2 {
	mvp := mathutil.Mat4Mul(c.projectionMatrix(), c.viewMatrix())
	vp := projection.NewViewport(c.width, c.height)
	return func(p mathutil.Vec3) mathutil.Vec2 {
		win := projection.ProjectMVP(p, mvp, vp)
		return mathutil.Vec2{win[0], win[1]}
	}
}

// window converts normalized coordinates ([0,1], y up) to window pixels.
// Callers hold mu.
func (c *Camera) window(x, y float64) mathutil.Vec2 {
	return mathutil.Vec2{x * float64(c.width), y * float64(c.height)}
}

// problem snapshots the calibration input. Callers hold mu.
func (c *Camera) problem() *calib.Problem {
	return &calib.Problem{
		Points:        c.points.Points(),
		Width:         c.width,
		Height:        c.height,
		Near:          c.near,
		Far:           c.far,
		Weighted:      c.weighted,
		LockFov:       c.attrs.IsLocked("fov"),
		Fov:           c.fov,
		LockPrincipal: c.attrs.IsLocked("principalPoint"),
		Cx:            c.cx,
		Cy:            c.cy,
	}
}

// CalibrationError is the calibration objective at the current parameters:
// the mean (weighted) squared pixel distance between projected points and
// their screen positions. It is math.MaxFloat64 with no point set.
func (c *Camera) CalibrationError() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.problem().Evaluate(c.fov, c.cx, c.cy, c.viewMatrix())
}

// DoCalibration solves the camera parameters from the calibration points.
// It returns false, leaving the camera untouched, when fewer than six
// points are set or when the best fit is rejected.
func (c *Camera) DoCalibration() bool {
	c.mu.Lock()
	pb := c.problem()
	eye := c.eye
	c.mu.Unlock()

	res, err := c.opts.Solver.Solve(pb, eye)
	if errors.Is(err, calib.ErrTooFewPoints) {
		c.log.Warn("not enough calibration points", "set", pb.SetCount(), "min", calib.MinPoints)
		return false
	}
	if err != nil {
		c.log.Error("calibration failed", "err", err)
		return false
	}
	p := res.Params
	if !res.Accepted {
		c.log.Warn("calibration rejected, parameters are not good enough",
			"residual", res.Residual, "fov", p[calib.ParamFov], "cx", p[calib.ParamCx], "cy", p[calib.ParamCy])
		return false
	}

	eye, target, up := p.Pose()
	c.mu.Lock()
	if !pb.LockFov {
		c.fov = p[calib.ParamFov]
	}
	if !pb.LockPrincipal {
		c.cx, c.cy = p[calib.ParamCx], p[calib.ParamCy]
	}
	c.eye, c.target, c.up = eye, target, up
	c.calibratedOnce = true
	c.version++
	points := c.points.Serialize()
	fov, cx, cy := c.fov, c.cx, c.cy
	c.mu.Unlock()

	c.log.Info("calibration done", "run", res.ID, "residual", res.Residual, "fov", fov, "cx", cx, "cy", cy,
		"mean_px", res.MeanError, "runs", res.Runs, "discarded", res.Discarded, "took", res.Duration)

	if c.opts.Journal != nil {
		if err := c.opts.Journal.RecordCalibration(context.Background(), c.name, res, points); err != nil {
			c.log.Warn("recording calibration", "err", err)
		}
	}
	return true
}

// ScreenPosition returns the normalized screen position ([-1,1], y up) of a
// world point and whether it lies in front of the camera.
func (c *Camera) ScreenPosition(world mathutil.Vec3) (mathutil.Vec2, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ndc, front := projection.ToNormalized(world, mathutil.Mat4Mul(c.projectionMatrix(), c.viewMatrix()))
	if !front || math.IsNaN(ndc[0]) {
		return mathutil.Vec2{}, false
	}
	return mathutil.Vec2{ndc[0], ndc[1]}, true
}
