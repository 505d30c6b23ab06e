package calib

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/pool"
	"projection-mapper/internal/projection"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var cubeCorners = []mathutil.Vec3{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	{0.5, 0.5, 1.2}, {1.3, 0.2, 0.4},
}

// lookingAt returns parameters of a camera at eye facing target, with zero
// pitch.
func lookingAt(fov float64, eye, target mathutil.Vec3) Params {
	d := target.Sub(eye).Normalize()
	roll := math.Asin(d[1])
	yaw := math.Atan2(-d[2], d[0])
	return Params{fov, 0.5, 0.5, eye[0], eye[1], eye[2], yaw, 0, roll}
}

// synthetic builds a problem whose points are the exact projections of
// world under truth.
func synthetic(t *testing.T, truth Params, w, h int, world []mathutil.Vec3) *Problem {
	t.Helper()
	pb := &Problem{Width: w, Height: h, Near: 0.1, Far: 100, Weighted: true}
	eye, target, up := truth.Pose()
	view := mathutil.LookAt(eye, target, up)
	proj := projection.ProjectionMatrix(truth[ParamFov], truth[ParamCx], truth[ParamCy], pb.Near, pb.Far, w, h)
	mvp := mathutil.Mat4Mul(proj, view)
	vp := projection.NewViewport(w, h)
	for _, p := range world {
		win := projection.ProjectMVP(p, mvp, vp)
		screen := mathutil.Vec2{win[0]/float64(w)*2 - 1, win[1]/float64(h)*2 - 1}
		require.Less(t, math.Abs(screen[0]), 1.0, "point %v off screen", p)
		require.Less(t, math.Abs(screen[1]), 1.0, "point %v off screen", p)
		pt := NewPoint(p)
		pt.Screen = screen
		pt.IsSet = true
		pt.Weight = EdgeWeight(screen)
		pb.Points = append(pb.Points, pt)
	}
	return pb
}

func TestPoseForward(t *testing.T) {
	eye := mathutil.Vec3{3, -4, 2.5}
	target := mathutil.Vec3{0.5, 0.5, 0.5}
	p := lookingAt(40, eye, target)

	e, tgt, up := p.Pose()
	assert.Equal(t, eye, e)
	dir := tgt.Sub(e)
	assert.InDelta(t, 1, dir.Len(), 1e-12)
	assert.InDelta(t, 0, dir.Cross(target.Sub(eye).Normalize()).Len(), 1e-12)
	assert.InDelta(t, 0, dir.Dot(up), 1e-12)
}

func TestObjectiveZeroAtTruth(t *testing.T) {
	truth := lookingAt(40, mathutil.Vec3{3, -4, 2.5}, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners)

	assert.InDelta(t, 0, pb.Objective(truth[:]), 1e-12)
	for _, r := range pb.Residuals(truth) {
		assert.InDelta(t, 0, r, 1e-6)
	}

	off := truth
	off[ParamFov] += 2
	assert.Greater(t, pb.Objective(off[:]), 1.0)
}

func TestObjectiveInfeasible(t *testing.T) {
	truth := lookingAt(40, mathutil.Vec3{3, -4, 2.5}, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners[:6])

	for name, mutate := range map[string]func(*Params){
		"fov too wide": func(p *Params) { p[ParamFov] = 121 },
		"fov zero":     func(p *Params) { p[ParamFov] = 0 },
		"cx far":       func(p *Params) { p[ParamCx] = 1.6 },
		"cy far":       func(p *Params) { p[ParamCy] = -0.6 },
	} {
		p := truth
		mutate(&p)
		assert.Equal(t, math.MaxFloat64, pb.Objective(p[:]), name)
	}

	// the boundary itself is searchable
	p := truth
	p[ParamFov] = MaxFov
	assert.Less(t, pb.Objective(p[:]), math.MaxFloat64)
}

func TestObjectiveLocks(t *testing.T) {
	truth := lookingAt(40, mathutil.Vec3{3, -4, 2.5}, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners)
	pb.LockFov, pb.Fov = true, 40
	pb.LockPrincipal, pb.Cx, pb.Cy = true, 0.5, 0.5

	p := truth
	p[ParamFov], p[ParamCx], p[ParamCy] = 300, 9, 9
	assert.InDelta(t, 0, pb.Objective(p[:]), 1e-12)

	locked, ok := pb.Feasible(p)
	assert.True(t, ok)
	assert.Equal(t, 40.0, locked[ParamFov])
	assert.Equal(t, 0.5, locked[ParamCx])
}

func TestObjectiveWeighting(t *testing.T) {
	pb := &Problem{Width: 100, Height: 100, Near: 0.1, Far: 100}
	truth := lookingAt(40, mathutil.Vec3{0, -5, 0}, mathutil.Vec3{})
	pt := NewPoint(mathutil.Vec3{})
	pt.Screen = mathutil.Vec2{0.2, 0}
	pt.IsSet = true
	pt.Weight = 0.25
	pb.Points = []Point{pt, NewPoint(mathutil.Vec3{1, 1, 1})}

	// the origin projects on the principal point: 10 px off in x
	assert.InDelta(t, 100, pb.Objective(truth[:]), 1e-6)
	pb.Weighted = true
	assert.InDelta(t, 25, pb.Objective(truth[:]), 1e-6)
}

func TestEdgeWeight(t *testing.T) {
	assert.InDelta(t, 0.5, EdgeWeight(mathutil.Vec2{0, 0}), 1e-12)
	assert.InDelta(t, 1, EdgeWeight(mathutil.Vec2{-1, 0.3}), 1e-12)
	assert.InDelta(t, 1, EdgeWeight(mathutil.Vec2{0.2, 1}), 1e-12)
	assert.InDelta(t, 0.75, EdgeWeight(mathutil.Vec2{0.5, 0}), 1e-12)
}

func TestStoreAddSelect(t *testing.T) {
	s := NewStore()
	assert.Equal(t, -1, s.Selected())

	i, added := s.Add(mathutil.Vec3{1, 2, 3})
	assert.True(t, added)
	assert.Equal(t, 0, i)
	s.Add(mathutil.Vec3{4, 5, 6})
	assert.Equal(t, 1, s.Selected())

	i, added = s.Add(mathutil.Vec3{1, 2, 3})
	assert.False(t, added)
	assert.Equal(t, 0, i)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, s.Selected())

	s.Add(mathutil.Vec3{7, 8, 9})
	s.SelectNext()
	assert.Equal(t, 0, s.Selected())
	s.SelectPrevious()
	assert.Equal(t, 2, s.Selected())
	s.SelectPrevious()
	assert.Equal(t, 1, s.Selected())

	s.Deselect()
	assert.False(t, s.SetScreen(mathutil.Vec2{0, 0}))
	assert.False(t, s.Move(0.1, 0.1))
}

func TestStoreScreenAndRemove(t *testing.T) {
	s := NewStore()
	s.Add(mathutil.Vec3{0, 0, 0})
	require.True(t, s.SetScreen(mathutil.Vec2{0, 0}))
	require.True(t, s.Move(0.5, -1))

	p, ok := s.At(0)
	require.True(t, ok)
	assert.True(t, p.IsSet)
	assert.Equal(t, mathutil.Vec2{0.5, -1}, p.Screen)
	assert.InDelta(t, 1, p.Weight, 1e-12)
	assert.Equal(t, 1, s.SetCount())

	s.Add(mathutil.Vec3{1, 0, 0})
	assert.False(t, s.RemoveWorld(mathutil.Vec3{0, 0, 0}, true))
	assert.True(t, s.RemoveWorld(mathutil.Vec3{0, 0, 0}, false))
	assert.Equal(t, -1, s.Selected())
	assert.Equal(t, 1, s.Len())

	s.Select(0)
	_, ok = s.Remove(0)
	assert.True(t, ok)
	assert.Equal(t, -1, s.Selected())
	_, ok = s.Remove(0)
	assert.False(t, ok)
}

func TestStoreNearest(t *testing.T) {
	s := NewStore()
	s.Add(mathutil.Vec3{0, 0, 0})
	s.Add(mathutil.Vec3{1, 0, 0})
	s.Add(mathutil.Vec3{0, 1, 0})
	flat := func(v mathutil.Vec3) mathutil.Vec2 { return mathutil.Vec2{v[0], v[1]} }

	assert.Equal(t, 1, s.Nearest(mathutil.Vec2{0.9, 0.2}, flat))
	assert.Equal(t, 2, s.Nearest(mathutil.Vec2{-0.1, 0.7}, flat))
	assert.Equal(t, -1, NewStore().Nearest(mathutil.Vec2{}, flat))
}

func TestStoreSerialize(t *testing.T) {
	s := NewStore()
	s.Add(mathutil.Vec3{1, 2, 3})
	s.SetScreen(mathutil.Vec2{-0.5, 0.25})
	s.Add(mathutil.Vec3{4, 5, 6})

	tuples := s.Serialize()
	assert.Equal(t, [][6]float64{
		{1, 2, 3, -0.5, 0.25, 1},
		{4, 5, 6, 0, 0, 0},
	}, tuples)

	loaded := NewStore()
	loaded.Load(append(tuples, [6]float64{1, 2, 3, 0, 0, 0}))
	assert.Equal(t, s.Points(), loaded.Points())
	assert.Equal(t, -1, loaded.Selected())
}

func TestSolveTooFewPoints(t *testing.T) {
	truth := lookingAt(40, mathutil.Vec3{3, -4, 2.5}, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners[:6])
	pb.Points[5].IsSet = false

	res, err := NewSolver(Options{Seed: 1}, nil, quiet).Solve(pb, mathutil.Vec3{3, -4, 2.5})
	assert.ErrorIs(t, err, ErrTooFewPoints)
	assert.Equal(t, 5, res.Points)
	assert.False(t, res.Accepted)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{FovJitter: -1, Trials: 2}.WithDefaults()
	assert.Equal(t, 2, o.Trials)
	assert.Equal(t, 0.0, o.FovJitter)
	assert.Equal(t, 6, o.Grid)
	assert.Equal(t, MethodSimplex, o.Method)
	assert.Equal(t, DefaultOptions(), Options{}.WithDefaults())
}

func TestSolveRecoversGroundTruth(t *testing.T) {
	if testing.Short() {
		t.Skip("full calibration search")
	}
	eye := mathutil.Vec3{3, -4, 2.5}
	truth := lookingAt(40, eye, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners)

	p := pool.New(4)
	defer p.Close()
	// The default stop residual of 0.5 ends a run as soon as the fit is
	// usable, well before the pose is recovered to these tolerances.
	res, err := NewSolver(Options{Seed: 1, StopResidual: 1e-10}, p, quiet).Solve(pb, eye)
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Less(t, res.Residual, 1e-3)
	assert.InDelta(t, 40, res.Params[ParamFov], 1)
	gotEye, gotTarget, _ := res.Params.Pose()
	_, wantTarget, _ := truth.Pose()
	assertVecNear(t, eye, gotEye, 1e-3)
	assertVecNear(t, wantTarget, gotTarget, 1e-2)
	assert.Less(t, res.MeanError, 0.05)
	assert.Equal(t, 4*36+8, res.Runs)
	assert.Equal(t, 10, res.Points)
}

func TestSolveDefaultOptions(t *testing.T) {
	if testing.Short() {
		t.Skip("full calibration search")
	}
	eye := mathutil.Vec3{3, -4, 2.5}
	truth := lookingAt(40, eye, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners)

	p := pool.New(4)
	defer p.Close()
	res, err := NewSolver(Options{Seed: 1}, p, quiet).Solve(pb, eye)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.LessOrEqual(t, res.Residual, DefaultOptions().StopResidual)
	assert.Equal(t, 10, res.Points)
}

func TestSolveLockedFov(t *testing.T) {
	if testing.Short() {
		t.Skip("full calibration search")
	}
	eye := mathutil.Vec3{3, -4, 2.5}
	truth := lookingAt(40, eye, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners)
	pb.LockFov, pb.Fov = true, 40

	res, err := NewSolver(Options{Seed: 3, Trials: 1, StopResidual: 1e-6}, nil, quiet).Solve(pb, eye)
	require.NoError(t, err)
	assert.Equal(t, 40.0, res.Params[ParamFov])
	assert.True(t, res.Accepted)
}

func TestSolveGonumMethod(t *testing.T) {
	if testing.Short() {
		t.Skip("full calibration search")
	}
	eye := mathutil.Vec3{3, -4, 2.5}
	truth := lookingAt(40, eye, mathutil.Vec3{0.5, 0.5, 0.5})
	pb := synthetic(t, truth, 256, 256, cubeCorners)

	res, err := NewSolver(Options{Seed: 5, Trials: 1, Method: MethodGonum}, nil, quiet).Solve(pb, eye)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 36+8, res.Runs)
}

func assertVecNear(t *testing.T, want, got mathutil.Vec3, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "component %d", i)
	}
}
