package calib

import (
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"projection-mapper/internal/mathutil"
	"projection-mapper/internal/pool"
	"projection-mapper/internal/simplex"
)

// ErrTooFewPoints is returned when fewer than MinPoints points are set.
var ErrTooFewPoints = errors.New("calib: at least 6 calibration points must be set")

const (
	MinPoints         = 6
	RecommendedPoints = 7
)

// Method selects the minimizer implementation.
type Method string

const (
	MethodSimplex Method = "simplex"
	MethodGonum   Method = "gonum"
)

var (
	coarseStep = Params{10, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	fineStep   = Params{1, 0.05, 0.05, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01}
)

// Options tunes the two-phase search. Zero fields take the defaults of
// DefaultOptions; a negative FovJitter disables the field of view jitter.
type Options struct {
	Trials          int     `json:"trials" toml:"trials" yaml:"trials"`
	Grid            int     `json:"grid" toml:"grid" yaml:"grid"`
	GridStep        float64 `json:"grid_step" toml:"grid_step" yaml:"grid_step"`
	FovBase         float64 `json:"fov_base" toml:"fov_base" yaml:"fov_base"`
	FovJitter       float64 `json:"fov_jitter" toml:"fov_jitter" yaml:"fov_jitter"`
	MaxIterations   int     `json:"max_iterations" toml:"max_iterations" yaml:"max_iterations"`
	SizeEpsilon     float64 `json:"size_epsilon" toml:"size_epsilon" yaml:"size_epsilon"`
	StopResidual    float64 `json:"stop_residual" toml:"stop_residual" yaml:"stop_residual"`
	RefineRuns      int     `json:"refine_runs" toml:"refine_runs" yaml:"refine_runs"`
	AcceptThreshold float64 `json:"accept_threshold" toml:"accept_threshold" yaml:"accept_threshold"`
	Seed            uint64  `json:"seed" toml:"seed" yaml:"seed"`
	Method          Method  `json:"method" toml:"method" yaml:"method"`
	RandomSimplex   bool    `json:"random_simplex" toml:"random_simplex" yaml:"random_simplex"`
}

// DefaultOptions returns 4 trials over a 6×6 principal point grid, 8
// refinement runs and an acceptance threshold of 1000 px².
func DefaultOptions() Options {
	return Options{
		Trials:          4,
		Grid:            6,
		GridStep:        0.2,
		FovBase:         35,
		FovJitter:       16,
		MaxIterations:   10000,
		SizeEpsilon:     1e-6,
		StopResidual:    0.5,
		RefineRuns:      8,
		AcceptThreshold: 1000,
		Method:          MethodSimplex,
	}
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Trials <= 0 {
		o.Trials = d.Trials
	}
	if o.Grid <= 0 {
		o.Grid = d.Grid
	}
	if o.GridStep <= 0 {
		o.GridStep = d.GridStep
	}
	if o.FovBase <= 0 {
		o.FovBase = d.FovBase
	}
	if o.FovJitter < 0 {
		o.FovJitter = 0
	} else if o.FovJitter == 0 {
		o.FovJitter = d.FovJitter
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.SizeEpsilon <= 0 {
		o.SizeEpsilon = d.SizeEpsilon
	}
	if o.StopResidual <= 0 {
		o.StopResidual = d.StopResidual
	}
	if o.RefineRuns <= 0 {
		o.RefineRuns = d.RefineRuns
	}
	if o.AcceptThreshold <= 0 {
		o.AcceptThreshold = d.AcceptThreshold
	}
	if o.Method == "" {
		o.Method = d.Method
	}
	return o
}

// Runner executes closures in parallel; *pool.Pool satisfies it.
type Runner interface {
	Enqueue(fn func()) pool.ID
	Wait(ids ...pool.ID)
}

// Result describes the outcome of a calibration. Params has the locks of
// the problem applied.
type Result struct {
	ID          uuid.UUID
	Params      Params
	Residual    float64
	Accepted    bool
	Points      int
	Runs        int
	Discarded   int
	Iterations  int
	MeanError   float64
	StdDevError float64
	Duration    time.Duration
}

// Solver runs the coarse multi-start search then the local refinement.
type Solver struct {
	opts   Options
	runner Runner
	log    *slog.Logger
}

// NewSolver returns a solver. A nil runner runs the trials sequentially.
func NewSolver(opts Options, runner Runner, log *slog.Logger) *Solver {
	if log == nil {
		log = slog.Default()
	}
	return &Solver{opts: opts.WithDefaults(), runner: runner, log: log}
}

// Options returns the effective options.
func (s *Solver) Options() Options { return s.opts }

type outcome struct {
	x          Params
	value      float64
	iterations int
	ok         bool
}

type trial struct {
	best       outcome
	runs       int
	discarded  int
	iterations int
}

// Solve searches the parameters minimizing pb.Objective, starting every run
// from eye. It fails only with ErrTooFewPoints; a poor fit is reported by
// Result.Accepted.
func (s *Solver) Solve(pb *Problem, eye mathutil.Vec3) (Result, error) {
	n := pb.SetCount()
	if n < MinPoints {
		s.log.Warn("calibration needs at least 6 points", "points", n)
		return Result{Points: n}, ErrTooFewPoints
	}
	if n < RecommendedPoints {
		s.log.Warn("for better calibration results, use at least 7 points", "points", n)
	}

	start := time.Now()
	seed := s.opts.Seed
	if seed == 0 {
		seed = uint64(start.UnixNano())
	}
	res := Result{ID: uuid.New(), Points: n, Residual: math.MaxFloat64}

	// Coarse search: each trial reports its local best, reduced after the join.
	trials := make([]trial, s.opts.Trials)
	task := func(i int) func() {
		return func() {
			trials[i] = s.search(pb, eye, rand.New(rand.NewPCG(seed, uint64(i))))
		}
	}
	if s.runner == nil {
		for i := range trials {
			task(i)()
		}
	} else {
		ids := make([]pool.ID, len(trials))
		for i := range trials {
			ids[i] = s.runner.Enqueue(task(i))
		}
		s.runner.Wait(ids...)
	}

	best := outcome{value: math.MaxFloat64}
	for _, t := range trials {
		res.Runs += t.runs
		res.Discarded += t.discarded
		res.Iterations += t.iterations
		if t.best.ok && t.best.value < best.value {
			best = t.best
		}
	}
	if !best.ok {
		res.Duration = time.Since(start)
		s.log.Warn("calibration failed, every start was discarded", "runs", res.Runs)
		return res, nil
	}

	rng := rand.New(rand.NewPCG(seed, uint64(len(trials))))
	for i := 0; i < s.opts.RefineRuns; i++ {
		res.Runs++
		r, err := s.minimize(pb, best.x, fineStep, rng)
		if err != nil {
			res.Discarded++
			s.log.Warn("an error occurred during minimization", "phase", "refine", "err", err)
			continue
		}
		res.Iterations += r.iterations
		if r.value < best.value {
			best = r
		}
	}

	res.Params, _ = pb.Feasible(best.x)
	res.Residual = best.value
	res.Accepted = best.value <= s.opts.AcceptThreshold
	res.MeanError, res.StdDevError = stat.MeanStdDev(pb.Residuals(res.Params), nil)
	res.Duration = time.Since(start)

	attrs := []any{
		"fov", res.Params[ParamFov],
		"cx", res.Params[ParamCx],
		"cy", res.Params[ParamCy],
		"residual", res.Residual,
		"runs", res.Runs,
		"discarded", res.Discarded,
		"elapsed", res.Duration,
	}
	if !res.Accepted {
		s.log.Warn("calibration not set because the found parameters are not good enough", attrs...)
	} else {
		s.log.Info("calibration found", attrs...)
	}
	return res, nil
}

func (s *Solver) search(pb *Problem, eye mathutil.Vec3, rng *rand.Rand) trial {
	t := trial{best: outcome{value: math.MaxFloat64}}
	for i := 0; i < s.opts.Grid; i++ {
		for j := 0; j < s.opts.Grid; j++ {
			x0 := Params{
				s.opts.FovBase + (rng.Float64()*2-1)*s.opts.FovJitter,
				float64(i) * s.opts.GridStep,
				float64(j) * s.opts.GridStep,
				eye[0], eye[1], eye[2],
				rng.Float64() * 2 * math.Pi,
				rng.Float64() * 2 * math.Pi,
				rng.Float64() * 2 * math.Pi,
			}
			t.runs++
			r, err := s.minimize(pb, x0, coarseStep, rng)
			if err != nil {
				t.discarded++
				s.log.Warn("an error occurred during minimization", "phase", "search", "err", err)
				continue
			}
			t.iterations += r.iterations
			if r.value < t.best.value {
				t.best = r
			}
		}
	}
	return t
}

func (s *Solver) minimize(pb *Problem, x0, step Params, rng *rand.Rand) (outcome, error) {
	if s.opts.Method == MethodGonum {
		return s.minimizeGonum(pb, x0, step, rng)
	}

	var (
		m   *simplex.Minimizer
		err error
	)
	if s.opts.RandomSimplex {
		m, err = simplex.NewRandomized(pb.Objective, x0[:], step[:], rng)
	} else {
		m, err = simplex.New(pb.Objective, x0[:], step[:])
	}
	if err != nil {
		return outcome{}, err
	}

	for m.Iterations() < s.opts.MaxIterations {
		if err := m.Step(); err != nil {
			return outcome{}, err
		}
		if m.Converged(s.opts.SizeEpsilon) || m.Min() <= s.opts.StopResidual {
			break
		}
	}
	x, v := m.Best()
	return outcome{x: ParamsFrom(x), value: v, iterations: m.Iterations(), ok: true}, nil
}
