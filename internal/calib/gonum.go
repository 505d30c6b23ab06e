package calib

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"projection-mapper/internal/simplex"
)

// minimizeGonum runs one minimization with gonum's Nelder-Mead, seeded with
// the same initial simplex as the built-in minimizer.
func (s *Solver) minimizeGonum(pb *Problem, x0, step Params, rng *rand.Rand) (outcome, error) {
	var basis mat.Matrix
	if s.opts.RandomSimplex {
		basis = simplex.RandomBasis(NumParams, rng)
	}
	verts := simplex.InitialVertices(x0[:], step[:], basis)
	values := make([]float64, len(verts))
	for i, v := range verts {
		values[i] = pb.Objective(v)
	}

	problem := optimize.Problem{Func: pb.Objective}
	settings := &optimize.Settings{
		MajorIterations: s.opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.opts.SizeEpsilon * s.opts.SizeEpsilon,
			Iterations: 200,
		},
	}
	method := &optimize.NelderMead{
		InitialVertices: verts,
		InitialValues:   values,
	}

	result, err := optimize.Minimize(problem, x0[:], settings, method)
	if err != nil {
		return outcome{}, fmt.Errorf("calib: nelder-mead: %w", err)
	}
	return outcome{
		x:          ParamsFrom(result.X),
		value:      result.F,
		iterations: result.MajorIterations,
		ok:         true,
	}, nil
}
