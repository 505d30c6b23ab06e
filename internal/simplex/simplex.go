// Package simplex implements a derivative-free Nelder-Mead minimizer with
// explicit stepping, so callers control iteration limits and convergence.
package simplex

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrBadFunc is returned when the objective produces NaN or ±Inf.
	ErrBadFunc = errors.New("simplex: objective returned a non-finite value")
	// ErrDimension is returned when x0 and step lengths disagree.
	ErrDimension = errors.New("simplex: dimension mismatch")
)

// Func is the objective. It must not retain x.
type Func func(x []float64) float64

// Minimizer holds the n+1 vertices of the simplex and their values.
type Minimizer struct {
	f      Func
	x      [][]float64
	y      []float64
	center []float64
	xc     []float64
	xc2    []float64
	iter   int
	evals  int
}

// New builds a minimizer whose initial simplex is x0 plus one vertex per
// axis, offset by step.
func New(f Func, x0, step []float64) (*Minimizer, error) {
	if len(x0) == 0 || len(x0) != len(step) {
		return nil, ErrDimension
	}
	return newMinimizer(f, InitialVertices(x0, step, nil))
}

// NewRandomized builds a minimizer whose initial simplex is rotated by a
// random orthonormal basis drawn from rng.
func NewRandomized(f Func, x0, step []float64, rng *rand.Rand) (*Minimizer, error) {
	if len(x0) == 0 || len(x0) != len(step) {
		return nil, ErrDimension
	}
	return newMinimizer(f, InitialVertices(x0, step, RandomBasis(len(x0), rng)))
}

// RandomBasis returns a random n×n orthonormal matrix, the Q factor of a
// matrix with standard normal entries.
func RandomBasis(n int, rng *rand.Rand) *mat.Dense {
	g := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			g.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(g)
	var q mat.Dense
	qr.QTo(&q)
	return &q
}

// InitialVertices returns x0 followed by x0 + step∘basis_i for every row of
// basis. A nil basis means the identity.
func InitialVertices(x0, step []float64, basis mat.Matrix) [][]float64 {
	n := len(x0)
	verts := make([][]float64, n+1)
	verts[0] = append([]float64(nil), x0...)
	for i := 0; i < n; i++ {
		v := append([]float64(nil), x0...)
		for j := 0; j < n; j++ {
			d := 0.0
			switch {
			case basis != nil:
				d = basis.At(i, j)
			case i == j:
				d = 1
			}
			v[j] += step[j] * d
		}
		verts[i+1] = v
	}
	return verts
}

func newMinimizer(f Func, verts [][]float64) (*Minimizer, error) {
	n := len(verts[0])
	m := &Minimizer{
		f:      f,
		x:      verts,
		y:      make([]float64, n+1),
		center: make([]float64, n),
		xc:     make([]float64, n),
		xc2:    make([]float64, n),
	}
	for i, v := range verts {
		val := m.eval(v)
		if !finite(val) {
			return nil, ErrBadFunc
		}
		m.y[i] = val
	}
	m.updateCenter()
	return m, nil
}

func (m *Minimizer) eval(x []float64) float64 {
	m.evals++
	return m.f(x)
}

func (m *Minimizer) updateCenter() {
	for i := range m.center {
		m.center[i] = 0
	}
	for _, v := range m.x {
		floats.Add(m.center, v)
	}
	floats.Scale(1/float64(len(m.x)), m.center)
}

// tryCorner moves vertex i along the line through the centroid:
// c = -1 reflects, -2 expands, 0.5 contracts.
func (m *Minimizer) tryCorner(c float64, i int, dst []float64) float64 {
	p := float64(len(m.x))
	alpha := (1 - c) * p / (p - 1)
	beta := (p*c - 1) / (p - 1)
	floats.ScaleTo(dst, alpha, m.center)
	floats.AddScaled(dst, beta, m.x[i])
	return m.eval(dst)
}

func (m *Minimizer) replace(i int, x []float64, val float64) {
	copy(m.x[i], x)
	m.y[i] = val
	m.updateCenter()
}

func (m *Minimizer) shrink(best int) error {
	for i := range m.x {
		if i == best {
			continue
		}
		floats.Add(m.x[i], m.x[best])
		floats.Scale(0.5, m.x[i])
		val := m.eval(m.x[i])
		if !finite(val) {
			return ErrBadFunc
		}
		m.y[i] = val
	}
	m.updateCenter()
	return nil
}

// order returns the indices of the highest, second highest and lowest values.
func (m *Minimizer) order() (hi, sHi, lo int) {
	if m.y[0] > m.y[1] {
		hi, sHi, lo = 0, 1, 1
	} else {
		hi, sHi, lo = 1, 0, 0
	}
	for i := 2; i < len(m.y); i++ {
		v := m.y[i]
		switch {
		case v <= m.y[lo]:
			lo = i
		case v > m.y[hi]:
			sHi = hi
			hi = i
		case v > m.y[sHi]:
			sHi = i
		}
	}
	return hi, sHi, lo
}

// Step performs one iteration.
func (m *Minimizer) Step() error {
	m.iter++
	hi, sHi, lo := m.order()

	val := m.tryCorner(-1, hi, m.xc)
	switch {
	case finite(val) && val < m.y[lo]:
		val2 := m.tryCorner(-2, hi, m.xc2)
		if finite(val2) && val2 < m.y[lo] {
			m.replace(hi, m.xc2, val2)
		} else {
			m.replace(hi, m.xc, val)
		}
	case !finite(val) || val > m.y[sHi]:
		if finite(val) && val <= m.y[hi] {
			m.replace(hi, m.xc, val)
		}
		val2 := m.tryCorner(0.5, hi, m.xc2)
		if finite(val2) && val2 <= m.y[hi] {
			m.replace(hi, m.xc2, val2)
		} else if err := m.shrink(lo); err != nil {
			return err
		}
	default:
		m.replace(hi, m.xc, val)
	}
	return nil
}

// Size is the mean distance of the vertices to their centroid.
func (m *Minimizer) Size() float64 {
	s := 0.0
	for _, v := range m.x {
		s += floats.Distance(v, m.center, 2)
	}
	return s / float64(len(m.x))
}

// Converged reports whether the simplex shrank below eps.
func (m *Minimizer) Converged(eps float64) bool {
	return m.Size() < eps
}

// Best returns a copy of the lowest vertex and its value.
func (m *Minimizer) Best() ([]float64, float64) {
	lo := floats.MinIdx(m.y)
	return append([]float64(nil), m.x[lo]...), m.y[lo]
}

// Min returns the lowest objective value of the simplex.
func (m *Minimizer) Min() float64 {
	return floats.Min(m.y)
}

// Iterations returns the number of Step calls.
func (m *Minimizer) Iterations() int { return m.iter }

// Evaluations returns the number of objective evaluations.
func (m *Minimizer) Evaluations() int { return m.evals }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
