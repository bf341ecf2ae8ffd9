package fit

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// solver evaluates one model design against every voxel of the batch.
// Buffers are allocated once and reused for every model of the grid.
type solver struct {
	kind solverKind

	// data is the (volume, voxel) matrix, de-meaned for the closed-form kinds
	data *mat.Dense

	numVolumes    int
	numVoxels     int
	numConditions int

	// residuals and estimates hold the output of the last successful solve
	residuals []float64
	estimates [][]float64

	// generic solver workspace
	design *mat.Dense
	beta   *mat.Dense
	fitted *mat.Dense
	qr     mat.QR

	// closed-form workspace
	cross [][]float64
}

func newSolver(kind solverKind, data *mat.Dense, numConditions int) *solver {
	t, n := data.Dims()
	s := &solver{
		kind:          kind,
		data:          data,
		numVolumes:    t,
		numVoxels:     n,
		numConditions: numConditions,
		residuals:     make([]float64, n),
		estimates:     make([][]float64, numConditions),
	}
	for c := range s.estimates {
		s.estimates[c] = make([]float64, n)
	}

	switch kind {
	case solverGeneric:
		s.design = mat.NewDense(t, numConditions+1, nil)
		s.beta = mat.NewDense(numConditions+1, n, nil)
		s.fitted = mat.NewDense(t, n, nil)
	default:
		s.cross = make([][]float64, numConditions)
		for c := range s.cross {
			s.cross[c] = make([]float64, n)
		}
	}
	return s
}

// solve fits the given condition time courses. It returns false when the
// design is singular, in which case the model is skipped.
func (s *solver) solve(courses [][]float64) bool {
	switch s.kind {
	case solverOne:
		return s.solveOne(courses[0])
	case solverTwo:
		return s.solveTwo(courses[0], courses[1])
	default:
		return s.solveGeneric(courses)
	}
}

// solveGeneric solves [courses | 1] * beta = data by QR for all voxels at once
func (s *solver) solveGeneric(courses [][]float64) bool {
	numCon := s.numConditions
	for t := 0; t < s.numVolumes; t++ {
		for c := 0; c < numCon; c++ {
			s.design.Set(t, c, courses[c][t])
		}
		s.design.Set(t, numCon, 1)
	}

	s.qr.Factorize(s.design)
	if err := s.qr.SolveTo(s.beta, false, s.data); err != nil {
		// mat.Condition: rank deficient or numerically singular design
		return false
	}

	s.fitted.Mul(s.design, s.beta)
	y := s.data.RawMatrix()
	f := s.fitted.RawMatrix()
	zero(s.residuals)
	for t := 0; t < s.numVolumes; t++ {
		yRow := y.Data[t*y.Stride : t*y.Stride+s.numVoxels]
		fRow := f.Data[t*f.Stride : t*f.Stride+s.numVoxels]
		for v, yv := range yRow {
			d := yv - fRow[v]
			s.residuals[v] += d * d
		}
	}

	// The last row of beta is the intercept and is discarded.
	for c := 0; c < numCon; c++ {
		copy(s.estimates[c], s.beta.RawRowView(c))
	}
	return true
}

// solveOne is the closed-form solution for a single de-meaned regressor:
// beta = <x, y> / <x, x>
func (s *solver) solveOne(x []float64) bool {
	xx := floats.Dot(x, x)
	if xx == 0 {
		return false
	}

	y := s.data.RawMatrix()
	xy := s.cross[0]
	zero(xy)
	for t, xt := range x {
		floats.AddScaled(xy, xt, y.Data[t*y.Stride:t*y.Stride+s.numVoxels])
	}

	beta := s.estimates[0]
	for v := range beta {
		beta[v] = xy[v] / xx
	}

	zero(s.residuals)
	for t, xt := range x {
		row := y.Data[t*y.Stride : t*y.Stride+s.numVoxels]
		for v, yv := range row {
			d := yv - beta[v]*xt
			s.residuals[v] += d * d
		}
	}
	return true
}

// solveTwo is the closed-form solution for two de-meaned regressors,
// inverting the 2x2 normal matrix explicitly.
func (s *solver) solveTwo(x1, x2 []float64) bool {
	a11 := floats.Dot(x1, x1)
	a12 := floats.Dot(x1, x2)
	a22 := floats.Dot(x2, x2)
	det := a11*a22 - a12*a12
	if det == 0 {
		return false
	}

	y := s.data.RawMatrix()
	b1, b2 := s.cross[0], s.cross[1]
	zero(b1)
	zero(b2)
	for t := 0; t < s.numVolumes; t++ {
		row := y.Data[t*y.Stride : t*y.Stride+s.numVoxels]
		floats.AddScaled(b1, x1[t], row)
		floats.AddScaled(b2, x2[t], row)
	}

	beta1, beta2 := s.estimates[0], s.estimates[1]
	for v := range beta1 {
		beta1[v] = (a22*b1[v] - a12*b2[v]) / det
		beta2[v] = (a11*b2[v] - a12*b1[v]) / det
	}

	zero(s.residuals)
	for t := 0; t < s.numVolumes; t++ {
		row := y.Data[t*y.Stride : t*y.Stride+s.numVoxels]
		p1, p2 := x1[t], x2[t]
		for v, yv := range row {
			d := yv - beta1[v]*p1 - beta2[v]*p2
			s.residuals[v] += d * d
		}
	}
	return true
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
