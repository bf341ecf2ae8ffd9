package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"prfmapper/internal/models"
)

// validate checks every shape precondition before any fitting starts
func validate(in Input, kind solverKind) error {
	if in.Voxels == nil || in.Bank == nil {
		return fmt.Errorf("%w: missing voxel batch or model bank", ErrEmptyInput)
	}

	v, b := in.Voxels, in.Bank
	if v.NumVoxels <= 0 || v.NumVolumes <= 0 {
		return fmt.Errorf("%w: voxel batch shape %dx%d", ErrEmptyInput, v.NumVoxels, v.NumVolumes)
	}
	for _, d := range b.Shape() {
		if d <= 0 {
			return fmt.Errorf("%w: model bank shape %v", ErrEmptyInput, b.Shape())
		}
	}

	if len(v.Data) != v.NumVoxels*v.NumVolumes {
		return fmt.Errorf("%w: voxel batch holds %d values for shape %dx%d",
			ErrShapeMismatch, len(v.Data), v.NumVoxels, v.NumVolumes)
	}
	if len(b.Data) != b.NumX*b.NumY*b.NumSizes*b.NumConditions*b.NumVolumes {
		return fmt.Errorf("%w: model bank holds %d values for shape %v",
			ErrShapeMismatch, len(b.Data), b.Shape())
	}
	if v.NumVolumes != b.NumVolumes {
		return fmt.Errorf("%w: voxel batch has %d volumes, model bank has %d",
			ErrShapeMismatch, v.NumVolumes, b.NumVolumes)
	}
	if len(in.Axes.X) != b.NumX || len(in.Axes.Y) != b.NumY || len(in.Axes.Sizes) != b.NumSizes {
		return fmt.Errorf("%w: axes %dx%dx%d do not match model bank %dx%dx%d",
			ErrShapeMismatch, len(in.Axes.X), len(in.Axes.Y), len(in.Axes.Sizes),
			b.NumX, b.NumY, b.NumSizes)
	}
	if kind == solverGeneric && b.NumVolumes < b.NumConditions+1 {
		return fmt.Errorf("%w: %d volumes cannot fit %d conditions plus intercept",
			ErrShapeMismatch, b.NumVolumes, b.NumConditions)
	}
	return nil
}

// timeMajor copies the voxel batch into a (volume, voxel) matrix,
// optionally removing each voxel's temporal mean.
func timeMajor(batch *models.VoxelBatch, demean bool) *mat.Dense {
	n, t := batch.NumVoxels, batch.NumVolumes
	data := mat.NewDense(t, n, nil)
	raw := data.RawMatrix()

	for v := 0; v < n; v++ {
		tc := batch.TimeCourse(v)
		mean := 0.0
		if demean {
			mean = stat.Mean(tc, nil)
		}
		for i, val := range tc {
			raw.Data[i*raw.Stride+v] = val - mean
		}
	}
	return data
}

// degenerate reports whether a time course carries no variance.
// The min/max test catches constant courses whose floating-point
// variance comes out as a tiny positive number.
func degenerate(tc []float64) bool {
	if floats.Max(tc) == floats.Min(tc) {
		return true
	}
	return stat.Variance(tc, nil) <= 0
}

// collinearTolerance is the value of 1-r², r being the correlation of the
// two condition courses, at or below which a two-condition model is skipped.
const collinearTolerance = 1e-10

// collinear reports whether two condition courses are linearly dependent
// up to an offset.
func collinear(a, b []float64) bool {
	r := stat.Correlation(a, b, nil)
	return math.IsNaN(r) || 1-r*r <= collinearTolerance
}

// screenModels marks the (x, y, size) models that have variance in every
// condition and, with two conditions, courses that are not collinear.
// Both strategies fit exactly the models marked here.
// The result is indexed like the bank: (x*NumY+y)*NumSizes+s.
func screenModels(bank *models.ModelBank) (usable []bool, skipped int) {
	usable = make([]bool, bank.NumX*bank.NumY*bank.NumSizes)
	idx := 0
	for x := 0; x < bank.NumX; x++ {
		for y := 0; y < bank.NumY; y++ {
			for s := 0; s < bank.NumSizes; s++ {
				ok := true
				for c := 0; c < bank.NumConditions && ok; c++ {
					ok = !degenerate(bank.TimeCourse(x, y, s, c))
				}
				if ok && bank.NumConditions == 2 {
					ok = !collinear(bank.TimeCourse(x, y, s, 0), bank.TimeCourse(x, y, s, 1))
				}
				usable[idx] = ok
				if !ok {
					skipped++
				}
				idx++
			}
		}
	}
	return usable, skipped
}

// loadCourses copies one model's condition time courses into dst,
// mean-centring them when the solver expects de-meaned regressors.
func loadCourses(dst [][]float64, bank *models.ModelBank, x, y, s int, demean bool) {
	for c := range dst {
		copy(dst[c], bank.TimeCourse(x, y, s, c))
		if demean {
			floats.AddConst(-stat.Mean(dst[c], nil), dst[c])
		}
	}
}
