package fit

import (
	"gonum.org/v1/gonum/stat"

	"prfmapper/internal/models"
)

// updateBest overwrites the record of every voxel whose new residual is
// strictly lower than the stored one. Ties keep the earlier model.
func updateBest(best *models.FitResult, x, y, size float64, residuals []float64, estimates [][]float64) (improved int) {
	for v, res := range residuals {
		if !(res < best.Residuals[v]) {
			continue
		}
		best.XPos[v] = x
		best.YPos[v] = y
		best.Size[v] = size
		best.Residuals[v] = res
		for c := range estimates {
			best.Estimates[c][v] = estimates[c][v]
		}
		improved++
	}
	return improved
}

// totalSumOfSquares returns the sum of squared deviations of each voxel's
// time course from its temporal mean.
func totalSumOfSquares(batch *models.VoxelBatch) []float64 {
	ss := make([]float64, batch.NumVoxels)
	for v := range ss {
		tc := batch.TimeCourse(v)
		mean := stat.Mean(tc, nil)
		for _, val := range tc {
			d := val - mean
			ss[v] += d * d
		}
	}
	return ss
}

// finalize converts the best residuals into coefficients of determination.
// A constant voxel has a total sum of squares of zero; the division is left
// to produce NaN or -Inf so the caller can see it.
func finalize(best *models.FitResult, batch *models.VoxelBatch) {
	ssTot := totalSumOfSquares(batch)
	for v, res := range best.Residuals {
		best.R2[v] = 1 - res/ssTot[v]
	}
}
