package fit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prfmapper/internal/models"
)

// TestUpdateBestNeverRegresses feeds random residual vectors and checks the
// stored residual is non-increasing and only strict improvements move it.
func TestUpdateBestNeverRegresses(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	const numVoxels = 16
	best := models.NewFitResult(0, numVoxels, 1)

	prev := append([]float64{}, best.Residuals...)
	residuals := make([]float64, numVoxels)
	estimates := [][]float64{make([]float64, numVoxels)}
	for step := 0; step < 200; step++ {
		for v := range residuals {
			residuals[v] = math.Floor(rng.Float64() * 50)
			estimates[0][v] = float64(step)
		}
		improved := updateBest(best, float64(step), 0, 0, residuals, estimates)

		count := 0
		for v := range residuals {
			require.LessOrEqual(t, best.Residuals[v], prev[v])
			if residuals[v] < prev[v] {
				count++
				assert.Equal(t, float64(step), best.XPos[v])
				assert.Equal(t, float64(step), best.Estimates[0][v])
			} else {
				assert.Equal(t, prev[v], best.Residuals[v])
			}
		}
		assert.Equal(t, count, improved)
		copy(prev, best.Residuals)
	}
}

func TestUpdateBestIgnoresNaN(t *testing.T) {
	best := models.NewFitResult(0, 2, 1)
	updateBest(best, 1, 2, 3, []float64{math.NaN(), 4}, [][]float64{{9, 9}})

	assert.True(t, math.IsNaN(best.XPos[0]))
	assert.True(t, math.IsInf(best.Residuals[0], 1))
	assert.Equal(t, 1.0, best.XPos[1])
	assert.Equal(t, 4.0, best.Residuals[1])
}

func TestTotalSumOfSquares(t *testing.T) {
	batch, err := models.NewVoxelBatch([]float64{
		1, 2, 3, 4,
		5, 5, 5, 5,
		-1, 1, -1, 1,
	}, 3, 4)
	require.NoError(t, err)

	ss := totalSumOfSquares(batch)
	assert.InDelta(t, 5.0, ss[0], 1e-12)
	assert.Equal(t, 0.0, ss[1])
	assert.InDelta(t, 4.0, ss[2], 1e-12)
}

func TestFinalize(t *testing.T) {
	batch, err := models.NewVoxelBatch([]float64{
		1, 2, 3, 4,
		5, 5, 5, 5,
		5, 5, 5, 5,
	}, 3, 4)
	require.NoError(t, err)

	best := models.NewFitResult(0, 3, 1)
	best.Residuals = []float64{1, 0, 2}
	finalize(best, batch)

	assert.InDelta(t, 0.8, best.R2[0], 1e-12)
	assert.True(t, math.IsNaN(best.R2[1]), "0/0 must stay NaN")
	assert.True(t, math.IsInf(best.R2[2], -1), "x/0 must stay -Inf")
}
