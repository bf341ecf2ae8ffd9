package fit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"prfmapper/internal/models"
)

// linspace returns n evenly spaced values in [lo, hi]
func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if n == 1 {
			out[i] = lo
			continue
		}
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

func testAxes(nx, ny, ns int) models.ParameterAxes {
	return models.ParameterAxes{
		X:     linspace(-5, 5, nx),
		Y:     linspace(-4, 4, ny),
		Sizes: linspace(0.5, 3, ns),
	}
}

// randomBank fills a bank with smoothed random courses so every model is
// distinct and non-degenerate.
func randomBank(t testing.TB, rng *rand.Rand, nx, ny, ns, nc, nt int) *models.ModelBank {
	t.Helper()
	bank, err := models.NewModelBank(make([]float64, nx*ny*ns*nc*nt), nx, ny, ns, nc, nt)
	require.NoError(t, err)

	tc := make([]float64, nt)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for s := 0; s < ns; s++ {
				for c := 0; c < nc; c++ {
					phase := rng.Float64() * 2 * math.Pi
					freq := 0.1 + rng.Float64()*0.5
					for i := range tc {
						tc[i] = math.Sin(freq*float64(i)+phase) + 0.3*rng.NormFloat64()
					}
					bank.Set(x, y, s, c, tc)
				}
			}
		}
	}
	return bank
}

// voxelsFromBank builds one voxel per entry of picks, each a noisy affine
// combination of the conditions of the picked model.
func voxelsFromBank(t testing.TB, rng *rand.Rand, bank *models.ModelBank, picks [][3]int, noise float64) *models.VoxelBatch {
	t.Helper()
	nt := bank.NumVolumes
	data := make([]float64, len(picks)*nt)
	for v, p := range picks {
		offset := 100 + 10*rng.Float64()
		for i := 0; i < nt; i++ {
			val := offset + noise*rng.NormFloat64()
			for c := 0; c < bank.NumConditions; c++ {
				val += float64(c+1) * 1.5 * bank.TimeCourse(p[0], p[1], p[2], c)[i]
			}
			data[v*nt+i] = val
		}
	}
	batch, err := models.NewVoxelBatch(data, len(picks), nt)
	require.NoError(t, err)
	return batch
}

func randomPicks(rng *rand.Rand, n, nx, ny, ns int) [][3]int {
	picks := make([][3]int, n)
	for i := range picks {
		picks[i] = [3]int{rng.Intn(nx), rng.Intn(ny), rng.Intn(ns)}
	}
	return picks
}

// sameBits compares two slices bit for bit so NaN values compare equal
func sameBits(t testing.TB, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, math.Float64bits(want[i]), math.Float64bits(got[i]), "index %d: %v vs %v", i, want[i], got[i])
	}
}
