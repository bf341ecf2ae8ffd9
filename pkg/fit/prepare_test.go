package fit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prfmapper/internal/models"
)

func TestTimeMajor(t *testing.T) {
	batch, err := models.NewVoxelBatch([]float64{
		1, 2, 3,
		10, 20, 30,
	}, 2, 3)
	require.NoError(t, err)

	raw := timeMajor(batch, false)
	r, c := raw.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 2.0, raw.At(1, 0))
	assert.Equal(t, 30.0, raw.At(2, 1))

	centred := timeMajor(batch, true)
	assert.Equal(t, -1.0, centred.At(0, 0))
	assert.Equal(t, 0.0, centred.At(1, 1))
	assert.Equal(t, 10.0, centred.At(2, 1))

	// the batch itself is left untouched
	assert.Equal(t, []float64{1, 2, 3, 10, 20, 30}, batch.Data)
}

func TestDegenerate(t *testing.T) {
	tests := []struct {
		name string
		tc   []float64
		want bool
	}{
		{"zeros", []float64{0, 0, 0, 0}, true},
		{"inexact constant", []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}, true},
		{"ramp", []float64{0, 1, 2, 3}, false},
		{"single blip", []float64{0, 0, 1e-9, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, degenerate(tt.tc))
		})
	}
}

func TestLoadCourses(t *testing.T) {
	bank, err := models.NewModelBank([]float64{
		1, 2, 3, 4, 5, 6, // (0,0,0) conditions 0 and 1
		7, 8, 9, 0, 0, 3, // (1,0,0)
	}, 2, 1, 1, 2, 3)
	require.NoError(t, err)

	dst := [][]float64{make([]float64, 3), make([]float64, 3)}
	loadCourses(dst, bank, 1, 0, 0, false)
	assert.Equal(t, []float64{7, 8, 9}, dst[0])
	assert.Equal(t, []float64{0, 0, 3}, dst[1])

	loadCourses(dst, bank, 0, 0, 0, true)
	assert.Equal(t, []float64{-1, 0, 1}, dst[0])
	assert.Equal(t, []float64{-1, 0, 1}, dst[1])

	// the bank itself is left untouched
	assert.Equal(t, []float64{4, 5, 6}, bank.TimeCourse(0, 0, 0, 1))
}
