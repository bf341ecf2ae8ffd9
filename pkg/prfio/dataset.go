package prfio

import (
	"fmt"

	"prfmapper/internal/models"
)

// Array names used by the dataset helpers
const (
	VoxelsName    = "voxels"
	ModelsName    = "models"
	XPosName      = "xPos"
	YPosName      = "yPos"
	SizeName      = "size"
	R2Name        = "r2"
	ResidualName  = "residual"
	EstimatesName = "estimates"
)

// VoxelArray wraps a voxel batch as a rank-2 (voxel, volume) array
func VoxelArray(batch *models.VoxelBatch) Array {
	return Array{Name: VoxelsName, Shape: []int{batch.NumVoxels, batch.NumVolumes}, Data: batch.Data}
}

// ModelArray wraps a model bank as a rank-5 (x, y, size, condition, volume) array
func ModelArray(bank *models.ModelBank) Array {
	return Array{Name: ModelsName, Shape: bank.Shape(), Data: bank.Data}
}

// LoadVoxelBatch reads the voxel array from an array file
func LoadVoxelBatch(path string) (*models.VoxelBatch, error) {
	a, err := loadNamed(path, VoxelsName, 2)
	if err != nil {
		return nil, err
	}
	return models.NewVoxelBatch(a.Data, a.Shape[0], a.Shape[1])
}

// LoadModelBank reads the model bank array from an array file
func LoadModelBank(path string) (*models.ModelBank, error) {
	a, err := loadNamed(path, ModelsName, 5)
	if err != nil {
		return nil, err
	}
	s := a.Shape
	return models.NewModelBank(a.Data, s[0], s[1], s[2], s[3], s[4])
}

func loadNamed(path, name string, rank int) (Array, error) {
	arrays, err := ReadFile(path)
	if err != nil {
		return Array{}, err
	}
	a, ok := Find(arrays, name)
	if !ok {
		return Array{}, fmt.Errorf("%w: %s has no %q array", ErrFormat, path, name)
	}
	if len(a.Shape) != rank {
		return Array{}, fmt.Errorf("%w: %q in %s has rank %d, expected %d", ErrFormat, name, path, len(a.Shape), rank)
	}
	return a, nil
}

// ResultArrays flattens a fit result into named arrays. Estimates are
// stored as a (condition, voxel) array.
func ResultArrays(res *models.FitResult) []Array {
	n := res.NumVoxels()
	vec := func(name string, data []float64) Array {
		return Array{Name: name, Shape: []int{n}, Data: data}
	}

	est := make([]float64, 0, len(res.Estimates)*n)
	for _, row := range res.Estimates {
		est = append(est, row...)
	}

	return []Array{
		vec(XPosName, res.XPos),
		vec(YPosName, res.YPos),
		vec(SizeName, res.Size),
		vec(R2Name, res.R2),
		vec(ResidualName, res.Residuals),
		{Name: EstimatesName, Shape: []int{len(res.Estimates), n}, Data: est},
	}
}

// ResultFromArrays rebuilds a fit result from the arrays written by ResultArrays
func ResultFromArrays(arrays []Array) (*models.FitResult, error) {
	res := &models.FitResult{}
	targets := []struct {
		name string
		dst  *[]float64
	}{
		{XPosName, &res.XPos},
		{YPosName, &res.YPos},
		{SizeName, &res.Size},
		{R2Name, &res.R2},
		{ResidualName, &res.Residuals},
	}

	n := -1
	for _, tgt := range targets {
		a, ok := Find(arrays, tgt.name)
		if !ok {
			return nil, fmt.Errorf("%w: result has no %q array", ErrFormat, tgt.name)
		}
		if n >= 0 && len(a.Data) != n {
			return nil, fmt.Errorf("%w: %q has %d voxels, expected %d", ErrFormat, tgt.name, len(a.Data), n)
		}
		n = len(a.Data)
		*tgt.dst = a.Data
	}

	est, ok := Find(arrays, EstimatesName)
	if !ok || len(est.Shape) != 2 || est.Shape[1] != n {
		return nil, fmt.Errorf("%w: missing or malformed %q array", ErrFormat, EstimatesName)
	}
	res.Estimates = make([][]float64, est.Shape[0])
	for c := range res.Estimates {
		res.Estimates[c] = est.Data[c*n : (c+1)*n]
	}
	return res, nil
}

// SaveResult writes a fit result to path
func SaveResult(path string, res *models.FitResult, compress bool) error {
	return WriteFile(path, ResultArrays(res), compress)
}

// LoadResult reads a fit result from path
func LoadResult(path string) (*models.FitResult, error) {
	arrays, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ResultFromArrays(arrays)
}
