package models

import (
	"fmt"
	"math"
)

// ParameterAxes holds the physical coordinates of every grid index
type ParameterAxes struct {
	// X is the list of candidate pRF x-positions in degrees of visual angle
	X []float64

	// Y is the list of candidate pRF y-positions in degrees of visual angle
	Y []float64

	// Sizes is the list of candidate pRF sizes (SD of the Gaussian)
	Sizes []float64
}

// NumModels returns the number of (x, y, size) combinations spanned by the axes
func (a ParameterAxes) NumModels() int {
	return len(a.X) * len(a.Y) * len(a.Sizes)
}

// VoxelBatch represents the measured time courses of a set of voxels
type VoxelBatch struct {
	// Data holds the time courses in voxel-major order: Data[v*NumVolumes+t]
	Data []float64

	// NumVoxels is the number of voxels in the batch
	NumVoxels int

	// NumVolumes is the number of time points per voxel
	NumVolumes int
}

// NewVoxelBatch wraps data of the given shape without copying it
func NewVoxelBatch(data []float64, numVoxels, numVolumes int) (*VoxelBatch, error) {
	if numVoxels < 0 || numVolumes < 0 {
		return nil, fmt.Errorf("invalid voxel batch shape %dx%d", numVoxels, numVolumes)
	}
	if len(data) != numVoxels*numVolumes {
		return nil, fmt.Errorf("voxel batch has %d values, expected %d", len(data), numVoxels*numVolumes)
	}
	return &VoxelBatch{Data: data, NumVoxels: numVoxels, NumVolumes: numVolumes}, nil
}

// TimeCourse returns the time course of voxel v
func (b *VoxelBatch) TimeCourse(v int) []float64 {
	return b.Data[v*b.NumVolumes : (v+1)*b.NumVolumes]
}

// Slice returns the voxels in [lo, hi) sharing the underlying storage
func (b *VoxelBatch) Slice(lo, hi int) *VoxelBatch {
	return &VoxelBatch{
		Data:       b.Data[lo*b.NumVolumes : hi*b.NumVolumes],
		NumVoxels:  hi - lo,
		NumVolumes: b.NumVolumes,
	}
}

// ModelBank is the arena of candidate model time courses.
// Layout is [x][y][size][condition][volume], flattened in row-major order.
type ModelBank struct {
	Data []float64

	NumX          int
	NumY          int
	NumSizes      int
	NumConditions int
	NumVolumes    int
}

// NewModelBank wraps data of the given shape without copying it
func NewModelBank(data []float64, numX, numY, numSizes, numConditions, numVolumes int) (*ModelBank, error) {
	dims := []int{numX, numY, numSizes, numConditions, numVolumes}
	size := 1
	for _, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("invalid model bank shape %v", dims)
		}
		size *= d
	}
	if len(data) != size {
		return nil, fmt.Errorf("model bank has %d values, expected %d for shape %v", len(data), size, dims)
	}
	return &ModelBank{
		Data:          data,
		NumX:          numX,
		NumY:          numY,
		NumSizes:      numSizes,
		NumConditions: numConditions,
		NumVolumes:    numVolumes,
	}, nil
}

// Shape returns the five bank dimensions
func (m *ModelBank) Shape() []int {
	return []int{m.NumX, m.NumY, m.NumSizes, m.NumConditions, m.NumVolumes}
}

func (m *ModelBank) offset(x, y, s, c int) int {
	return (((x*m.NumY+y)*m.NumSizes+s)*m.NumConditions + c) * m.NumVolumes
}

// TimeCourse returns the predicted time course of one model and condition
func (m *ModelBank) TimeCourse(x, y, s, c int) []float64 {
	off := m.offset(x, y, s, c)
	return m.Data[off : off+m.NumVolumes]
}

// Set copies tc into the time course of one model and condition
func (m *ModelBank) Set(x, y, s, c int, tc []float64) {
	copy(m.TimeCourse(x, y, s, c), tc)
}

// FitResult is the finished output of one fitting invocation
type FitResult struct {
	// PartitionID identifies the invocation that produced this result
	PartitionID int

	// XPos, YPos and Size are the winning parameters in physical units.
	// They are NaN for voxels that no model could be fitted to.
	XPos []float64
	YPos []float64
	Size []float64

	// R2 is the coefficient of determination of the winning model
	R2 []float64

	// Residuals is the residual sum of squares of the winning model
	Residuals []float64

	// Estimates holds the parameter estimates as Estimates[condition][voxel]
	Estimates [][]float64
}

// NewFitResult allocates a result for numVoxels voxels with undefined values
func NewFitResult(partitionID, numVoxels, numConditions int) *FitResult {
	r := &FitResult{
		PartitionID: partitionID,
		XPos:        filled(numVoxels, math.NaN()),
		YPos:        filled(numVoxels, math.NaN()),
		Size:        filled(numVoxels, math.NaN()),
		R2:          filled(numVoxels, math.NaN()),
		Residuals:   filled(numVoxels, math.Inf(1)),
		Estimates:   make([][]float64, numConditions),
	}
	for c := range r.Estimates {
		r.Estimates[c] = filled(numVoxels, math.NaN())
	}
	return r
}

// NumVoxels returns the number of voxels covered by the result
func (r *FitResult) NumVoxels() int {
	return len(r.R2)
}

// ConcatResults joins disjoint per-partition results in the given order
func ConcatResults(parts []*FitResult) (*FitResult, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no results to concatenate")
	}

	numConditions := len(parts[0].Estimates)
	out := &FitResult{Estimates: make([][]float64, numConditions)}
	for _, p := range parts {
		if len(p.Estimates) != numConditions {
			return nil, fmt.Errorf("partition %d has %d conditions, expected %d",
				p.PartitionID, len(p.Estimates), numConditions)
		}
		out.XPos = append(out.XPos, p.XPos...)
		out.YPos = append(out.YPos, p.YPos...)
		out.Size = append(out.Size, p.Size...)
		out.R2 = append(out.R2, p.R2...)
		out.Residuals = append(out.Residuals, p.Residuals...)
		for c := range p.Estimates {
			out.Estimates[c] = append(out.Estimates[c], p.Estimates[c]...)
		}
	}
	return out, nil
}

func filled(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}
