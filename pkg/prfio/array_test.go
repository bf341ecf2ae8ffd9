package prfio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prfmapper/internal/models"
)

func sampleArrays() []Array {
	return []Array{
		{Name: "a", Shape: []int{2, 3}, Data: []float64{1, 2, 3, 4, 5, 6}},
		{Name: "special", Shape: []int{4}, Data: []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.0}},
		{Name: "scalar", Shape: []int{}, Data: []float64{42}},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sampleArrays(), compress))

		got, err := Read(&buf)
		require.NoError(t, err)
		require.Len(t, got, 3)

		assert.Equal(t, "a", got[0].Name)
		assert.Equal(t, []int{2, 3}, got[0].Shape)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, got[0].Data)

		special := got[1].Data
		assert.True(t, math.IsNaN(special[0]))
		assert.True(t, math.IsInf(special[1], 1))
		assert.True(t, math.IsInf(special[2], -1))

		scalar, ok := Find(got, "scalar")
		require.True(t, ok)
		assert.Equal(t, []float64{42}, scalar.Data)
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	data := make([]float64, 4096)
	arrays := []Array{{Name: "zeros", Shape: []int{len(data)}, Data: data}}

	var plain, packed bytes.Buffer
	require.NoError(t, Write(&plain, arrays, false))
	require.NoError(t, Write(&packed, arrays, true))
	assert.Less(t, packed.Len(), plain.Len()/10)
}

func TestReadDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleArrays(), false))
	raw := buf.Bytes()

	corrupt := append([]byte{}, raw...)
	corrupt[len(corrupt)-1] ^= 0xff
	_, err := Read(bytes.NewReader(corrupt))
	assert.True(t, errors.Is(err, ErrChecksum), "got %v", err)

	badMagic := append([]byte{}, raw...)
	badMagic[0] = 'X'
	_, err = Read(bytes.NewReader(badMagic))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)

	_, err = Read(bytes.NewReader(raw[:len(raw)-5]))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)

	_, err = Read(bytes.NewReader(raw[:10]))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
}

// framed wraps a raw payload in an uncompressed file with a valid checksum
func framed(payload []byte) []byte {
	var header [headerSize]byte
	copy(header[:4], magic[:])
	header[4] = version
	binary.LittleEndian.PutUint64(header[6:14], xxhash.Sum64(payload))
	binary.LittleEndian.PutUint64(header[14:22], uint64(len(payload)))
	return append(header[:], payload...)
}

func TestReadRejectsOversizedShape(t *testing.T) {
	payload := binary.LittleEndian.AppendUint32(nil, 1)  // one array
	payload = binary.LittleEndian.AppendUint16(payload, 1) // name length
	payload = append(payload, 'm', 2)                      // name, rank
	payload = binary.LittleEndian.AppendUint32(payload, math.MaxUint32)
	payload = binary.LittleEndian.AppendUint32(payload, math.MaxUint32)
	payload = append(payload, make([]byte, 16)...)

	_, err := Read(bytes.NewReader(framed(payload)))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)

	// A shape larger than the values that follow it
	short := binary.LittleEndian.AppendUint32(nil, 1)
	short = binary.LittleEndian.AppendUint16(short, 1)
	short = append(short, 'v', 1)
	short = binary.LittleEndian.AppendUint32(short, 3)
	short = append(short, make([]byte, 16)...)

	_, err = Read(bytes.NewReader(framed(short)))
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
}

func TestWriteRejectsInconsistentArray(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Array{{Name: "bad", Shape: []int{3, 3}, Data: []float64{1}}}, false)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestDatasetFiles(t *testing.T) {
	dir := t.TempDir()

	batch, err := models.NewVoxelBatch([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	bank, err := models.NewModelBank(make([]float64, 2*1*1*2*3), 2, 1, 1, 2, 3)
	require.NoError(t, err)
	bank.Set(1, 0, 0, 1, []float64{7, 8, 9})

	voxelPath := filepath.Join(dir, "in", "voxels.prfa")
	modelPath := filepath.Join(dir, "in", "models.prfa")
	require.NoError(t, WriteFile(voxelPath, []Array{VoxelArray(batch)}, true))
	require.NoError(t, WriteFile(modelPath, []Array{ModelArray(bank)}, false))

	gotBatch, err := LoadVoxelBatch(voxelPath)
	require.NoError(t, err)
	assert.Equal(t, batch, gotBatch)

	gotBank, err := LoadModelBank(modelPath)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1, 2, 3}, gotBank.Shape())
	assert.Equal(t, []float64{7, 8, 9}, gotBank.TimeCourse(1, 0, 0, 1))

	// a voxel file is not a model file
	_, err = LoadModelBank(voxelPath)
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
}

func TestResultFile(t *testing.T) {
	res := models.NewFitResult(3, 3, 2)
	res.XPos = []float64{1, 2, 3}
	res.YPos = []float64{-1, -2, -3}
	res.Size = []float64{0.5, 1, 1.5}
	res.R2 = []float64{0.9, math.Inf(-1), 0.1}
	res.Residuals = []float64{0.1, 5, 2}
	res.Estimates = [][]float64{{1, 2, 3}, {4, 5, 6}}

	path := filepath.Join(t.TempDir(), "result.prfa")
	require.NoError(t, SaveResult(path, res, true))

	got, err := LoadResult(path)
	require.NoError(t, err)
	assert.Equal(t, res.XPos, got.XPos)
	assert.Equal(t, res.YPos, got.YPos)
	assert.Equal(t, res.Size, got.Size)
	assert.Equal(t, res.Residuals, got.Residuals)
	assert.Equal(t, res.Estimates, got.Estimates)
	assert.True(t, math.IsInf(got.R2[1], -1))

	_, err = ResultFromArrays(ResultArrays(res)[:3])
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
}
