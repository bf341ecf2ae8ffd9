// Package visualization renders per-voxel parameter maps as grayscale
// image slices.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
)

// Viewer renders one per-voxel parameter map laid out as a volume
type Viewer struct {
	// values holds the map in x-fastest order: values[z*width*height + y*width + x]
	values []float64

	// dimensions of the volume
	width  int
	height int
	depth  int

	// lo and hi are the finite value range mapped onto black..white
	lo float64
	hi float64
}

// NewViewer creates a viewer for a parameter map. The gray scale spans the
// finite values of the map; NaN and infinite values render black. A map
// with a single finite value renders it mid-gray.
func NewViewer(values []float64, width, height, depth int) *Viewer {
	v := &Viewer{
		values: values,
		width:  width,
		height: height,
		depth:  depth,
		lo:     math.Inf(1),
		hi:     math.Inf(-1),
	}
	for _, val := range values {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		v.lo = math.Min(v.lo, val)
		v.hi = math.Max(v.hi, val)
	}
	return v
}

// uniformLevel is the gray level of every finite value in a map whose
// finite values are all equal
const uniformLevel = 32768

// intensity maps a value to a 16-bit gray level
func (v *Viewer) intensity(val float64) uint16 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0
	}
	if v.hi <= v.lo {
		return uniformLevel
	}
	scaled := (val - v.lo) / (v.hi - v.lo)
	return uint16(math.Max(0, math.Min(65535, scaled*65535)))
}

func (v *Viewer) at(x, y, z int) float64 {
	idx := z*v.width*v.height + y*v.width + x
	if idx < len(v.values) {
		return v.values[idx]
	}
	return math.NaN()
}

// ExtractSlice extracts a 2D slice of the map along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetGray16(z, y, color.Gray16{Y: v.intensity(v.at(position, y, z))})
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, z, color.Gray16{Y: v.intensity(v.at(x, position, z))})
			}
		}

	case "z", "Z":
		// XY plane
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: v.intensity(v.at(x, y, position))})
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
