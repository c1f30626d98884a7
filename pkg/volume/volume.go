// Package volume wraps a dense 3D scalar grid with the physical metadata
// needed to slice it along anatomical planes and map voxel coordinates to
// physical space. Volumes are read-only after construction; all mutation in
// the application happens on annotation grids, never on image data.
package volume

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"quicklabel3d/internal/models"
)

// Volume holds one loaded scalar volume in (Z, Y, X) row-major order.
type Volume struct {
	// data is the voxel grid as a 1D array, index = z*ny*nx + y*nx + x.
	data []float64

	// shape is (Z, Y, X) voxel counts.
	shape [3]int

	// spacing is physical units per voxel along (Z, Y, X).
	spacing [3]float64

	// origin is the physical position of voxel (0, 0, 0) in (Z, Y, X).
	origin [3]float64

	// affine maps homogeneous voxel coordinates (z, y, x, 1) to physical
	// space; affineInv is its precomputed inverse.
	affine    *mat.Dense
	affineInv *mat.Dense
}

// New constructs a Volume from a dense (Z, Y, X) grid. The data length must
// equal the product of the shape and every dimension and spacing component
// must be positive.
func New(data []float64, shape [3]int, spacing, origin [3]float64) (*Volume, error) {
	n := shape[0] * shape[1] * shape[2]
	for i, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("volume shape[%d] = %d, must be positive", i, d)
		}
	}
	for i, s := range spacing {
		if s <= 0 {
			return nil, fmt.Errorf("volume spacing[%d] = %g, must be positive", i, s)
		}
	}
	if len(data) != n {
		return nil, fmt.Errorf("volume data length %d does not match shape %v (want %d)", len(data), shape, n)
	}

	v := &Volume{
		data:    data,
		shape:   shape,
		spacing: spacing,
		origin:  origin,
	}

	// Diagonal affine from spacing and origin. A direction matrix from the
	// loader would slot in here; orthogonal-plane slicing never needs it.
	v.affine = mat.NewDense(4, 4, []float64{
		spacing[0], 0, 0, origin[0],
		0, spacing[1], 0, origin[1],
		0, 0, spacing[2], origin[2],
		0, 0, 0, 1,
	})
	v.affineInv = mat.NewDense(4, 4, nil)
	if err := v.affineInv.Inverse(v.affine); err != nil {
		return nil, fmt.Errorf("volume affine is singular: %w", err)
	}

	return v, nil
}

// Shape returns the (Z, Y, X) voxel counts.
func (v *Volume) Shape() [3]int { return v.shape }

// Data returns the underlying (Z, Y, X) row-major grid. Callers must treat
// it as read-only; it is exposed for bulk consumers (rendering, reference
// grid conversion) that would crawl through VoxelAt otherwise.
func (v *Volume) Data() []float64 { return v.data }

// Spacing returns physical units per voxel along (Z, Y, X).
func (v *Volume) Spacing() [3]float64 { return v.spacing }

// Origin returns the physical position of voxel (0, 0, 0).
func (v *Volume) Origin() [3]float64 { return v.origin }

// NumVoxels returns the total voxel count.
func (v *Volume) NumVoxels() int { return len(v.data) }

// Contains reports whether the voxel address lies inside the grid.
func (v *Volume) Contains(p models.Voxel) bool {
	return p.Z >= 0 && p.Z < v.shape[0] &&
		p.Y >= 0 && p.Y < v.shape[1] &&
		p.X >= 0 && p.X < v.shape[2]
}

// VoxelAt returns the scalar value at (z, y, x).
func (v *Volume) VoxelAt(z, y, x int) (float64, error) {
	if z < 0 || z >= v.shape[0] {
		return 0, &models.OutOfRangeError{What: "z", Value: z, Max: v.shape[0]}
	}
	if y < 0 || y >= v.shape[1] {
		return 0, &models.OutOfRangeError{What: "y", Value: y, Max: v.shape[1]}
	}
	if x < 0 || x >= v.shape[2] {
		return 0, &models.OutOfRangeError{What: "x", Value: x, Max: v.shape[2]}
	}
	return v.data[z*v.shape[1]*v.shape[2]+y*v.shape[2]+x], nil
}

// Sample returns the value at a continuous position using trilinear
// interpolation. Positions outside the grid contribute zero, matching the
// constant-fill behavior expected by oblique slice extraction.
func (v *Volume) Sample(p models.Point3) float64 {
	z0 := int(math.Floor(p.Z))
	y0 := int(math.Floor(p.Y))
	x0 := int(math.Floor(p.X))
	fz, fy, fx := p.Z-float64(z0), p.Y-float64(y0), p.X-float64(x0)

	var acc float64
	for dz := 0; dz <= 1; dz++ {
		for dy := 0; dy <= 1; dy++ {
			for dx := 0; dx <= 1; dx++ {
				val, err := v.VoxelAt(z0+dz, y0+dy, x0+dx)
				if err != nil {
					continue
				}
				wz := fz
				if dz == 0 {
					wz = 1 - fz
				}
				wy := fy
				if dy == 0 {
					wy = 1 - fy
				}
				wx := fx
				if dx == 0 {
					wx = 1 - fx
				}
				acc += val * wz * wy * wx
			}
		}
	}
	return acc
}

// MaxIndex returns the largest valid slice index for the plane.
func (v *Volume) MaxIndex(plane models.Plane) int {
	switch plane {
	case models.Axial:
		return v.shape[0] - 1
	case models.Coronal:
		return v.shape[1] - 1
	case models.Sagittal:
		return v.shape[2] - 1
	}
	return 0
}

// SliceShape returns (height, width) of 2D slices for the plane:
// axial (Y, X), sagittal (Z, Y), coronal (Z, X).
func (v *Volume) SliceShape(plane models.Plane) (h, w int) {
	switch plane {
	case models.Axial:
		return v.shape[1], v.shape[2]
	case models.Sagittal:
		return v.shape[0], v.shape[1]
	default: // coronal
		return v.shape[0], v.shape[2]
	}
}

// AspectRatio returns the display width multiplier for the plane derived
// from voxel spacing, so anisotropic volumes render with correct proportions.
func (v *Volume) AspectRatio(plane models.Plane) float64 {
	sz, sy, sx := v.spacing[0], v.spacing[1], v.spacing[2]
	switch plane {
	case models.Axial:
		if sy != 0 {
			return sx / sy
		}
	case models.Sagittal:
		if sz != 0 {
			return sy / sz
		}
	case models.Coronal:
		if sz != 0 {
			return sx / sz
		}
	}
	return 1.0
}

// Slice extracts a 2D cross-section for the given plane and index. The
// returned Slice owns a copy of the data in the plane's native (row, col)
// orientation.
func (v *Volume) Slice(plane models.Plane, index int) (*Slice, error) {
	if !plane.Valid() {
		return nil, fmt.Errorf("unknown plane: %q", plane)
	}
	max := v.MaxIndex(plane) + 1
	if index < 0 || index >= max {
		return nil, &models.OutOfRangeError{What: string(plane) + " index", Value: index, Max: max}
	}

	h, w := v.SliceShape(plane)
	out := make([]float64, h*w)
	ny, nx := v.shape[1], v.shape[2]

	switch plane {
	case models.Axial:
		// (Y, X) at fixed Z: one contiguous block.
		copy(out, v.data[index*ny*nx:(index+1)*ny*nx])
	case models.Sagittal:
		// (Z, Y) at fixed X.
		for z := 0; z < h; z++ {
			for y := 0; y < w; y++ {
				out[z*w+y] = v.data[z*ny*nx+y*nx+index]
			}
		}
	case models.Coronal:
		// (Z, X) at fixed Y.
		for z := 0; z < h; z++ {
			copy(out[z*w:(z+1)*w], v.data[z*ny*nx+index*nx:z*ny*nx+index*nx+w])
		}
	}

	return &Slice{Data: out, Height: h, Width: w, Plane: plane, Index: index}, nil
}

// ToPhysical maps a continuous voxel-space position to physical coordinates.
func (v *Volume) ToPhysical(p models.Point3) models.Point3 {
	return applyAffine(v.affine, p)
}

// FromPhysical maps a physical position back into voxel space.
func (v *Volume) FromPhysical(p models.Point3) models.Point3 {
	return applyAffine(v.affineInv, p)
}

func applyAffine(m *mat.Dense, p models.Point3) models.Point3 {
	in := mat.NewVecDense(4, []float64{p.Z, p.Y, p.X, 1})
	var out mat.VecDense
	out.MulVec(m, in)
	return models.Point3{Z: out.AtVec(0), Y: out.AtVec(1), X: out.AtVec(2)}
}

// ValueRange returns the (low, high) percentile values of the volume,
// used for display windowing. Percentiles rather than min/max keep a few
// outlier voxels from flattening the contrast.
func (v *Volume) ValueRange(percentileLow, percentileHigh float64) (float64, float64) {
	sorted := make([]float64, len(v.data))
	copy(sorted, v.data)
	sort.Float64s(sorted)

	lo := stat.Quantile(percentileLow/100, stat.Empirical, sorted, nil)
	hi := stat.Quantile(percentileHigh/100, stat.Empirical, sorted, nil)
	return lo, hi
}

// Slice is one extracted 2D cross-section.
type Slice struct {
	// Data is the slice in row-major (Height, Width) order.
	Data []float64

	Height int
	Width  int

	Plane models.Plane
	Index int
}

// At returns the value at (row, col) without bounds checking.
func (s *Slice) At(row, col int) float64 {
	return s.Data[row*s.Width+col]
}
