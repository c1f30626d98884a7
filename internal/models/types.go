package models

import (
	"fmt"
	"math"
)

// Plane identifies one of the three canonical anatomical cross-sections
// of a volume stored in (Z, Y, X) order.
type Plane string

const (
	// Axial is the XY plane at a fixed Z index.
	Axial Plane = "axial"

	// Sagittal is the YZ plane at a fixed X index.
	Sagittal Plane = "sagittal"

	// Coronal is the XZ plane at a fixed Y index.
	Coronal Plane = "coronal"
)

// Valid reports whether p is one of the three known planes.
func (p Plane) Valid() bool {
	switch p {
	case Axial, Sagittal, Coronal:
		return true
	}
	return false
}

// Axis returns the volume axis orthogonal to the plane:
// 0 for axial (Z), 1 for coronal (Y), 2 for sagittal (X).
func (p Plane) Axis() int {
	switch p {
	case Axial:
		return 0
	case Coronal:
		return 1
	case Sagittal:
		return 2
	}
	return -1
}

// Voxel is a discrete grid cell address in (Z, Y, X) order.
type Voxel struct {
	Z, Y, X int
}

// Point3 is a continuous position in voxel space, (Z, Y, X) order.
// Sub-voxel coordinates are meaningful for keypoints and oblique planes.
type Point3 struct {
	Z, Y, X float64
}

// Round converts a continuous position to the nearest voxel.
func (p Point3) Round() Voxel {
	return Voxel{
		Z: int(math.Round(p.Z)),
		Y: int(math.Round(p.Y)),
		X: int(math.Round(p.X)),
	}
}

// DistanceTo returns the Euclidean distance to another point in voxel units.
func (p Point3) DistanceTo(q Point3) float64 {
	dz := p.Z - q.Z
	dy := p.Y - q.Y
	dx := p.X - q.X
	return math.Sqrt(dz*dz + dy*dy + dx*dx)
}

// Keypoint is a single labeled 3D point annotation. Coordinates are stored
// in volume space but may originate from any 2D plane view.
type Keypoint struct {
	// ID is unique within one annotation store and never reused.
	ID int `json:"id"`

	// Label is a small positive label id from the configured label table.
	Label int `json:"label"`

	Z float64 `json:"z"`
	Y float64 `json:"y"`
	X float64 `json:"x"`
}

// Position returns the keypoint location as a Point3.
func (k Keypoint) Position() Point3 {
	return Point3{Z: k.Z, Y: k.Y, X: k.X}
}

// PlanePosition projects the keypoint onto the given slice, returning its
// in-plane (u, v) coordinates. The keypoint is visible on a slice when its
// coordinate along the orthogonal axis lies within half a voxel of the
// slice index.
func (k Keypoint) PlanePosition(plane Plane, index int) (u, v float64, ok bool) {
	const tolerance = 0.5

	switch plane {
	case Axial:
		if math.Abs(k.Z-float64(index)) <= tolerance {
			return k.X, k.Y, true
		}
	case Sagittal:
		if math.Abs(k.X-float64(index)) <= tolerance {
			return k.Y, k.Z, true
		}
	case Coronal:
		if math.Abs(k.Y-float64(index)) <= tolerance {
			return k.X, k.Z, true
		}
	}
	return 0, 0, false
}

// PlanePointToVolume converts an in-plane (u, v) position plus the slice
// index into a continuous volume-space position.
//
// Plane conventions match slice extraction: axial shows (u, v) = (X, Y),
// sagittal shows (Y, Z), coronal shows (X, Z).
func PlanePointToVolume(plane Plane, index int, u, v float64) Point3 {
	switch plane {
	case Axial:
		return Point3{Z: float64(index), Y: v, X: u}
	case Sagittal:
		return Point3{Z: v, Y: u, X: float64(index)}
	default: // coronal
		return Point3{Z: v, Y: float64(index), X: u}
	}
}

// PlaneVoxel converts integer in-plane coordinates plus the slice index
// into a voxel address using the same conventions as PlanePointToVolume.
func PlaneVoxel(plane Plane, index, u, v int) Voxel {
	switch plane {
	case Axial:
		return Voxel{Z: index, Y: v, X: u}
	case Sagittal:
		return Voxel{Z: v, Y: u, X: index}
	default: // coronal
		return Voxel{Z: v, Y: index, X: u}
	}
}

// OutOfRangeError reports a coordinate or slice index outside the volume.
type OutOfRangeError struct {
	What  string
	Value int
	Max   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [0, %d)", e.What, e.Value, e.Max)
}
