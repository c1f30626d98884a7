package models

import (
	"math"
	"testing"
)

// TestPlaneAxis verifies each plane maps to its orthogonal volume axis
func TestPlaneAxis(t *testing.T) {
	cases := []struct {
		plane Plane
		axis  int
	}{
		{Axial, 0},
		{Coronal, 1},
		{Sagittal, 2},
	}
	for _, c := range cases {
		if got := c.plane.Axis(); got != c.axis {
			t.Errorf("%s: expected axis %d, got %d", c.plane, c.axis, got)
		}
	}
	if Plane("oblique").Valid() {
		t.Error("unknown plane should not be valid")
	}
}

// TestPlanePointToVolume verifies the 2D-to-3D coordinate conventions for
// all three planes
func TestPlanePointToVolume(t *testing.T) {
	cases := []struct {
		plane Plane
		index int
		u, v  float64
		want  Point3
	}{
		{Axial, 5, 3, 7, Point3{Z: 5, Y: 7, X: 3}},
		{Sagittal, 5, 3, 7, Point3{Z: 7, Y: 3, X: 5}},
		{Coronal, 5, 3, 7, Point3{Z: 7, Y: 5, X: 3}},
	}
	for _, c := range cases {
		got := PlanePointToVolume(c.plane, c.index, c.u, c.v)
		if got != c.want {
			t.Errorf("%s: expected %+v, got %+v", c.plane, c.want, got)
		}
	}
}

// TestPlaneVoxelMatchesContinuous verifies the integer and continuous
// conversions agree
func TestPlaneVoxelMatchesContinuous(t *testing.T) {
	for _, plane := range []Plane{Axial, Sagittal, Coronal} {
		vox := PlaneVoxel(plane, 4, 2, 9)
		pt := PlanePointToVolume(plane, 4, 2, 9)
		if vox != pt.Round() {
			t.Errorf("%s: voxel %+v does not match point %+v", plane, vox, pt)
		}
	}
}

// TestKeypointPlanePosition verifies slice visibility with half-voxel
// tolerance
func TestKeypointPlanePosition(t *testing.T) {
	kp := Keypoint{ID: 1, Label: 2, Z: 5.3, Y: 7, X: 3}

	u, v, ok := kp.PlanePosition(Axial, 5)
	if !ok {
		t.Fatal("keypoint should be visible on axial slice 5")
	}
	if u != 3 || v != 7 {
		t.Errorf("expected (3, 7), got (%g, %g)", u, v)
	}

	if _, _, ok := kp.PlanePosition(Axial, 6); ok {
		t.Error("keypoint at z=5.3 should not be visible on axial slice 6")
	}
	if _, _, ok := kp.PlanePosition(Sagittal, 3); !ok {
		t.Error("keypoint at x=3 should be visible on sagittal slice 3")
	}
}

// TestDistanceTo verifies Euclidean distance
func TestDistanceTo(t *testing.T) {
	a := Point3{Z: 0, Y: 0, X: 0}
	b := Point3{Z: 1, Y: 2, X: 2}
	if d := a.DistanceTo(b); math.Abs(d-3) > 1e-12 {
		t.Errorf("expected distance 3, got %g", d)
	}
}
