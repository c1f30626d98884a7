// Package oblique defines arbitrary cutting planes through a volume and
// extracts resampled slices from them. It backs the cardiac view planning
// workflow: a guide line drawn on the axial view derives a pseudo
// two-chamber plane, a line on that view derives the pseudo four-chamber
// plane (rotatable about the long axis), and a further line derives the
// short-axis stack.
package oblique

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/volume"
)

// Vec is a 3-vector in volume space, (Z, Y, X) order like everything else.
type Vec [3]float64

func (v Vec) slice() []float64 { return []float64{v[0], v[1], v[2]} }

// Dot returns the inner product.
func (v Vec) Dot(w Vec) float64 {
	return floats.Dot(v.slice(), w.slice())
}

// Norm returns the Euclidean length.
func (v Vec) Norm() float64 {
	return floats.Norm(v.slice(), 2)
}

// Normalize returns the unit vector, or v unchanged when near zero length.
func (v Vec) Normalize() Vec {
	n := v.Norm()
	if n < 1e-10 {
		return v
	}
	return v.Scale(1 / n)
}

// Scale returns v multiplied by s.
func (v Vec) Scale(s float64) Vec {
	return Vec{v[0] * s, v[1] * s, v[2] * s}
}

// Add returns v + w.
func (v Vec) Add(w Vec) Vec {
	return Vec{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Sub returns v - w.
func (v Vec) Sub(w Vec) Vec {
	return Vec{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Cross returns the cross product v × w.
func (v Vec) Cross(w Vec) Vec {
	return Vec{
		v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0],
	}
}

// Point converts to a models.Point3.
func (v Vec) Point() models.Point3 {
	return models.Point3{Z: v[0], Y: v[1], X: v[2]}
}

// Plane is an oblique cutting plane: an origin at the slice center, unit
// u/v axes spanning the slice, a unit normal, and the output slice size in
// samples.
type Plane struct {
	Origin Vec
	UAxis  Vec
	VAxis  Vec
	Normal Vec
	Width  int
	Height int
}

// MapTo3D converts in-slice coordinates (plus an offset along the normal
// for scrolling) to a volume-space position. Slice coordinates are centered:
// (0, 0) is the top-left corner, (Width, Height) the bottom-right.
func (p Plane) MapTo3D(u, v, offset float64) Vec {
	cu := u - float64(p.Width)/2
	cv := v - float64(p.Height)/2
	return p.Origin.
		Add(p.UAxis.Scale(cu)).
		Add(p.VAxis.Scale(cv)).
		Add(p.Normal.Scale(offset))
}

// MapFrom3D projects a volume-space position onto the slice, returning its
// in-slice coordinates. ok is false when the point lies farther than
// tolerance from the plane.
func (p Plane) MapFrom3D(pt Vec, tolerance float64) (u, v float64, ok bool) {
	diff := pt.Sub(p.Origin)
	if math.Abs(diff.Dot(p.Normal)) > tolerance {
		return 0, 0, false
	}
	u = diff.Dot(p.UAxis) + float64(p.Width)/2
	v = diff.Dot(p.VAxis) + float64(p.Height)/2
	return u, v, true
}

// WithOffset returns a parallel plane shifted along the normal.
func (p Plane) WithOffset(offset float64) Plane {
	shifted := p
	shifted.Origin = p.Origin.Add(p.Normal.Scale(offset))
	return shifted
}

// ExtractSlice resamples the volume over the plane's sampling grid with
// trilinear interpolation, returning the slice row-major (Height, Width).
// Positions outside the volume read as zero.
func ExtractSlice(vol *volume.Volume, p Plane, offset float64) []float64 {
	out := make([]float64, p.Width*p.Height)
	for v := 0; v < p.Height; v++ {
		for u := 0; u < p.Width; u++ {
			pos := p.MapTo3D(float64(u)+0.5, float64(v)+0.5, offset)
			out[v*p.Width+u] = vol.Sample(pos.Point())
		}
	}
	return out
}

// TwoChamberFromAxialLine derives the pseudo two-chamber plane from a guide
// line drawn on an axial slice. The plane contains the line, is
// perpendicular to the axial plane, and is viewed with the line horizontal
// and the superior direction up.
// The plane spans the full Z extent regardless of which axial slice the
// line was drawn on.
func TwoChamberFromAxialLine(y1, x1, y2, x2 float64, shape [3]int) Plane {
	zDim, yDim, xDim := shape[0], shape[1], shape[2]

	lineDir := Vec{0, y2 - y1, x2 - x1}.Normalize()
	normal := Vec{0, lineDir[2], -lineDir[1]}.Normalize()

	uAxis := lineDir
	// Negative Z so the superior side renders at the top of the slice.
	vAxis := Vec{-1, 0, 0}

	origin := Vec{float64(zDim) / 2, (y1 + y2) / 2, (x1 + x2) / 2}

	size := int(math.Max(float64(xDim), float64(yDim)) * 1.5)
	return Plane{
		Origin: origin,
		UAxis:  uAxis,
		VAxis:  vAxis,
		Normal: normal,
		Width:  size,
		Height: zDim,
	}
}

// FourChamberFromLine derives the pseudo four-chamber plane from a
// valve-to-apex guide line drawn on the two-chamber view. rotationDegrees
// turns the plane about the long axis; at zero the viewing direction
// matches the two-chamber view.
func FourChamberFromLine(u1, v1, u2, v2 float64, twoChamber Plane, shape [3]int, rotationDegrees float64) Plane {
	valve := twoChamber.MapTo3D(u1, v1, 0)
	apex := twoChamber.MapTo3D(u2, v2, 0)
	longAxis := apex.Sub(valve).Normalize()

	// Base normal: the two-chamber normal projected off the long axis, so
	// zero rotation preserves the viewing direction. Falls back to the
	// perpendicular when they are parallel.
	proj := twoChamber.Normal.Sub(longAxis.Scale(twoChamber.Normal.Dot(longAxis)))
	var baseNormal Vec
	if proj.Norm() < 1e-6 {
		baseNormal = twoChamber.Normal.Cross(longAxis).Normalize()
	} else {
		baseNormal = proj.Normalize()
	}

	// Rodrigues' rotation about the long axis; the axial component is zero
	// because baseNormal is already perpendicular to the axis.
	theta := rotationDegrees * math.Pi / 180
	normal := baseNormal.Scale(math.Cos(theta)).
		Add(longAxis.Cross(baseNormal).Scale(math.Sin(theta))).
		Normalize()

	// Long axis vertical with the valve (superior) at the top.
	vAxis := longAxis.Scale(-1)
	uAxis := vAxis.Cross(normal).Normalize()

	zDim, yDim, xDim := shape[0], shape[1], shape[2]
	size := int(math.Max(float64(xDim), float64(yDim)) * 1.5)
	return Plane{
		Origin: valve,
		UAxis:  uAxis,
		VAxis:  vAxis,
		Normal: normal,
		Width:  size,
		Height: zDim,
	}
}

// ShortAxisFromLine derives the short-axis plane from a long-axis guide
// line drawn on the four-chamber view: the plane is perpendicular to the
// line, centered at its midpoint.
func ShortAxisFromLine(u1, v1, u2, v2 float64, fourChamber Plane, shape [3]int) Plane {
	p1 := fourChamber.MapTo3D(u1, v1, 0)
	p2 := fourChamber.MapTo3D(u2, v2, 0)
	normal := p2.Sub(p1).Normalize()

	// Keep the four-chamber horizontal as the in-plane reference where
	// possible.
	uAxis := fourChamber.UAxis.Sub(normal.Scale(fourChamber.UAxis.Dot(normal)))
	if uAxis.Norm() < 1e-6 {
		uAxis = fourChamber.VAxis.Sub(normal.Scale(fourChamber.VAxis.Dot(normal)))
	}
	uAxis = uAxis.Normalize()
	vAxis := normal.Cross(uAxis).Normalize()

	origin := p1.Add(p2).Scale(0.5)

	_, yDim, xDim := shape[0], shape[1], shape[2]
	size := int(math.Max(float64(xDim), float64(yDim)) * 1.2)
	return Plane{
		Origin: origin,
		UAxis:  uAxis,
		VAxis:  vAxis,
		Normal: normal,
		Width:  size,
		Height: size,
	}
}
