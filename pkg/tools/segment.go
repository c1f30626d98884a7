package tools

import (
	"math"
	"sort"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/annotation"
)

// SegmentTool records a freehand contour during the drag and fills its
// interior on release: primary button fills with the current label,
// secondary erases. Self-intersecting contours fill by the even-odd rule.
// Degenerate contours (fewer than three distinct points, or zero enclosed
// area) are discarded without mutation.
type SegmentTool struct {
	store *annotation.Store

	label int

	drawing bool
	erasing bool
	plane   models.Plane
	slice   int
	contour [][2]float64
}

// NewSegmentTool creates the contour fill tool.
func NewSegmentTool(store *annotation.Store) *SegmentTool {
	return &SegmentTool{store: store, label: 1}
}

// Name implements Tool.
func (t *SegmentTool) Name() string { return "segment" }

// SetLabel selects the fill label.
func (t *SegmentTool) SetLabel(label int) { t.label = label }

// Press implements Tool: starts recording a contour.
func (t *SegmentTool) Press(pt Point, btn Button) error {
	t.Abort()
	t.drawing = true
	t.erasing = btn == ButtonSecondary
	t.plane = pt.Plane
	t.slice = pt.Slice
	t.contour = [][2]float64{{pt.U, pt.V}}
	return nil
}

// Drag implements Tool: appends a contour point when it differs from the
// last, bounding contour length under pointer jitter. A sample from another
// plane or slice aborts the gesture.
func (t *SegmentTool) Drag(pt Point) error {
	if !t.drawing {
		return nil
	}
	if pt.Plane != t.plane || pt.Slice != t.slice {
		t.Abort()
		return nil
	}
	last := t.contour[len(t.contour)-1]
	if pt.U == last[0] && pt.V == last[1] {
		return nil
	}
	t.contour = append(t.contour, [2]float64{pt.U, pt.V})
	return nil
}

// Release implements Tool: closes the contour, rasterizes the interior and
// applies it as one bulk write.
func (t *SegmentTool) Release(Point) error {
	if !t.drawing {
		return nil
	}
	contour := t.contour
	erasing := t.erasing
	t.reset()

	if countDistinct(contour) < 3 || polygonArea(contour) == 0 {
		return nil
	}

	shape := t.store.Shape()
	var voxels []models.Voxel
	for _, cell := range fillPolygon(contour) {
		p := models.PlaneVoxel(t.plane, t.slice, cell[0], cell[1])
		if p.Z < 0 || p.Z >= shape[0] ||
			p.Y < 0 || p.Y >= shape[1] ||
			p.X < 0 || p.X >= shape[2] {
			continue
		}
		voxels = append(voxels, p)
	}

	label := t.label
	if erasing {
		label = 0
	}
	return t.store.SetVoxelLabelsBulk(voxels, label)
}

// Abort implements Tool: discards the recorded contour.
func (t *SegmentTool) Abort() { t.reset() }

func (t *SegmentTool) reset() {
	t.drawing = false
	t.contour = nil
}

// Cursor implements Tool.
func (t *SegmentTool) Cursor() Cursor {
	return Cursor{Shape: CursorContour}
}

func countDistinct(pts [][2]float64) int {
	seen := make(map[[2]float64]struct{}, len(pts))
	for _, p := range pts {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// polygonArea is the shoelace area of the closed contour.
func polygonArea(pts [][2]float64) float64 {
	var acc float64
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		acc += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return math.Abs(acc) / 2
}

// fillPolygon scan-converts the closed contour by even-odd parity,
// returning the enclosed integer (u, v) cells. Each scanline collects the
// crossings of edges spanning it (half-open in v so shared vertices count
// once) and fills between alternate pairs, left edge inclusive.
func fillPolygon(pts [][2]float64) [][2]int {
	n := len(pts)
	if n < 3 {
		return nil
	}

	vMin, vMax := pts[0][1], pts[0][1]
	for _, p := range pts[1:] {
		vMin = math.Min(vMin, p[1])
		vMax = math.Max(vMax, p[1])
	}

	var out [][2]int
	for v := int(math.Ceil(vMin)); float64(v) <= vMax; v++ {
		fv := float64(v)
		var crossings []float64
		for i := 0; i < n; i++ {
			a, b := pts[i], pts[(i+1)%n]
			if (a[1] <= fv && b[1] > fv) || (b[1] <= fv && a[1] > fv) {
				t := (fv - a[1]) / (b[1] - a[1])
				crossings = append(crossings, a[0]+t*(b[0]-a[0]))
			}
		}
		sort.Float64s(crossings)
		for i := 0; i+1 < len(crossings); i += 2 {
			for u := int(math.Ceil(crossings[i])); float64(u) < crossings[i+1]; u++ {
				out = append(out, [2]int{u, v})
			}
		}
	}
	return out
}
