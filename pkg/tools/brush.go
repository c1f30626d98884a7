package tools

import (
	"math"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/annotation"
)

// BrushTool paints (primary) or erases (secondary) a disk of voxels under
// the pointer. A stroke accumulates its footprint during the drag and is
// applied as one bulk mutation on release, so observers see a single dirty
// boundary per stroke and an aborted stroke leaves the store untouched.
//
// By default painting is confined to the active slice; volumetric mode
// extends the footprint to a ball across neighboring slices.
type BrushTool struct {
	store *annotation.Store

	label      int
	radius     int
	minRadius  int
	maxRadius  int
	volumetric bool

	// Stroke state
	drawing   bool
	erasing   bool
	plane     models.Plane
	slice     int
	lastU     int
	lastV     int
	footprint map[models.Voxel]struct{}
}

// NewBrushTool creates a brush with the given radius bounds (voxel units).
func NewBrushTool(store *annotation.Store, radius, minRadius, maxRadius int, volumetric bool) *BrushTool {
	b := &BrushTool{
		store:      store,
		label:      1,
		minRadius:  minRadius,
		maxRadius:  maxRadius,
		volumetric: volumetric,
	}
	b.SetRadius(radius)
	return b
}

// Name implements Tool.
func (t *BrushTool) Name() string { return "brush" }

// SetLabel selects the label painted by primary strokes.
func (t *BrushTool) SetLabel(label int) { t.label = label }

// SetRadius adjusts the brush radius, clamped to the configured bounds.
func (t *BrushTool) SetRadius(r int) {
	if r < t.minRadius {
		r = t.minRadius
	}
	if r > t.maxRadius {
		r = t.maxRadius
	}
	t.radius = r
}

// Radius returns the current brush radius.
func (t *BrushTool) Radius() int { return t.radius }

// SetVolumetric toggles the 3D ball brush.
func (t *BrushTool) SetVolumetric(on bool) { t.volumetric = on }

// Press implements Tool: starts a stroke and stamps the first footprint.
func (t *BrushTool) Press(pt Point, btn Button) error {
	t.Abort()
	t.drawing = true
	t.erasing = btn == ButtonSecondary
	t.plane = pt.Plane
	t.slice = pt.Slice
	t.lastU = int(math.Round(pt.U))
	t.lastV = int(math.Round(pt.V))
	t.footprint = make(map[models.Voxel]struct{})
	t.stamp(t.lastU, t.lastV)
	return nil
}

// Drag implements Tool: stamps the line segment from the previous sample so
// fast pointer movement leaves no gaps. A sample from another plane or
// slice aborts the stroke.
func (t *BrushTool) Drag(pt Point) error {
	if !t.drawing {
		return nil
	}
	if pt.Plane != t.plane || pt.Slice != t.slice {
		t.Abort()
		return nil
	}

	u := int(math.Round(pt.U))
	v := int(math.Round(pt.V))
	for _, p := range linePoints(t.lastU, t.lastV, u, v) {
		t.stamp(p[0], p[1])
	}
	t.lastU, t.lastV = u, v
	return nil
}

// Release implements Tool: applies the accumulated footprint as one bulk
// write.
func (t *BrushTool) Release(Point) error {
	if !t.drawing {
		return nil
	}
	voxels := make([]models.Voxel, 0, len(t.footprint))
	for p := range t.footprint {
		voxels = append(voxels, p)
	}
	t.reset()

	label := t.label
	if t.erasing {
		label = 0
	}
	return t.store.SetVoxelLabelsBulk(voxels, label)
}

// Abort implements Tool: discards the uncommitted stroke.
func (t *BrushTool) Abort() { t.reset() }

func (t *BrushTool) reset() {
	t.drawing = false
	t.footprint = nil
}

// Cursor implements Tool.
func (t *BrushTool) Cursor() Cursor {
	return Cursor{Shape: CursorBrush, Radius: t.radius}
}

// stamp adds the brush footprint centered at in-plane (u, v) to the stroke,
// clipped to the volume bounds.
func (t *BrushTool) stamp(u, v int) {
	r := t.radius
	r2 := r * r
	shape := t.store.Shape()

	depth := 0
	if t.volumetric {
		depth = r
	}
	for dw := -depth; dw <= depth; dw++ {
		for dv := -r; dv <= r; dv++ {
			for du := -r; du <= r; du++ {
				if du*du+dv*dv+dw*dw > r2 {
					continue
				}
				p := models.PlaneVoxel(t.plane, t.slice+dw, u+du, v+dv)
				if p.Z < 0 || p.Z >= shape[0] ||
					p.Y < 0 || p.Y >= shape[1] ||
					p.X < 0 || p.X >= shape[2] {
					continue
				}
				t.footprint[p] = struct{}{}
			}
		}
	}
}

// linePoints rasterizes the segment from (u0, v0) to (u1, v1) at voxel
// resolution (Bresenham), excluding the start point, which the previous
// stamp covered.
func linePoints(u0, v0, u1, v1 int) [][2]int {
	du := abs(u1 - u0)
	dv := -abs(v1 - v0)
	su, sv := 1, 1
	if u0 > u1 {
		su = -1
	}
	if v0 > v1 {
		sv = -1
	}
	err := du + dv

	var out [][2]int
	u, v := u0, v0
	for u != u1 || v != v1 {
		e2 := 2 * err
		if e2 >= dv {
			err += dv
			u += su
		}
		if e2 <= du {
			err += du
			v += sv
		}
		out = append(out, [2]int{u, v})
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
