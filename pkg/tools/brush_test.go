package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicklabel3d/internal/models"
	"quicklabel3d/pkg/annotation"
)

func newToolStore(t *testing.T) *annotation.Store {
	t.Helper()
	s, err := annotation.NewStore("p", [3]int{10, 10, 10})
	require.NoError(t, err)
	return s
}

func labelAt(t *testing.T, s *annotation.Store, z, y, x int) int {
	t.Helper()
	got, err := s.LabelAt(models.Voxel{Z: z, Y: y, X: x})
	require.NoError(t, err)
	return got
}

func labeledVoxels(s *annotation.Store) int {
	count := 0
	for _, v := range s.LabelData() {
		if v != 0 {
			count++
		}
	}
	return count
}

func TestBrushRadiusOneDisk(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 1, 1, 25, false)
	b.SetLabel(3)

	pt := Point{Plane: models.Axial, Slice: 5, U: 5, V: 5}
	require.NoError(t, b.Press(pt, ButtonPrimary))
	require.NoError(t, b.Release(pt))

	// Center plus axis neighbors within the slice.
	assert.Equal(t, 3, labelAt(t, s, 5, 5, 5))
	assert.Equal(t, 3, labelAt(t, s, 5, 5, 4))
	assert.Equal(t, 3, labelAt(t, s, 5, 5, 6))
	assert.Equal(t, 3, labelAt(t, s, 5, 4, 5))
	assert.Equal(t, 3, labelAt(t, s, 5, 6, 5))

	// No bleed into adjacent slices and no diagonal corners.
	assert.Equal(t, 0, labelAt(t, s, 4, 5, 5))
	assert.Equal(t, 0, labelAt(t, s, 6, 5, 5))
	assert.Equal(t, 0, labelAt(t, s, 5, 4, 4))
	assert.Equal(t, 5, labeledVoxels(s))
}

func TestBrushVolumetricBall(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 1, 1, 25, true)
	b.SetLabel(2)

	pt := Point{Plane: models.Axial, Slice: 5, U: 5, V: 5}
	require.NoError(t, b.Press(pt, ButtonPrimary))
	require.NoError(t, b.Release(pt))

	assert.Equal(t, 2, labelAt(t, s, 4, 5, 5))
	assert.Equal(t, 2, labelAt(t, s, 6, 5, 5))
	assert.Equal(t, 7, labeledVoxels(s))
}

func TestBrushStrokeIsAtomic(t *testing.T) {
	s := newToolStore(t)
	rec := &eventRecorder{}
	s.Subscribe(rec)
	b := NewBrushTool(s, 2, 1, 25, false)
	b.SetLabel(1)

	require.NoError(t, b.Press(Point{Plane: models.Axial, Slice: 5, U: 3, V: 3}, ButtonPrimary))
	require.NoError(t, b.Drag(Point{Plane: models.Axial, Slice: 5, U: 6, V: 3}))

	// Nothing lands before release.
	assert.False(t, s.Dirty())
	assert.Empty(t, rec.events)

	require.NoError(t, b.Release(Point{Plane: models.Axial, Slice: 5, U: 6, V: 3}))
	assert.True(t, s.Dirty())
	assert.Len(t, rec.events, 1)
	assert.Equal(t, 1, labelAt(t, s, 5, 3, 3))
	assert.Equal(t, 1, labelAt(t, s, 5, 3, 6))
}

func TestBrushAbortDiscardsStroke(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 1, 1, 25, false)

	require.NoError(t, b.Press(Point{Plane: models.Axial, Slice: 5, U: 5, V: 5}, ButtonPrimary))
	b.Abort()
	require.NoError(t, b.Release(Point{Plane: models.Axial, Slice: 5, U: 5, V: 5}))

	assert.False(t, s.Dirty())
	assert.Zero(t, labeledVoxels(s))
}

func TestBrushSliceChangeAborts(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 1, 1, 25, false)

	require.NoError(t, b.Press(Point{Plane: models.Axial, Slice: 5, U: 5, V: 5}, ButtonPrimary))
	require.NoError(t, b.Drag(Point{Plane: models.Axial, Slice: 6, U: 5, V: 5}))
	require.NoError(t, b.Release(Point{Plane: models.Axial, Slice: 6, U: 5, V: 5}))

	assert.False(t, s.Dirty())
	assert.Zero(t, labeledVoxels(s))
}

func TestBrushDragInterpolates(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 1, 1, 25, false)
	b.SetLabel(4)

	// A jump across the slice must still paint a connected line.
	require.NoError(t, b.Press(Point{Plane: models.Axial, Slice: 2, U: 1, V: 5}, ButtonPrimary))
	require.NoError(t, b.Drag(Point{Plane: models.Axial, Slice: 2, U: 8, V: 5}))
	require.NoError(t, b.Release(Point{Plane: models.Axial, Slice: 2, U: 8, V: 5}))

	for x := 1; x <= 8; x++ {
		assert.Equal(t, 4, labelAt(t, s, 2, 5, x), "x=%d", x)
	}
}

func TestBrushErase(t *testing.T) {
	s := newToolStore(t)
	require.NoError(t, s.SetVoxelLabel(models.Voxel{Z: 5, Y: 5, X: 5}, 3))
	require.NoError(t, s.SetVoxelLabel(models.Voxel{Z: 5, Y: 9, X: 9}, 3))

	b := NewBrushTool(s, 1, 1, 25, false)
	pt := Point{Plane: models.Axial, Slice: 5, U: 5, V: 5}
	require.NoError(t, b.Press(pt, ButtonSecondary))
	require.NoError(t, b.Release(pt))

	assert.Equal(t, 0, labelAt(t, s, 5, 5, 5))
	assert.Equal(t, 3, labelAt(t, s, 5, 9, 9))
}

func TestBrushClipsAtVolumeEdge(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 3, 1, 25, false)
	b.SetLabel(1)

	pt := Point{Plane: models.Axial, Slice: 0, U: 0, V: 0}
	require.NoError(t, b.Press(pt, ButtonPrimary))
	assert.NoError(t, b.Release(pt))
	assert.Equal(t, 1, labelAt(t, s, 0, 0, 0))
}

func TestBrushRadiusClamped(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 100, 1, 25, false)
	assert.Equal(t, 25, b.Radius())

	b.SetRadius(0)
	assert.Equal(t, 1, b.Radius())
}

func TestBrushOnSagittalPlane(t *testing.T) {
	s := newToolStore(t)
	b := NewBrushTool(s, 1, 1, 25, false)
	b.SetLabel(6)

	// Sagittal (u, v) = (y, z) at fixed x.
	pt := Point{Plane: models.Sagittal, Slice: 4, U: 5, V: 6}
	require.NoError(t, b.Press(pt, ButtonPrimary))
	require.NoError(t, b.Release(pt))

	assert.Equal(t, 6, labelAt(t, s, 6, 5, 4))
	assert.Equal(t, 0, labelAt(t, s, 6, 5, 5))
}

// eventRecorder collects store events for tool tests.
type eventRecorder struct {
	events []annotation.Event
}

func (r *eventRecorder) HandleAnnotationEvent(ev annotation.Event) {
	r.events = append(r.events, ev)
}
