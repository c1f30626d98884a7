package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicklabel3d/internal/models"
)

func dragContour(t *testing.T, tool *SegmentTool, plane models.Plane, slice int, pts [][2]float64, btn Button) {
	t.Helper()
	require.NotEmpty(t, pts)
	require.NoError(t, tool.Press(Point{Plane: plane, Slice: slice, U: pts[0][0], V: pts[0][1]}, btn))
	for _, p := range pts[1:] {
		require.NoError(t, tool.Drag(Point{Plane: plane, Slice: slice, U: p[0], V: p[1]}))
	}
	last := pts[len(pts)-1]
	require.NoError(t, tool.Release(Point{Plane: plane, Slice: slice, U: last[0], V: last[1]}))
}

func TestSegmentFillsUnitSquare(t *testing.T) {
	s := newToolStore(t)
	tool := NewSegmentTool(s)
	tool.SetLabel(2)

	// Square with corners on voxel centers encloses exactly one cell.
	dragContour(t, tool, models.Axial, 5, [][2]float64{
		{2, 2}, {3, 2}, {3, 3}, {2, 3},
	}, ButtonPrimary)

	assert.Equal(t, 2, labelAt(t, s, 5, 2, 2))
	assert.Equal(t, 1, labeledVoxels(s))
}

func TestSegmentFillsLargerSquare(t *testing.T) {
	s := newToolStore(t)
	tool := NewSegmentTool(s)
	tool.SetLabel(3)

	dragContour(t, tool, models.Axial, 4, [][2]float64{
		{1.5, 1.5}, {6.5, 1.5}, {6.5, 6.5}, {1.5, 6.5},
	}, ButtonPrimary)

	// Interior covers u, v in [2, 6].
	for v := 2; v <= 6; v++ {
		for u := 2; u <= 6; u++ {
			assert.Equal(t, 3, labelAt(t, s, 4, v, u), "u=%d v=%d", u, v)
		}
	}
	assert.Equal(t, 25, labeledVoxels(s))
}

func TestSegmentTooFewPointsIsNoOp(t *testing.T) {
	s := newToolStore(t)
	tool := NewSegmentTool(s)

	dragContour(t, tool, models.Axial, 5, [][2]float64{
		{2, 2}, {5, 5},
	}, ButtonPrimary)

	assert.False(t, s.Dirty())
	assert.Zero(t, labeledVoxels(s))
}

func TestSegmentZeroAreaIsNoOp(t *testing.T) {
	s := newToolStore(t)
	tool := NewSegmentTool(s)

	// Three distinct collinear points enclose nothing.
	dragContour(t, tool, models.Axial, 5, [][2]float64{
		{1, 1}, {3, 3}, {5, 5},
	}, ButtonPrimary)

	assert.False(t, s.Dirty())
	assert.Zero(t, labeledVoxels(s))
}

func TestSegmentErase(t *testing.T) {
	s := newToolStore(t)
	fill := NewSegmentTool(s)
	fill.SetLabel(2)
	dragContour(t, fill, models.Axial, 4, [][2]float64{
		{1.5, 1.5}, {6.5, 1.5}, {6.5, 6.5}, {1.5, 6.5},
	}, ButtonPrimary)
	require.NotZero(t, labeledVoxels(s))

	dragContour(t, fill, models.Axial, 4, [][2]float64{
		{1.5, 1.5}, {6.5, 1.5}, {6.5, 6.5}, {1.5, 6.5},
	}, ButtonSecondary)
	assert.Zero(t, labeledVoxels(s))
}

func TestSegmentSliceChangeAborts(t *testing.T) {
	s := newToolStore(t)
	tool := NewSegmentTool(s)

	require.NoError(t, tool.Press(Point{Plane: models.Axial, Slice: 5, U: 1.5, V: 1.5}, ButtonPrimary))
	require.NoError(t, tool.Drag(Point{Plane: models.Axial, Slice: 5, U: 6.5, V: 1.5}))
	require.NoError(t, tool.Drag(Point{Plane: models.Coronal, Slice: 5, U: 6.5, V: 6.5}))
	require.NoError(t, tool.Release(Point{Plane: models.Coronal, Slice: 5, U: 6.5, V: 6.5}))

	assert.False(t, s.Dirty())
	assert.Zero(t, labeledVoxels(s))
}

func TestSegmentSelfIntersectingEvenOdd(t *testing.T) {
	s := newToolStore(t)
	tool := NewSegmentTool(s)
	tool.SetLabel(1)

	// Bowtie with triangular lobes above and below the crossing at
	// (4.5, 4.5). Even-odd parity fills both lobes and nothing beside them.
	dragContour(t, tool, models.Axial, 3, [][2]float64{
		{0.5, 0.5}, {8.5, 8.5}, {0.5, 8.5}, {8.5, 0.5},
	}, ButtonPrimary)

	// Bottom lobe interior.
	assert.Equal(t, 1, labelAt(t, s, 3, 2, 4))
	// Top lobe interior.
	assert.Equal(t, 1, labelAt(t, s, 3, 7, 4))
	// Beside the crossing on either side.
	assert.Equal(t, 0, labelAt(t, s, 3, 4, 1))
	assert.Equal(t, 0, labelAt(t, s, 3, 4, 7))
}

func TestSegmentClipsToVolume(t *testing.T) {
	s := newToolStore(t)
	tool := NewSegmentTool(s)
	tool.SetLabel(5)

	// Contour partially hangs outside the 10-voxel slice.
	dragContour(t, tool, models.Axial, 2, [][2]float64{
		{7.5, 7.5}, {12.5, 7.5}, {12.5, 12.5}, {7.5, 12.5},
	}, ButtonPrimary)

	assert.Equal(t, 5, labelAt(t, s, 2, 8, 8))
	assert.Equal(t, 5, labelAt(t, s, 2, 9, 9))
	assert.Equal(t, 4, labeledVoxels(s))
}
