package tools

import (
	"quicklabel3d/pkg/annotation"
)

// KeypointTool places a keypoint on primary press and removes the nearest
// keypoint of the current label on secondary press. It is a single-click
// tool: dragging does not accumulate points.
type KeypointTool struct {
	store *annotation.Store

	label         int
	removalRadius float64
}

// NewKeypointTool creates the tool with the given removal search radius in
// voxel units.
func NewKeypointTool(store *annotation.Store, removalRadius float64) *KeypointTool {
	return &KeypointTool{store: store, label: 1, removalRadius: removalRadius}
}

// Name implements Tool.
func (t *KeypointTool) Name() string { return "keypoint" }

// SetLabel selects the label for new keypoints and removal matching.
func (t *KeypointTool) SetLabel(label int) { t.label = label }

// Press implements Tool.
func (t *KeypointTool) Press(pt Point, btn Button) error {
	switch btn {
	case ButtonPrimary:
		_, err := t.store.AddKeypoint(t.label, pt.volumePoint())
		return err
	case ButtonSecondary:
		t.store.RemoveKeypointNear(pt.volumePoint(), t.label, t.removalRadius)
	}
	return nil
}

// Drag implements Tool; keypoints have no drag behavior.
func (t *KeypointTool) Drag(Point) error { return nil }

// Release implements Tool; keypoints have no release behavior.
func (t *KeypointTool) Release(Point) error { return nil }

// Abort implements Tool; there is never gesture state to discard.
func (t *KeypointTool) Abort() {}

// Cursor implements Tool.
func (t *KeypointTool) Cursor() Cursor {
	return Cursor{Shape: CursorCrosshair}
}
