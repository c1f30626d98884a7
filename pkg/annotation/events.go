package annotation

import "quicklabel3d/internal/models"

// EventKind classifies a store mutation for observers.
type EventKind int

const (
	// EventAdded signals a new annotation entity (keypoint, first paint of
	// a mask region).
	EventAdded EventKind = iota

	// EventModified signals a change to existing voxel labels.
	EventModified

	// EventRemoved signals a deleted keypoint or cleared mask region.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// EntityKind identifies what part of the store an event refers to.
type EntityKind int

const (
	// EntityKeypoint events carry the keypoint ID.
	EntityKeypoint EntityKind = iota

	// EntityMaskRegion events carry the bounding region of changed voxels.
	EntityMaskRegion
)

// Region is an inclusive voxel-space bounding box. Observers redraw only
// slices intersecting the region instead of the whole volume.
type Region struct {
	Min models.Voxel
	Max models.Voxel
}

// regionOf computes the bounding box of a voxel set. ok is false for an
// empty set.
func regionOf(voxels []models.Voxel) (Region, bool) {
	if len(voxels) == 0 {
		return Region{}, false
	}
	r := Region{Min: voxels[0], Max: voxels[0]}
	for _, p := range voxels[1:] {
		if p.Z < r.Min.Z {
			r.Min.Z = p.Z
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Z > r.Max.Z {
			r.Max.Z = p.Z
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
	}
	return r, true
}

// Event is the payload delivered to registered sinks after every mutation.
type Event struct {
	Kind   EventKind
	Entity EntityKind

	// KeypointID is set for EntityKeypoint events.
	KeypointID int

	// Label is the label id the mutation concerned.
	Label int

	// Region bounds the affected voxels for EntityMaskRegion events.
	Region Region
}

// Sink receives store events. Delivery is synchronous and in registration
// order (FIFO per emission); sinks must not mutate the store re-entrantly.
type Sink interface {
	HandleAnnotationEvent(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

// HandleAnnotationEvent calls f.
func (f SinkFunc) HandleAnnotationEvent(ev Event) { f(ev) }
