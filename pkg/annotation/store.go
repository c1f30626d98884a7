// Package annotation owns the mutable annotation state for one patient: a
// dense label volume, a sparse keypoint list, and an optional read-only
// reference label volume that user edits can claim region by region.
//
// The store is single-writer: all mutation happens on one control goroutine
// in response to interaction events, so no internal locking is used.
package annotation

import (
	"fmt"
	"sort"

	"quicklabel3d/internal/models"
)

// MaxLabel is the largest label id a voxel can hold.
const MaxLabel = 255

// OutOfBoundsError reports a coordinate outside the store's volume shape.
type OutOfBoundsError struct {
	Point models.Point3
	Shape [3]int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("point (%.2f, %.2f, %.2f) outside volume shape %v",
		e.Point.Z, e.Point.Y, e.Point.X, e.Shape)
}

// Store holds all annotations for a single patient.
type Store struct {
	patientID string
	shape     [3]int

	// labels is the dense label grid, one uint8 per voxel, (Z, Y, X)
	// row-major. 0 means unlabeled.
	labels []uint8

	keypoints []models.Keypoint
	nextID    int

	// reference is an externally supplied ground-truth grid using its own
	// value encoding, or nil. refValues maps UI label id to the encoded
	// value; claimed records labels whose reference region has been
	// absorbed into the user grid.
	reference []uint16
	refValues map[int]uint16
	claimed   map[int]bool

	dirty bool
	sinks []Sink
}

// NewStore creates an empty store sized to the given (Z, Y, X) volume shape.
func NewStore(patientID string, shape [3]int) (*Store, error) {
	for i, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("store shape[%d] = %d, must be positive", i, d)
		}
	}
	return &Store{
		patientID: patientID,
		shape:     shape,
		labels:    make([]uint8, shape[0]*shape[1]*shape[2]),
		nextID:    1,
		claimed:   make(map[int]bool),
	}, nil
}

// SetReference attaches a reference label grid and the label-id-to-value
// mapping used to claim its regions. The grid must match the store shape.
func (s *Store) SetReference(grid []uint16, refValues map[int]uint16) error {
	if len(grid) != len(s.labels) {
		return fmt.Errorf("reference grid has %d voxels, volume has %d", len(grid), len(s.labels))
	}
	s.reference = grid
	s.refValues = refValues
	return nil
}

// PatientID returns the owning patient identifier.
func (s *Store) PatientID() string { return s.patientID }

// Shape returns the (Z, Y, X) voxel counts.
func (s *Store) Shape() [3]int { return s.shape }

// Dirty reports whether any mutation happened since the last MarkSaved.
func (s *Store) Dirty() bool { return s.dirty }

// MarkSaved clears the dirty flag after a successful persist.
func (s *Store) MarkSaved() { s.dirty = false }

// Subscribe registers a sink for mutation events.
func (s *Store) Subscribe(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

func (s *Store) emit(ev Event) {
	for _, sink := range s.sinks {
		sink.HandleAnnotationEvent(ev)
	}
}

func (s *Store) index(p models.Voxel) int {
	return p.Z*s.shape[1]*s.shape[2] + p.Y*s.shape[2] + p.X
}

func (s *Store) contains(p models.Voxel) bool {
	return p.Z >= 0 && p.Z < s.shape[0] &&
		p.Y >= 0 && p.Y < s.shape[1] &&
		p.X >= 0 && p.X < s.shape[2]
}

func validLabel(label int) error {
	if label < 0 || label > MaxLabel {
		return fmt.Errorf("label %d outside [0, %d]", label, MaxLabel)
	}
	return nil
}

// LabelAt returns the label at a voxel.
func (s *Store) LabelAt(p models.Voxel) (int, error) {
	if !s.contains(p) {
		return 0, &OutOfBoundsError{
			Point: models.Point3{Z: float64(p.Z), Y: float64(p.Y), X: float64(p.X)},
			Shape: s.shape,
		}
	}
	return int(s.labels[s.index(p)]), nil
}

// SetVoxelLabel writes one voxel and marks the store dirty, even when the
// voxel already held that label.
func (s *Store) SetVoxelLabel(p models.Voxel, label int) error {
	if err := validLabel(label); err != nil {
		return err
	}
	if !s.contains(p) {
		return &OutOfBoundsError{
			Point: models.Point3{Z: float64(p.Z), Y: float64(p.Y), X: float64(p.X)},
			Shape: s.shape,
		}
	}
	s.labels[s.index(p)] = uint8(label)
	s.dirty = true
	kind := EventModified
	if label == 0 {
		kind = EventRemoved
	}
	s.emit(Event{
		Kind:   kind,
		Entity: EntityMaskRegion,
		Label:  label,
		Region: Region{Min: p, Max: p},
	})
	return nil
}

// SetVoxelLabelsBulk writes a set of voxels as one logical mutation: every
// coordinate is validated before the first write, and observers receive a
// single event covering the bounding region. An empty set is a no-op that
// does not mark the store dirty.
func (s *Store) SetVoxelLabelsBulk(voxels []models.Voxel, label int) error {
	if err := validLabel(label); err != nil {
		return err
	}
	for _, p := range voxels {
		if !s.contains(p) {
			return &OutOfBoundsError{
				Point: models.Point3{Z: float64(p.Z), Y: float64(p.Y), X: float64(p.X)},
				Shape: s.shape,
			}
		}
	}
	if len(voxels) == 0 {
		return nil
	}
	for _, p := range voxels {
		s.labels[s.index(p)] = uint8(label)
	}
	s.dirty = true

	region, _ := regionOf(voxels)
	kind := EventModified
	if label == 0 {
		kind = EventRemoved
	}
	s.emit(Event{Kind: kind, Entity: EntityMaskRegion, Label: label, Region: region})
	return nil
}

// AddKeypoint appends a keypoint with a freshly allocated id and returns it.
func (s *Store) AddKeypoint(label int, p models.Point3) (int, error) {
	if err := validLabel(label); err != nil {
		return 0, err
	}
	if p.Z < 0 || p.Z >= float64(s.shape[0]) ||
		p.Y < 0 || p.Y >= float64(s.shape[1]) ||
		p.X < 0 || p.X >= float64(s.shape[2]) {
		return 0, &OutOfBoundsError{Point: p, Shape: s.shape}
	}

	id := s.nextID
	s.nextID++
	s.keypoints = append(s.keypoints, models.Keypoint{
		ID: id, Label: label, Z: p.Z, Y: p.Y, X: p.X,
	})
	s.dirty = true
	s.emit(Event{Kind: EventAdded, Entity: EntityKeypoint, KeypointID: id, Label: label})
	return id, nil
}

// RemoveKeypointNear deletes the keypoint of the given label nearest to p
// within radius (voxel units) and returns its id. Equidistant candidates
// resolve to the lowest id so removal is deterministic. The second return
// is false when no keypoint qualified.
func (s *Store) RemoveKeypointNear(p models.Point3, label int, radius float64) (int, bool) {
	bestIdx := -1
	bestDist := radius
	bestID := 0
	for i, kp := range s.keypoints {
		if kp.Label != label {
			continue
		}
		d := kp.Position().DistanceTo(p)
		if d > radius {
			continue
		}
		if bestIdx == -1 || d < bestDist || (d == bestDist && kp.ID < bestID) {
			bestIdx = i
			bestDist = d
			bestID = kp.ID
		}
	}
	if bestIdx == -1 {
		return 0, false
	}

	s.keypoints = append(s.keypoints[:bestIdx], s.keypoints[bestIdx+1:]...)
	s.dirty = true
	s.emit(Event{Kind: EventRemoved, Entity: EntityKeypoint, KeypointID: bestID, Label: label})
	return bestID, true
}

// Keypoints returns a copy of the keypoint list in insertion order.
func (s *Store) Keypoints() []models.Keypoint {
	out := make([]models.Keypoint, len(s.keypoints))
	copy(out, s.keypoints)
	return out
}

// KeypointsOnSlice returns the keypoints visible on the given slice together
// with their projected in-plane positions.
type ProjectedKeypoint struct {
	Keypoint models.Keypoint
	U, V     float64
}

func (s *Store) KeypointsOnSlice(plane models.Plane, index int) []ProjectedKeypoint {
	var out []ProjectedKeypoint
	for _, kp := range s.keypoints {
		if u, v, ok := kp.PlanePosition(plane, index); ok {
			out = append(out, ProjectedKeypoint{Keypoint: kp, U: u, V: v})
		}
	}
	return out
}

// ClaimReferenceRegion absorbs the reference region matching the label into
// the user label grid and hides it from reference rendering. Claiming an
// already-claimed label, or a label with no reference mapping, is a no-op.
func (s *Store) ClaimReferenceRegion(label int) error {
	if err := validLabel(label); err != nil {
		return err
	}
	if s.reference == nil || s.claimed[label] {
		return nil
	}
	refValue, ok := s.refValues[label]
	if !ok {
		return nil
	}

	var changed []models.Voxel
	ny, nx := s.shape[1], s.shape[2]
	for i, v := range s.reference {
		if v != refValue {
			continue
		}
		s.labels[i] = uint8(label)
		changed = append(changed, models.Voxel{
			Z: i / (ny * nx),
			Y: (i / nx) % ny,
			X: i % nx,
		})
	}
	s.claimed[label] = true
	s.dirty = true

	if region, ok := regionOf(changed); ok {
		s.emit(Event{Kind: EventModified, Entity: EntityMaskRegion, Label: label, Region: region})
	}
	return nil
}

// Claimed reports whether the label's reference region has been absorbed.
func (s *Store) Claimed(label int) bool { return s.claimed[label] }

// ClaimedLabels returns the sorted set of claimed label ids.
func (s *Store) ClaimedLabels() []int {
	out := make([]int, 0, len(s.claimed))
	for label := range s.claimed {
		out = append(out, label)
	}
	sort.Ints(out)
	return out
}

// ReferenceAt returns the raw reference value at a voxel, or 0 when no
// reference grid is attached. Claimed labels are suppressed: once a label is
// claimed its reference value reads as 0 so renderers skip it.
func (s *Store) ReferenceAt(p models.Voxel) uint16 {
	if s.reference == nil || !s.contains(p) {
		return 0
	}
	v := s.reference[s.index(p)]
	if v == 0 {
		return 0
	}
	for label, refValue := range s.refValues {
		if refValue == v && s.claimed[label] {
			return 0
		}
	}
	return v
}

// HasReference reports whether a reference grid is attached.
func (s *Store) HasReference() bool { return s.reference != nil }

// ClearLabel zeroes every voxel holding the label. Keypoints and other
// labels are untouched.
func (s *Store) ClearLabel(label int) error {
	if err := validLabel(label); err != nil {
		return err
	}
	var changed []models.Voxel
	ny, nx := s.shape[1], s.shape[2]
	for i, v := range s.labels {
		if int(v) != label || label == 0 {
			continue
		}
		s.labels[i] = 0
		changed = append(changed, models.Voxel{
			Z: i / (ny * nx),
			Y: (i / nx) % ny,
			X: i % nx,
		})
	}
	if len(changed) == 0 {
		return nil
	}
	s.dirty = true
	region, _ := regionOf(changed)
	s.emit(Event{Kind: EventRemoved, Entity: EntityMaskRegion, Label: label, Region: region})
	return nil
}

// LabelData returns a copy of the dense label grid for persistence.
func (s *Store) LabelData() []uint8 {
	out := make([]uint8, len(s.labels))
	copy(out, s.labels)
	return out
}

// LabelSlice extracts the label grid cross-section for a plane, in the same
// (row, col) orientation as volume slices.
func (s *Store) LabelSlice(plane models.Plane, index int) ([]uint8, int, int, error) {
	max := 0
	switch plane {
	case models.Axial:
		max = s.shape[0]
	case models.Coronal:
		max = s.shape[1]
	case models.Sagittal:
		max = s.shape[2]
	default:
		return nil, 0, 0, fmt.Errorf("unknown plane: %q", plane)
	}
	if index < 0 || index >= max {
		return nil, 0, 0, &models.OutOfRangeError{What: string(plane) + " index", Value: index, Max: max}
	}

	var h, w int
	switch plane {
	case models.Axial:
		h, w = s.shape[1], s.shape[2]
	case models.Sagittal:
		h, w = s.shape[0], s.shape[1]
	default:
		h, w = s.shape[0], s.shape[2]
	}

	out := make([]uint8, h*w)
	ny, nx := s.shape[1], s.shape[2]
	switch plane {
	case models.Axial:
		copy(out, s.labels[index*ny*nx:(index+1)*ny*nx])
	case models.Sagittal:
		for z := 0; z < h; z++ {
			for y := 0; y < w; y++ {
				out[z*w+y] = s.labels[z*ny*nx+y*nx+index]
			}
		}
	case models.Coronal:
		for z := 0; z < h; z++ {
			copy(out[z*w:(z+1)*w], s.labels[z*ny*nx+index*nx:z*ny*nx+index*nx+w])
		}
	}
	return out, h, w, nil
}

// Restore replaces the store contents from persisted state. The grid must
// match the store shape; keypoints are kept in the order given and the id
// counter resumes past the largest restored id. The store comes back clean.
func (s *Store) Restore(labels []uint8, keypoints []models.Keypoint, claimed []int) error {
	if len(labels) != len(s.labels) {
		return fmt.Errorf("restored grid has %d voxels, volume has %d", len(labels), len(s.labels))
	}
	copy(s.labels, labels)
	s.keypoints = make([]models.Keypoint, len(keypoints))
	copy(s.keypoints, keypoints)

	s.nextID = 1
	for _, kp := range keypoints {
		if kp.ID >= s.nextID {
			s.nextID = kp.ID + 1
		}
	}
	s.claimed = make(map[int]bool, len(claimed))
	for _, label := range claimed {
		s.claimed[label] = true
	}
	s.dirty = false
	return nil
}

// HasData reports whether any voxel is labeled or any keypoint exists.
func (s *Store) HasData() bool {
	if len(s.keypoints) > 0 {
		return true
	}
	for _, v := range s.labels {
		if v != 0 {
			return true
		}
	}
	return false
}
