// Package tools implements the annotation tool state machines. Each tool
// turns a press/drag/release gesture on a rendered slice into annotation
// store mutations. A gesture is atomic: until release, nothing is written,
// and switching plane, slice or tool mid-gesture aborts it without side
// effects.
package tools

import (
	"quicklabel3d/internal/models"
)

// Button identifies which pointer button started a gesture.
type Button int

const (
	// ButtonPrimary paints or places.
	ButtonPrimary Button = iota

	// ButtonSecondary erases or removes.
	ButtonSecondary
)

// Point is one pointer sample already resolved into slice space: the plane
// and slice index being viewed plus continuous in-plane (u, v) coordinates
// in voxel units.
type Point struct {
	Plane models.Plane
	Slice int
	U, V  float64
}

// volumePoint converts the sample to a continuous volume-space position.
func (p Point) volumePoint() models.Point3 {
	return models.PlanePointToVolume(p.Plane, p.Slice, p.U, p.V)
}

// CursorShape selects the pointer rendering the view collaborator should
// display for a tool.
type CursorShape int

const (
	CursorCrosshair CursorShape = iota
	CursorBrush
	CursorContour
)

// Cursor describes the pointer for the active tool; Radius is set for
// CursorBrush.
type Cursor struct {
	Shape  CursorShape
	Radius int
}

// Tool is the closed event contract every annotation tool implements.
type Tool interface {
	// Name identifies the tool for selection.
	Name() string

	// Press begins a gesture (or performs a single-click action).
	Press(pt Point, btn Button) error

	// Drag extends an in-progress gesture. Samples on a different plane
	// or slice abort the gesture.
	Drag(pt Point) error

	// Release completes the gesture, applying its accumulated mutation.
	Release(pt Point) error

	// Abort discards any in-progress gesture without mutation.
	Abort()

	// Cursor returns the display cursor for the tool's current settings.
	Cursor() Cursor
}

// Selector holds the single active tool and routes interaction events to
// it. Switching tools aborts whatever gesture was in progress.
type Selector struct {
	tools  map[string]Tool
	active Tool
}

// NewSelector registers the given tools; the first becomes active.
func NewSelector(tools ...Tool) *Selector {
	s := &Selector{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		s.tools[t.Name()] = t
		if s.active == nil {
			s.active = t
		}
	}
	return s
}

// Active returns the current tool, or nil if none are registered.
func (s *Selector) Active() Tool { return s.active }

// Select activates the named tool, aborting the previous tool's gesture.
// Selecting an unknown name leaves the active tool unchanged.
func (s *Selector) Select(name string) bool {
	t, ok := s.tools[name]
	if !ok {
		return false
	}
	if s.active != nil && s.active != t {
		s.active.Abort()
	}
	s.active = t
	return true
}

// Press routes a press event to the active tool.
func (s *Selector) Press(pt Point, btn Button) error {
	if s.active == nil {
		return nil
	}
	return s.active.Press(pt, btn)
}

// Drag routes a drag event to the active tool.
func (s *Selector) Drag(pt Point) error {
	if s.active == nil {
		return nil
	}
	return s.active.Drag(pt)
}

// Release routes a release event to the active tool.
func (s *Selector) Release(pt Point) error {
	if s.active == nil {
		return nil
	}
	return s.active.Release(pt)
}

// Cursor returns the active tool's cursor.
func (s *Selector) Cursor() Cursor {
	if s.active == nil {
		return Cursor{Shape: CursorCrosshair}
	}
	return s.active.Cursor()
}
