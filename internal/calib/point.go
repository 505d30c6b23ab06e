// Package calib recovers camera intrinsics and pose from 3D/2D point
// correspondences.
package calib

import (
	"math"

	"projection-mapper/internal/mathutil"
)

// Point pairs a world position with its desired normalized screen position
// ([-1,1] on both axes, y up).
type Point struct {
	World  mathutil.Vec3
	Screen mathutil.Vec2
	IsSet  bool
	Weight float64
}

// NewPoint returns an unset point with the default weight.
func NewPoint(world mathutil.Vec3) Point {
	return Point{World: world, Weight: 1}
}

// EdgeWeight favours points near the frame border: 1 on the border, 0.5 in
// the centre of the image.
func EdgeWeight(screen mathutil.Vec2) float64 {
	x := 0.5 + 0.5*screen[0]
	y := 0.5 + 0.5*screen[1]
	d := math.Min(math.Min(x, y), math.Min(1-x, 1-y))
	return 1 - d
}

// Store is the ordered list of calibration points of one camera, with unique
// world coordinates and an optional selection. It is not safe for concurrent
// use; the owning camera serializes access.
type Store struct {
	points   []Point
	selected int
}

// NewStore returns an empty store with nothing selected.
func NewStore() *Store {
	return &Store{selected: -1}
}

func (s *Store) Len() int { return len(s.points) }

// Points returns a copy of all points.
func (s *Store) Points() []Point {
	return append([]Point(nil), s.points...)
}

// At returns point i.
func (s *Store) At(i int) (Point, bool) {
	if i < 0 || i >= len(s.points) {
		return Point{}, false
	}
	return s.points[i], true
}

// Index returns the index of the point at world, or -1.
func (s *Store) Index(world mathutil.Vec3) int {
	for i, p := range s.points {
		if p.World == world {
			return i
		}
	}
	return -1
}

// Add appends a point and selects it. If the world position is already
// present the existing point is selected instead and added is false.
func (s *Store) Add(world mathutil.Vec3) (index int, added bool) {
	if i := s.Index(world); i >= 0 {
		s.selected = i
		return i, false
	}
	s.points = append(s.points, NewPoint(world))
	s.selected = len(s.points) - 1
	return s.selected, true
}

// Remove deletes point i.
func (s *Store) Remove(i int) (Point, bool) {
	if i < 0 || i >= len(s.points) {
		return Point{}, false
	}
	p := s.points[i]
	s.points = append(s.points[:i], s.points[i+1:]...)
	switch {
	case s.selected == i:
		s.selected = -1
	case s.selected > i:
		s.selected--
	}
	return p, true
}

// RemoveWorld deletes the point at world. With unlessSet, a point that has a
// screen position is kept.
func (s *Store) RemoveWorld(world mathutil.Vec3, unlessSet bool) bool {
	i := s.Index(world)
	if i < 0 || (unlessSet && s.points[i].IsSet) {
		return false
	}
	s.Remove(i)
	s.selected = -1
	return true
}

// Nearest returns the index of the point whose projection by project is
// closest to target, or -1 for an empty store.
func (s *Store) Nearest(target mathutil.Vec2, project func(mathutil.Vec3) mathutil.Vec2) int {
	best, index := math.MaxFloat64, -1
	for i, p := range s.points {
		if d := project(p.World).Dist(target); d < best {
			best, index = d, i
		}
	}
	return index
}

// Selected returns the selected index, -1 when none.
func (s *Store) Selected() int { return s.selected }

// Select selects point i.
func (s *Store) Select(i int) bool {
	if i < 0 || i >= len(s.points) {
		return false
	}
	s.selected = i
	return true
}

func (s *Store) SelectNext() {
	if len(s.points) == 0 {
		return
	}
	s.selected = (s.selected + 1) % len(s.points)
}

func (s *Store) SelectPrevious() {
	if len(s.points) == 0 {
		return
	}
	if s.selected <= 0 {
		s.selected = len(s.points) - 1
	} else {
		s.selected--
	}
}

func (s *Store) Deselect() { s.selected = -1 }

// SetScreen gives the selected point its screen position.
func (s *Store) SetScreen(screen mathutil.Vec2) bool {
	if s.selected < 0 {
		return false
	}
	p := &s.points[s.selected]
	p.Screen = screen
	p.IsSet = true
	p.Weight = EdgeWeight(screen)
	return true
}

// Move shifts the selected point by a normalized screen delta.
func (s *Store) Move(dx, dy float64) bool {
	if s.selected < 0 {
		return false
	}
	p := s.points[s.selected].Screen
	return s.SetScreen(mathutil.Vec2{p[0] + dx, p[1] + dy})
}

// SetCount returns the number of points with a screen position.
func (s *Store) SetCount() int {
	n := 0
	for _, p := range s.points {
		if p.IsSet {
			n++
		}
	}
	return n
}

// Serialize returns one tuple per point: world xyz, screen xy, isSet.
func (s *Store) Serialize() [][6]float64 {
	out := make([][6]float64, len(s.points))
	for i, p := range s.points {
		set := 0.0
		if p.IsSet {
			set = 1
		}
		out[i] = [6]float64{p.World[0], p.World[1], p.World[2], p.Screen[0], p.Screen[1], set}
	}
	return out
}

// Load replaces the content of the store with serialized tuples. Duplicate
// world positions keep their first occurrence.
func (s *Store) Load(tuples [][6]float64) {
	s.points = s.points[:0]
	s.selected = -1
	for _, t := range tuples {
		world := mathutil.Vec3{t[0], t[1], t[2]}
		if s.Index(world) >= 0 {
			continue
		}
		p := NewPoint(world)
		p.Screen = mathutil.Vec2{t[3], t[4]}
		p.IsSet = t[5] != 0
		if p.IsSet {
			p.Weight = EdgeWeight(p.Screen)
		}
		s.points = append(s.points, p)
	}
}
