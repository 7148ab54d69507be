// Package tracking assigns stable identities to plate boxes across frames by
// greedy IoU matching against the last known box of every vehicle.
package tracking

import (
	"github.com/nvr-ai/go-lpr/images"
)

// DefaultIoUThreshold is the overlap a detection must exceed to continue an
// existing identity.
const DefaultIoUThreshold float32 = 0.6

// Vehicle is one tracked identity.
type Vehicle struct {
	// ID is allocated from 1 in order of first appearance.
	ID int `json:"id"`
	// Box is the box of the most recent matching detection.
	Box images.Rect `json:"box"`
	// Hits counts the detections assigned to this identity.
	Hits int `json:"hits"`
}

// Tracker matches detections to vehicles. Vehicles are never dropped, so a
// plate that leaves and re-enters the frame near its old position continues
// its old identity.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	threshold float32
	vehicles  []Vehicle
	nextID    int
}

// New creates an empty tracker.
//
// Arguments:
//   - threshold: The IoU a detection must strictly exceed to match a vehicle.
//
// Returns:
//   - *Tracker: A tracker whose first allocated identity is 1.
//
// @example
// t := tracking.New(tracking.DefaultIoUThreshold)
// id := t.Match(images.Rect{X1: 10, Y1: 10, X2: 50, Y2: 50})
func New(threshold float32) *Tracker {
	return &Tracker{
		threshold: threshold,
		nextID:    1,
	}
}

// Match returns the identity for box. Vehicles are visited in ascending ID
// order and the first whose IoU with box exceeds the threshold wins, taking
// box as its new position. When none match a new identity is allocated.
func (t *Tracker) Match(box images.Rect) int {
	for i := range t.vehicles {
		v := &t.vehicles[i]
		if images.CalculateIoU(v.Box, box) > t.threshold {
			v.Box = box
			v.Hits++
			return v.ID
		}
	}

	id := t.nextID
	t.vehicles = append(t.vehicles, Vehicle{ID: id, Box: box, Hits: 1})
	t.nextID++
	return id
}

// Get returns the vehicle with the given identity.
func (t *Tracker) Get(id int) (Vehicle, bool) {
	// IDs are allocated densely from 1 and never removed.
	i := id - 1
	if i < 0 || i >= len(t.vehicles) {
		return Vehicle{}, false
	}
	return t.vehicles[i], true
}

// Vehicles returns a copy of the tracked vehicles in ascending ID order.
func (t *Tracker) Vehicles() []Vehicle {
	out := make([]Vehicle, len(t.vehicles))
	copy(out, t.vehicles)
	return out
}

// Len is the number of identities allocated so far.
func (t *Tracker) Len() int { return len(t.vehicles) }

// NextID is the identity the next unmatched detection will receive.
func (t *Tracker) NextID() int { return t.nextID }
