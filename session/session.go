// Package session accumulates per-vehicle plate readings over one video and
// picks the final plate for every identity.
package session

import (
	"sort"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/plate"
	"github.com/nvr-ai/go-lpr/tracking"
)

// Result is the finalized plate of one vehicle.
type Result struct {
	ID    int    `json:"car_id"`
	Plate string `json:"plate"`
	// Hits is the number of frames the vehicle was detected in.
	Hits int `json:"hits"`
}

// history holds the readings of one identity in recording order.
type history struct {
	texts       []string
	confidences []float32
}

// Session owns the tracker and the reading histories of a single video. It is
// not safe for concurrent use.
type Session struct {
	tracker   *tracking.Tracker
	minLength int
	readings  map[int]*history
}

// New creates a session.
//
// Arguments:
//   - iouThreshold: The tracker match threshold.
//   - minPlateLength: The minimum length of a finalized plate.
//
// Returns:
//   - *Session: An empty session.
func New(iouThreshold float32, minPlateLength int) *Session {
	return &Session{
		tracker:   tracking.New(iouThreshold),
		minLength: minPlateLength,
		readings:  make(map[int]*history),
	}
}

// Observe assigns an identity to a detection box.
func (s *Session) Observe(box images.Rect) int {
	return s.tracker.Match(box)
}

// Record appends a reading to the history of id.
func (s *Session) Record(id int, r plate.Reading) {
	h, ok := s.readings[id]
	if !ok {
		h = &history{}
		s.readings[id] = h
	}
	h.texts = append(h.texts, r.Text)
	h.confidences = append(h.confidences, r.Confidence)
}

// Current returns the best plate for id given the readings so far.
func (s *Session) Current(id int) (string, bool) {
	h, ok := s.readings[id]
	if !ok {
		return "", false
	}
	return plate.BestPlate(h.texts, h.confidences, s.minLength)
}

// Readings returns how many readings were recorded for id.
func (s *Session) Readings(id int) int {
	if h, ok := s.readings[id]; ok {
		return len(h.texts)
	}
	return 0
}

// Vehicles is the number of identities the tracker allocated.
func (s *Session) Vehicles() int { return s.tracker.Len() }

// Finalize returns one result per identity with at least one reading, in
// ascending ID order. Identities whose best plate is empty are left out.
func (s *Session) Finalize() []Result {
	ids := make([]int, 0, len(s.readings))
	for id := range s.readings {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		text, ok := s.Current(id)
		if !ok || text == "" {
			continue
		}
		v, _ := s.tracker.Get(id)
		results = append(results, Result{ID: id, Plate: text, Hits: v.Hits})
	}
	return results
}
