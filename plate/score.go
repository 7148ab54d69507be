package plate

const (
	// DefaultMinCandidateLength is the per-frame minimum cleaned length.
	DefaultMinCandidateLength = 4
	// DefaultMinPlateLength is the minimum cleaned length at finalization.
	DefaultMinPlateLength = 6
)

// Candidate is one raw text fragment returned by the OCR engine for a crop.
type Candidate struct {
	Text       string
	Confidence float32
}

// Reading is a cleaned plate text with the OCR confidence it was read with.
type Reading struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// Score is the ranking value of a reading: cleaned length times confidence.
func Score(text string, confidence float32) float32 {
	return float32(Length(text)) * confidence
}

// SelectCandidate picks the best reading from the OCR fragments of one crop.
// Each fragment is cleaned, fragments shorter than minLen are discarded, and
// the survivor with the highest Score wins. On equal scores the earlier
// fragment is kept.
//
// Arguments:
//   - candidates: The OCR output for one crop, in engine order.
//   - minLen: The minimum cleaned length of an acceptable fragment.
//
// Returns:
//   - Reading: The selected reading.
//   - bool: False when no fragment survives.
func SelectCandidate(candidates []Candidate, minLen int) (Reading, bool) {
	var (
		best  Reading
		score float32
		found bool
	)
	for _, c := range candidates {
		text := Clean(c.Text)
		if Length(text) < minLen {
			continue
		}
		s := Score(text, c.Confidence)
		if !found || s > score {
			best = Reading{Text: text, Confidence: c.Confidence}
			score = s
			found = true
		}
	}
	return best, found
}

// BestPlate finalizes the readings accumulated for one vehicle.
//
// Readings with at least minLen characters form the valid set. When every
// reading is valid the confidences line up with the valid set and the highest
// Score wins. When some readings were filtered out, or confidences are
// missing, the longest valid reading wins. When nothing is valid the longest
// reading overall is returned, even if short. Ties always go to the earliest
// reading.
//
// Arguments:
//   - texts: Cleaned readings in the order they were recorded.
//   - confidences: OCR confidences parallel to texts. May be nil.
//   - minLen: The minimum length of a valid reading.
//
// Returns:
//   - string: The finalized plate text.
//   - bool: False when texts is empty.
//
// @example
// plate.BestPlate([]string{"AB123", "AB12", "AB1234", "AB123"}, []float32{0.9, 0.95, 0.6, 0.9}, 6) // "AB1234", true
func BestPlate(texts []string, confidences []float32, minLen int) (string, bool) {
	if len(texts) == 0 {
		return "", false
	}

	valid := make([]string, 0, len(texts))
	for _, t := range texts {
		if Length(t) >= minLen {
			valid = append(valid, t)
		}
	}

	if len(valid) == 0 {
		return longest(texts), true
	}

	if len(valid) == len(confidences) {
		best, score := 0, Score(valid[0], confidences[0])
		for i := 1; i < len(valid); i++ {
			if s := Score(valid[i], confidences[i]); s > score {
				best, score = i, s
			}
		}
		return valid[best], true
	}

	return longest(valid), true
}

// longest returns the first of the longest texts.
func longest(texts []string) string {
	best := texts[0]
	for _, t := range texts[1:] {
		if Length(t) > Length(best) {
			best = t
		}
	}
	return best
}
