package engine

import "math"

// Frame-count thresholds shared by scoring, classification and
// recommendations.
const (
	// RecommendedFrames is the count at which a calibration set scores 100.
	RecommendedFrames = 20
	// AcceptableFrames is the floor below which a calibration set drags the
	// session out of Complete (unless a master substitutes for it).
	AcceptableFrames = 10
)

// Score converts a compatible-frame count into a 0-100 quality score, linear
// up to RecommendedFrames and saturating there. A master frame never changes
// the numeric score; it is surfaced separately and feeds classification.
func Score(count int) int {
	if count <= 0 {
		return 0
	}
	score := int(math.Round(float64(count) / RecommendedFrames * 100))
	if score > 100 {
		return 100
	}
	return score
}

// Status is the overall calibration readiness of a session. It is recomputed
// fresh on every run from the three match results; there is no transition
// history.
type Status string

const (
	StatusMissing             Status = "Missing"
	StatusPartial             Status = "Partial"
	StatusComplete            Status = "Complete"
	StatusCompleteWithMasters Status = "CompleteWithMasters"
)

// satisfied reports whether one calibration type no longer blocks session
// completeness: enough individual frames, or a master standing in for them.
func (r MatchResult) satisfied() bool {
	return r.Count >= AcceptableFrames || r.HasMaster
}

func (r MatchResult) empty() bool {
	return r.Count == 0 && !r.HasMaster
}

// Classify derives the session status from its three match results.
func Classify(darks, bias, flats MatchResult) Status {
	if darks.empty() && bias.empty() && flats.empty() {
		return StatusMissing
	}
	if darks.satisfied() && bias.satisfied() && flats.satisfied() {
		if darks.HasMaster || bias.HasMaster || flats.HasMaster {
			return StatusCompleteWithMasters
		}
		return StatusComplete
	}
	return StatusPartial
}

// IsComplete reports whether a status counts as complete, with or without
// masters.
func (s Status) IsComplete() bool {
	return s == StatusComplete || s == StatusCompleteWithMasters
}
