package engine

import "fmt"

// Recommend derives capture guidance for a session from its already-computed
// match results. No matching happens here; this is pure text derivation.
//
// Incomplete sessions get one actionable instruction per calibration type
// that is missing entirely or below the acceptable floor without a master.
// Complete sessions get a single confirmation plus optional suggestions for
// types still under the recommended count.
func Recommend(s *Session) []string {
	var recs []string

	recs = appendTypeRecommendation(recs, s, CalDark, s.Darks)
	recs = appendTypeRecommendation(recs, s, CalBias, s.Bias)
	recs = appendTypeRecommendation(recs, s, CalFlat, s.Flats)
	if len(recs) > 0 {
		return recs
	}

	if s.Darks.HasMaster || s.Bias.HasMaster || s.Flats.HasMaster {
		return []string{"Session has master calibration frames available"}
	}

	recs = append(recs, "All calibration frames are present")
	for _, t := range CalibrationTypes {
		if r := s.Match(t); r.Count < RecommendedFrames {
			recs = append(recs, fmt.Sprintf("Consider adding more %s frames (currently %d, recommended %d+)",
				t, r.Count, RecommendedFrames))
		}
	}
	return recs
}

func appendTypeRecommendation(recs []string, s *Session, t CalibrationType, r MatchResult) []string {
	switch {
	case r.empty():
		return append(recs, fmt.Sprintf("Capture %s frames: %s (minimum %d, recommended %d+)",
			t, captureProfile(s, t), AcceptableFrames, RecommendedFrames))
	case r.Count < AcceptableFrames && !r.HasMaster:
		return append(recs, fmt.Sprintf("Add more %s frames: currently %d, need at least %d for good calibration",
			t, r.Count, AcceptableFrames))
	default:
		return recs
	}
}

// captureProfile phrases the session's averaged physical profile as a capture
// target, rounded for display.
func captureProfile(s *Session, t CalibrationType) string {
	temp := "any temperature"
	if v, ok := f64(s.AvgTemperature); ok {
		temp = fmt.Sprintf("~%.0f°C", v)
	}
	binning := fmt.Sprintf("%dx%d binning", s.BinX, s.BinY)

	switch t {
	case CalDark:
		exp := "matching exposure"
		if v, ok := f64(s.AvgExposure); ok {
			exp = fmt.Sprintf("%.1fs exposure", v)
		}
		return fmt.Sprintf("%s at %s, %s", exp, temp, binning)
	case CalFlat:
		return fmt.Sprintf("%s on %s, %s, %s",
			strOrDefault(s.Filter, "No Filter"), s.Date, temp, binning)
	default:
		return fmt.Sprintf("%s, %s", temp, binning)
	}
}
