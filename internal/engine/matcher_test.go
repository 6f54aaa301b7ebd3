package engine

import (
	"strings"
	"testing"
)

func testSession() *Session {
	return &Session{
		Date:           "2025-03-01",
		Object:         sp("M31"),
		Filter:         sp("Ha"),
		Instrument:     sp("CamA"),
		LightFrames:    20,
		AvgExposure:    fp(300.0),
		AvgTemperature: fp(-10.2),
		BinX:           1,
		BinY:           1,
	}
}

func dark(exp, temp float64, instrument string) Frame {
	return Frame{
		Kind:        KindDark,
		Exposure:    fp(exp),
		Temperature: fp(temp),
		BinX:        1,
		BinY:        1,
		Instrument:  sp(instrument),
	}
}

func bias(temp float64, instrument string) Frame {
	return Frame{
		Kind:        KindBias,
		Temperature: fp(temp),
		BinX:        1,
		BinY:        1,
		Instrument:  sp(instrument),
	}
}

func flat(filter, date string, temp float64, instrument string) Frame {
	return Frame{
		Kind:        KindFlat,
		Filter:      sp(filter),
		Date:        sp(date),
		Temperature: fp(temp),
		BinX:        1,
		BinY:        1,
		Instrument:  sp(instrument),
	}
}

// Mixed-quality catalog: plenty of darks, too few bias, no usable flats.
func testCatalog() []Frame {
	var frames []Frame
	for i := 0; i < 20; i++ {
		frames = append(frames, dark(300.0, -10.0, "CamA"))
	}
	for i := 0; i < 8; i++ {
		frames = append(frames, bias(-10.0, "CamA"))
	}
	// Flats from another night never match.
	frames = append(frames, flat("Ha", "2025-02-27", -10.0, "CamA"))
	return frames
}

func TestMatchColdScenario(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()
	frames := testCatalog()

	darks := m.MatchCold(s, CalDark, frames)
	if darks.Count != 20 || darks.QualityScore != 100 {
		t.Fatalf("darks: got count %d score %d, want 20/100", darks.Count, darks.QualityScore)
	}

	biasRes := m.MatchCold(s, CalBias, frames)
	if biasRes.Count != 8 || biasRes.QualityScore != 40 {
		t.Fatalf("bias: got count %d score %d, want 8/40", biasRes.Count, biasRes.QualityScore)
	}

	flats := m.MatchCold(s, CalFlat, frames)
	if flats.Count != 0 || flats.QualityScore != 0 {
		t.Fatalf("flats: got count %d score %d, want 0/0", flats.Count, flats.QualityScore)
	}

	if got := Classify(darks, biasRes, flats); got != StatusPartial {
		t.Fatalf("expected Partial, got %s", got)
	}

	s.Darks, s.Bias, s.Flats = darks, biasRes, flats
	recs := Recommend(s)
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %v", recs)
	}
	if !strings.Contains(recs[0], "bias") || !strings.Contains(recs[0], "currently 8") {
		t.Fatalf("unexpected bias recommendation: %q", recs[0])
	}
	if !strings.Contains(recs[1], "Capture flat frames") {
		t.Fatalf("unexpected flat recommendation: %q", recs[1])
	}
}

func TestMatchColdInstrumentMismatch(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()

	frames := []Frame{dark(300.0, -10.0, "CamB"), dark(300.0, -10.0, "CamB")}
	if res := m.MatchCold(s, CalDark, frames); res.Count != 0 {
		t.Fatalf("frames from another instrument must not match, got %d", res.Count)
	}
}

func TestMatchColdNilInstrumentNotWildcard(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()

	f := dark(300.0, -10.0, "")
	f.Instrument = nil
	if res := m.MatchCold(s, CalDark, []Frame{f}); res.Count != 0 {
		t.Fatalf("absent instrument must not match a concrete one, got %d", res.Count)
	}

	s.Instrument = nil
	if res := m.MatchCold(s, CalDark, []Frame{f}); res.Count != 1 {
		t.Fatalf("two absent instruments must match, got %d", res.Count)
	}
}

func TestMatchColdToleranceBounds(t *testing.T) {
	// Integral tolerances keep the boundary arithmetic exact.
	m := NewMatcher(Tolerances{DarkTemp: 2.0, BiasTemp: 1.0, FlatTemp: 3.0, Exposure: 1.0})
	s := testSession()
	s.AvgTemperature = fp(-10.0)

	atBoundary := dark(301.0, -12.0, "CamA")
	tooLong := dark(302.0, -10.0, "CamA")
	tooCold := dark(300.0, -13.0, "CamA")

	if res := m.MatchCold(s, CalDark, []Frame{atBoundary}); res.Count != 1 {
		t.Fatalf("frame at tolerance boundary must match")
	}
	if res := m.MatchCold(s, CalDark, []Frame{tooLong}); res.Count != 0 {
		t.Fatalf("exposure outside tolerance must not match")
	}
	if res := m.MatchCold(s, CalDark, []Frame{tooCold}); res.Count != 0 {
		t.Fatalf("temperature outside tolerance must not match")
	}
}

func TestMatchColdFlatSameNightOnly(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()

	same := flat("Ha", "2025-03-01", -10.0, "CamA")
	other := flat("Ha", "2025-02-28", -10.0, "CamA")
	wrongFilter := flat("OIII", "2025-03-01", -10.0, "CamA")

	res := m.MatchCold(s, CalFlat, []Frame{same, other, wrongFilter})
	if res.Count != 1 {
		t.Fatalf("only same-night same-filter flats match, got %d", res.Count)
	}
}

func TestMatchCachedAgreesWithCold(t *testing.T) {
	// Bucket-aligned values so rounding does not shift frames across bucket
	// boundaries relative to the direct scan.
	m := NewMatcher(DefaultTolerances())
	s := testSession()
	s.AvgTemperature = fp(-10.0)
	s.AvgExposure = fp(300.0)

	frames := []Frame{
		dark(300.0, -10.0, "CamA"),
		dark(300.0, -11.0, "CamA"),
		dark(302.0, -10.0, "CamA"), // exposure out of range
		bias(-10.0, "CamA"),
		bias(-11.0, "CamA"),
		bias(-13.0, "CamA"), // temperature out of range
		flat("Ha", "2025-03-01", -9.0, "CamA"),
		flat("Ha", "2025-03-01", -13.0, "CamA"),
		flat("Ha", "2025-03-01", -14.0, "CamA"), // outside flat tolerance
	}
	cache := BuildCache(frames)

	for _, ct := range CalibrationTypes {
		cold := m.MatchCold(s, ct, frames)
		hot := m.MatchCached(s, ct, cache)
		if cold.Count != hot.Count || cold.Masters != hot.Masters {
			t.Fatalf("%s: cold %d/%d vs cached %d/%d", ct, cold.Count, cold.Masters, hot.Count, hot.Masters)
		}
	}
}

func TestMatchCachedAgreesWithColdWideTolerances(t *testing.T) {
	// Fractional tolerances force the cached probes past a naive whole-bucket
	// span. Values sit on exact binary fractions so boundary comparisons stay
	// precise.
	m := NewMatcher(Tolerances{DarkTemp: 1.5, BiasTemp: 1.5, FlatTemp: 3.5, Exposure: 0.5})
	s := testSession()
	s.AvgTemperature = fp(-10.0)
	s.AvgExposure = fp(300.0)

	frames := []Frame{
		dark(300.5, -11.5, "CamA"), // both differences exactly at tolerance
		dark(300.7, -10.0, "CamA"), // exposure past tolerance
		bias(-11.5, "CamA"),
		bias(-12.5, "CamA"), // temperature past tolerance
		flat("Ha", "2025-03-01", -13.5, "CamA"),
		flat("Ha", "2025-03-01", -14.5, "CamA"), // past flat tolerance
	}
	cache := BuildCache(frames)

	for _, ct := range CalibrationTypes {
		cold := m.MatchCold(s, ct, frames)
		hot := m.MatchCached(s, ct, cache)
		if cold.Count != 1 {
			t.Fatalf("%s: direct scan expected 1 frame, got %d", ct, cold.Count)
		}
		if hot.Count != cold.Count || hot.Masters != cold.Masters {
			t.Fatalf("%s: cold %d/%d vs cached %d/%d", ct, cold.Count, cold.Masters, hot.Count, hot.Masters)
		}
	}
}

func TestMatchUnknownCalibrationType(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()
	frames := testCatalog()
	cache := BuildCache(frames)
	unknown := CalibrationType("superbias")

	if res := m.MatchCold(s, unknown, frames); res != (MatchResult{}) {
		t.Fatalf("direct scan matched frames for an unknown type: %+v", res)
	}
	if res := m.MatchCached(s, unknown, cache); res != (MatchResult{}) {
		t.Fatalf("cached match returned frames for an unknown type: %+v", res)
	}

	s.Flats = MatchResult{Count: 5, QualityScore: 25}
	s.setMatch(unknown, MatchResult{Count: 99})
	if s.Flats.Count != 5 || s.Darks.Count != 0 || s.Bias.Count != 0 {
		t.Fatalf("unknown type must not write into a real slot: %+v", s)
	}
	if got := s.Match(unknown); got != (MatchResult{}) {
		t.Fatalf("unknown type must read as zero, got %+v", got)
	}
}

func TestMatchCachedNoSessionExposure(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()
	s.AvgExposure = nil

	cache := BuildCache([]Frame{dark(300.0, -10.0, "CamA")})
	if res := m.MatchCached(s, CalDark, cache); res.Count != 0 {
		t.Fatalf("darks cannot match without a session exposure, got %d", res.Count)
	}
}

func TestMatchCachedNoSessionTemperature(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()
	s.AvgTemperature = nil

	cache := BuildCache([]Frame{
		bias(-10.0, "CamA"),
		bias(25.0, "CamA"),
	})
	if res := m.MatchCached(s, CalBias, cache); res.Count != 2 {
		t.Fatalf("temperature criterion is waived without a session temperature, got %d", res.Count)
	}
}

func TestMatchIncludeMastersToggle(t *testing.T) {
	master := dark(300.0, -10.0, "CamA")
	master.Master = true
	frames := []Frame{master, dark(300.0, -10.0, "CamA")}
	s := testSession()

	m := NewMatcher(DefaultTolerances())
	res := m.MatchCold(s, CalDark, frames)
	if res.Count != 1 || res.Masters != 1 || !res.HasMaster {
		t.Fatalf("got count %d masters %d", res.Count, res.Masters)
	}

	m.IncludeMasters = false
	res = m.MatchCold(s, CalDark, frames)
	if res.Masters != 0 || res.HasMaster {
		t.Fatalf("masters must be ignored when disabled, got %d", res.Masters)
	}
	if res.Count != 1 {
		t.Fatalf("regular frames unaffected by master toggle, got %d", res.Count)
	}
}

func TestMatchAverageTemperature(t *testing.T) {
	m := NewMatcher(DefaultTolerances())
	s := testSession()
	s.AvgTemperature = fp(-10.0)

	frames := []Frame{bias(-9.5, "CamA"), bias(-10.5, "CamA")}
	res := m.MatchCold(s, CalBias, frames)
	if res.AvgTemperature == nil || *res.AvgTemperature != -10.0 {
		t.Fatalf("unexpected matched-frame average temperature: %v", res.AvgTemperature)
	}
}

func TestBuildCacheUnusable(t *testing.T) {
	noTemp := dark(300.0, 0, "CamA")
	noTemp.Temperature = nil
	noExp := dark(0, -10.0, "CamA")
	noExp.Exposure = nil
	noDate := flat("Ha", "", -10.0, "CamA")
	noDate.Date = nil

	c := BuildCache([]Frame{noTemp, noExp, noDate, bias(-10.0, "CamA")})
	if c.Unusable != 3 {
		t.Fatalf("expected 3 unusable frames, got %d", c.Unusable)
	}
}
