package engine

import "math"

// MatchResult is the outcome of matching one calibration type against a
// session. QualityScore is always derived from Count and HasMaster at
// construction time and never stored independently of them.
type MatchResult struct {
	Count          int      `json:"count"`       // tolerance-compatible non-master frames
	Masters        int      `json:"masters"`     // compatible master frames
	HasMaster      bool     `json:"has_master"`
	QualityScore   int      `json:"quality_score"`
	AvgTemperature *float64 `json:"avg_temperature,omitempty"` // over matched frames
}

// Tolerances holds the physical matching bounds. Values are inclusive.
type Tolerances struct {
	DarkTemp float64 // °C, darks
	BiasTemp float64 // °C, bias
	FlatTemp float64 // °C, flats
	Exposure float64 // seconds, darks only
}

// DefaultTolerances mirrors the capture-practice defaults: ±1 °C for darks
// and bias, ±3 °C for flats, ±0.1 s exposure.
func DefaultTolerances() Tolerances {
	return Tolerances{DarkTemp: 1.0, BiasTemp: 1.0, FlatTemp: 3.0, Exposure: 0.1}
}

// Matcher finds calibration frames physically compatible with a session.
// It is stateless apart from its settings; both execution modes are pure
// functions of their inputs.
type Matcher struct {
	Tolerances     Tolerances
	IncludeMasters bool
}

// NewMatcher returns a matcher with the given tolerances that counts master
// frames.
func NewMatcher(tol Tolerances) *Matcher {
	return &Matcher{Tolerances: tol, IncludeMasters: true}
}

func (m *Matcher) tempTolerance(t CalibrationType) float64 {
	switch t {
	case CalDark:
		return m.Tolerances.DarkTemp
	case CalBias:
		return m.Tolerances.BiasTemp
	case CalFlat:
		return m.Tolerances.FlatTemp
	default:
		return 0
	}
}

// MatchCold matches by direct scan over the calibration frames. Used for
// small catalogs and as the validation reference for the cache path.
func (m *Matcher) MatchCold(s *Session, t CalibrationType, frames []Frame) MatchResult {
	var acc bucket
	tol := m.tempTolerance(t)
	instrument := optOf(s.Instrument)

	for _, f := range frames {
		if f.Kind != calKind(t) {
			continue
		}
		if f.BinX != s.BinX || f.BinY != s.BinY {
			continue
		}
		if optOf(f.Instrument) != instrument {
			continue
		}
		ft, ok := f64(f.Temperature)
		if !ok {
			continue // unusable without a recorded temperature
		}
		if st, ok := f64(s.AvgTemperature); ok && math.Abs(ft-st) > tol {
			continue
		}
		switch t {
		case CalDark:
			fe, feOK := f64(f.Exposure)
			se, seOK := f64(s.AvgExposure)
			if !feOK || !seOK || math.Abs(fe-se) > m.Tolerances.Exposure {
				continue
			}
		case CalFlat:
			// Flats must come from the same calendar night; no cross-night
			// substitution.
			if f.Date == nil || *f.Date != s.Date {
				continue
			}
			if optOf(f.Filter) != optOf(s.Filter) {
				continue
			}
		}
		acc.add(f)
	}
	return m.finalize(&acc)
}

// MatchCached matches by probing the per-run cache across the rounded buckets
// that fall within tolerance of the session's averaged profile. The cache is
// read-only here, so concurrent per-session matching needs no locking.
func (m *Matcher) MatchCached(s *Session, t CalibrationType, c *Cache) MatchResult {
	switch t {
	case CalDark:
		return m.cachedDarks(s, c)
	case CalBias:
		return m.cachedBias(s, c)
	case CalFlat:
		return m.cachedFlats(s, c)
	default:
		return MatchResult{}
	}
}

func (m *Matcher) cachedDarks(s *Session, c *Cache) MatchResult {
	var acc bucket
	se, seOK := f64(s.AvgExposure)
	if !seOK {
		// Without a session exposure there is nothing to compare darks
		// against.
		return m.finalize(&acc)
	}
	expMid := roundTenth(se)
	instrument := optOf(s.Instrument)

	probe := func(key darkKey) {
		if b, ok := c.darks[key]; ok {
			acc.merge(b)
		}
	}

	st, stOK := f64(s.AvgTemperature)
	if !stOK {
		// Temperature criterion is waived when the session never recorded
		// one; fall back to scanning the index.
		for key, b := range c.darks {
			if math.Abs(key.exp-expMid) <= m.Tolerances.Exposure+1e-9 &&
				key.binX == s.BinX && key.binY == s.BinY &&
				key.instrument == instrument {
				acc.merge(b)
			}
		}
		return m.finalize(&acc)
	}

	tempMid := roundDegree(st)
	span := tempSpan(m.Tolerances.DarkTemp)
	for _, exp := range exposureBuckets(expMid, m.Tolerances.Exposure) {
		for temp := tempMid - span; temp <= tempMid+span; temp++ {
			probe(darkKey{exp: exp, temp: temp, binX: s.BinX, binY: s.BinY, instrument: instrument})
		}
	}
	return m.finalize(&acc)
}

// tempSpan widens a temperature tolerance to whole bucket degrees. Rounding
// up keeps the cached path from missing frames the direct scan accepts at a
// fractional boundary.
func tempSpan(tol float64) int {
	return int(math.Ceil(tol))
}

// exposureBuckets enumerates the 0.1 s buckets within tolerance of mid. Each
// bucket appears once so merged counts never double.
func exposureBuckets(mid, tol float64) []float64 {
	steps := int(math.Ceil(tol * 10))
	buckets := make([]float64, 0, 2*steps+1)
	for i := -steps; i <= steps; i++ {
		buckets = append(buckets, roundTenth(mid+float64(i)/10))
	}
	return buckets
}

func (m *Matcher) cachedBias(s *Session, c *Cache) MatchResult {
	var acc bucket
	instrument := optOf(s.Instrument)

	st, stOK := f64(s.AvgTemperature)
	if !stOK {
		for key, b := range c.bias {
			if key.binX == s.BinX && key.binY == s.BinY && key.instrument == instrument {
				acc.merge(b)
			}
		}
		return m.finalize(&acc)
	}

	tempMid := roundDegree(st)
	span := tempSpan(m.Tolerances.BiasTemp)
	for temp := tempMid - span; temp <= tempMid+span; temp++ {
		if b, ok := c.bias[biasKey{temp: temp, binX: s.BinX, binY: s.BinY, instrument: instrument}]; ok {
			acc.merge(b)
		}
	}
	return m.finalize(&acc)
}

func (m *Matcher) cachedFlats(s *Session, c *Cache) MatchResult {
	var acc bucket
	filter := optOf(s.Filter)
	instrument := optOf(s.Instrument)

	st, stOK := f64(s.AvgTemperature)
	if !stOK {
		for key, b := range c.flats {
			if key.filter == filter && key.date == s.Date &&
				key.binX == s.BinX && key.binY == s.BinY &&
				key.instrument == instrument {
				acc.merge(b)
			}
		}
		return m.finalize(&acc)
	}

	tempMid := roundDegree(st)
	span := tempSpan(m.Tolerances.FlatTemp)
	for temp := tempMid - span; temp <= tempMid+span; temp++ {
		key := flatKey{
			filter:     filter,
			date:       s.Date,
			temp:       temp,
			binX:       s.BinX,
			binY:       s.BinY,
			instrument: instrument,
		}
		if b, ok := c.flats[key]; ok {
			acc.merge(b)
		}
	}
	return m.finalize(&acc)
}

func (b *bucket) merge(o *bucket) {
	b.count += o.count
	b.masters += o.masters
	b.tempSum += o.tempSum
	b.tempN += o.tempN
}

func (m *Matcher) finalize(b *bucket) MatchResult {
	masters := b.masters
	if !m.IncludeMasters {
		masters = 0
	}
	res := MatchResult{
		Count:        b.count,
		Masters:      masters,
		HasMaster:    masters > 0,
		QualityScore: Score(b.count),
	}
	if b.tempN > 0 {
		avg := b.tempSum / float64(b.tempN)
		res.AvgTemperature = &avg
	}
	return res
}

// calKind maps a calibration type to its frame kind. Unknown types map to no
// kind at all so they can never match frames by accident.
func calKind(t CalibrationType) Kind {
	switch t {
	case CalDark:
		return KindDark
	case CalBias:
		return KindBias
	case CalFlat:
		return KindFlat
	default:
		return ""
	}
}
