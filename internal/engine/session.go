package engine

import "sort"

// Session is a derived aggregate over Light frames sharing capture night,
// object, filter and instrument. Sessions are rebuilt from scratch on every
// aggregation run and never mutated afterwards.
type Session struct {
	Date       string  `json:"date"`
	Object     *string `json:"object"`
	Filter     *string `json:"filter"`
	Instrument *string `json:"instrument"`

	LightFrames    int      `json:"light_frames"`
	AvgExposure    *float64 `json:"avg_exposure"`    // seconds, over frames that carry one
	AvgTemperature *float64 `json:"avg_temperature"` // °C, over frames that carry one
	BinX           int      `json:"bin_x"`
	BinY           int      `json:"bin_y"`

	Darks MatchResult `json:"darks"`
	Bias  MatchResult `json:"bias"`
	Flats MatchResult `json:"flats"`

	Status          Status   `json:"status"`
	Recommendations []string `json:"recommendations"`
}

// Match returns the result for one calibration type. Unknown types yield a
// zero result rather than aliasing one of the real slots.
func (s *Session) Match(t CalibrationType) MatchResult {
	switch t {
	case CalDark:
		return s.Darks
	case CalBias:
		return s.Bias
	case CalFlat:
		return s.Flats
	default:
		return MatchResult{}
	}
}

func (s *Session) setMatch(t CalibrationType, m MatchResult) {
	switch t {
	case CalDark:
		s.Darks = m
	case CalBias:
		s.Bias = m
	case CalFlat:
		s.Flats = m
	}
}

type sessionKey struct {
	date       string
	object     optStr
	filter     optStr
	instrument optStr
}

// DetectSessions groups Light frames into sessions on the
// (date, object, filter, instrument) tuple. Two absent values of the same
// field group together; an absent value never groups with a concrete one.
// Light frames without a date cannot be grouped and are returned as a count
// rather than silently dropped.
//
// Averages are taken over the frames that carry the attribute; if no frame in
// a group carries it, the aggregate stays absent. Binning is taken from the
// first frame of the group in input order.
func DetectSessions(lights []Frame) (sessions []Session, unassignable int) {
	type acc struct {
		session Session
		expSum  float64
		expN    int
		tempSum float64
		tempN   int
	}

	groups := make(map[sessionKey]*acc)
	var order []sessionKey

	for _, f := range lights {
		if f.Kind != KindLight {
			continue
		}
		if f.Date == nil {
			unassignable++
			continue
		}
		key := sessionKey{
			date:       *f.Date,
			object:     optOf(f.Object),
			filter:     optOf(f.Filter),
			instrument: optOf(f.Instrument),
		}
		g, ok := groups[key]
		if !ok {
			g = &acc{session: Session{
				Date:       key.date,
				Object:     key.object.ptr(),
				Filter:     key.filter.ptr(),
				Instrument: key.instrument.ptr(),
				BinX:       f.BinX,
				BinY:       f.BinY,
			}}
			groups[key] = g
			order = append(order, key)
		}
		g.session.LightFrames++
		if v, ok := f64(f.Exposure); ok {
			g.expSum += v
			g.expN++
		}
		if v, ok := f64(f.Temperature); ok {
			g.tempSum += v
			g.tempN++
		}
	}

	sessions = make([]Session, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.expN > 0 {
			avg := g.expSum / float64(g.expN)
			g.session.AvgExposure = &avg
		}
		if g.tempN > 0 {
			avg := g.tempSum / float64(g.tempN)
			g.session.AvgTemperature = &avg
		}
		sessions = append(sessions, g.session)
	}

	// Newest night first, then object/filter/instrument for a stable listing.
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if ao, bo := strOrDefault(a.Object, ""), strOrDefault(b.Object, ""); ao != bo {
			return ao < bo
		}
		if af, bf := strOrDefault(a.Filter, ""), strOrDefault(b.Filter, ""); af != bf {
			return af < bf
		}
		return strOrDefault(a.Instrument, "") < strOrDefault(b.Instrument, "")
	})

	return sessions, unassignable
}
