package engine

import "math"

// Kind enumerates the capture types a frame can have.
type Kind string

const (
	KindLight Kind = "Light"
	KindDark  Kind = "Dark"
	KindFlat  Kind = "Flat"
	KindBias  Kind = "Bias"
)

// CalibrationType enumerates the calibration categories matched against a session.
type CalibrationType string

const (
	CalDark CalibrationType = "dark"
	CalBias CalibrationType = "bias"
	CalFlat CalibrationType = "flat"
)

// CalibrationTypes lists all calibration categories in matching order.
var CalibrationTypes = []CalibrationType{CalDark, CalBias, CalFlat}

// Frame is one imported exposure record. Optional attributes are nil when the
// capture metadata did not carry them; matching must tolerate any field being
// absent except ID, Kind and binning.
type Frame struct {
	ID          int64
	Kind        Kind
	Master      bool
	Object      *string
	Filter      *string
	Exposure    *float64 // seconds
	Temperature *float64 // °C
	BinX        int
	BinY        int
	Date        *string // session date, YYYY-MM-DD, normalized upstream
	Instrument  *string
}

// optStr is a comparable stand-in for a nullable string so it can participate
// in map keys. Two absent values compare equal; absent never equals a concrete
// value (the NULL-equals-NULL rule).
type optStr struct {
	val string
	ok  bool
}

func optOf(p *string) optStr {
	if p == nil {
		return optStr{}
	}
	return optStr{val: *p, ok: true}
}

func (o optStr) ptr() *string {
	if !o.ok {
		return nil
	}
	v := o.val
	return &v
}

// strOrDefault renders an optional string for display.
func strOrDefault(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// roundTenth rounds to one decimal place, the bucket width used for dark
// exposure keys.
func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// roundDegree rounds to the nearest whole degree, the bucket width used for
// temperature keys.
func roundDegree(v float64) int {
	return int(math.Round(v))
}

func f64(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
