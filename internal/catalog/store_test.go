package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"astrocat/internal/engine"
)

func sp(s string) *string   { return &s }
func fp(v float64) *float64 { return &v }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insert(t *testing.T, s *Store, f engine.Frame) int64 {
	t.Helper()
	id, err := s.InsertFrame(context.Background(), "frame.fits", f)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)

	id := insert(t, s, engine.Frame{
		Kind:        engine.KindLight,
		Object:      sp("M31"),
		Filter:      sp("Ha"),
		Exposure:    fp(300),
		Temperature: fp(-10.5),
		BinX:        1,
		BinY:        1,
		Date:        sp("2025-03-01"),
		Instrument:  sp("CamA"),
	})
	if id == 0 {
		t.Fatalf("expected assigned id")
	}

	lights, err := s.Lights(context.Background())
	if err != nil {
		t.Fatalf("lights: %v", err)
	}
	if len(lights) != 1 {
		t.Fatalf("expected 1 light frame, got %d", len(lights))
	}
	f := lights[0]
	if f.ID != id || f.Kind != engine.KindLight {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if f.Object == nil || *f.Object != "M31" || f.Temperature == nil || *f.Temperature != -10.5 {
		t.Fatalf("attributes lost in round trip: %+v", f)
	}
}

func TestStoreNullColumns(t *testing.T) {
	s := openTestStore(t)

	insert(t, s, engine.Frame{Kind: engine.KindBias, BinX: 1, BinY: 1})

	cals, err := s.Calibration(context.Background())
	if err != nil {
		t.Fatalf("calibration: %v", err)
	}
	f := cals[0]
	if f.Object != nil || f.Filter != nil || f.Exposure != nil || f.Temperature != nil ||
		f.Date != nil || f.Instrument != nil {
		t.Fatalf("NULL columns must come back as nil: %+v", f)
	}
}

func TestStoreKindSplit(t *testing.T) {
	s := openTestStore(t)

	insert(t, s, engine.Frame{Kind: engine.KindLight, BinX: 1, BinY: 1, Date: sp("2025-03-01")})
	insert(t, s, engine.Frame{Kind: engine.KindDark, BinX: 1, BinY: 1, Exposure: fp(300), Temperature: fp(-10)})
	insert(t, s, engine.Frame{Kind: engine.KindFlat, BinX: 1, BinY: 1, Temperature: fp(-10), Date: sp("2025-03-01")})
	insert(t, s, engine.Frame{Kind: engine.KindBias, BinX: 1, BinY: 1, Temperature: fp(-10)})

	lights, err := s.Lights(context.Background())
	if err != nil {
		t.Fatalf("lights: %v", err)
	}
	cals, err := s.Calibration(context.Background())
	if err != nil {
		t.Fatalf("calibration: %v", err)
	}
	if len(lights) != 1 || len(cals) != 3 {
		t.Fatalf("unexpected split: %d lights, %d calibration", len(lights), len(cals))
	}
}

func TestStoreDateRange(t *testing.T) {
	s := openTestStore(t)

	insert(t, s, engine.Frame{Kind: engine.KindLight, BinX: 1, BinY: 1, Date: sp("2025-01-15")})
	insert(t, s, engine.Frame{Kind: engine.KindLight, BinX: 1, BinY: 1, Date: sp("2025-02-15")})
	insert(t, s, engine.Frame{Kind: engine.KindLight, BinX: 1, BinY: 1, Date: sp("2025-03-15")})

	view := s.WithRange("2025-02-01", "2025-02-28")
	lights, err := view.Lights(context.Background())
	if err != nil {
		t.Fatalf("lights: %v", err)
	}
	if len(lights) != 1 || *lights[0].Date != "2025-02-15" {
		t.Fatalf("range filter failed: %+v", lights)
	}

	// The view must not leak into the base store.
	all, err := s.Lights(context.Background())
	if err != nil {
		t.Fatalf("lights: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("base store modified by view: %d", len(all))
	}
}

func TestStoreCount(t *testing.T) {
	s := openTestStore(t)

	insert(t, s, engine.Frame{Kind: engine.KindLight, BinX: 1, BinY: 1, Date: sp("2025-03-01")})
	insert(t, s, engine.Frame{Kind: engine.KindDark, BinX: 1, BinY: 1})
	insert(t, s, engine.Frame{Kind: engine.KindDark, Master: true, BinX: 1, BinY: 1})
	insert(t, s, engine.Frame{Kind: engine.KindFlat, BinX: 1, BinY: 1})

	counts, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Lights != 1 || counts.Darks != 2 || counts.Flats != 1 || counts.Masters != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
