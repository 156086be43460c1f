package timeseries

import (
	"math"
	"testing"
	"time"
)

func mustSeries(t *testing.T, name string, times []time.Time, fields map[string][]float64) *Series {
	t.Helper()
	s, err := New(name, times, fields)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func hourly(n int) []time.Time {
	base := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Hour)
	}
	return times
}

func TestNewRejectsBadInput(t *testing.T) {
	times := hourly(3)

	// non-monotonic time axis
	bad := []time.Time{times[1], times[0], times[2]}
	if _, err := New("bad", bad, nil); err == nil {
		t.Error("expected error for non-monotonic time axis")
	}

	// ragged column
	if _, err := New("bad", times, map[string][]float64{"depth": {1, 2}}); err == nil {
		t.Error("expected error for column length mismatch")
	}
}

func TestMaskValid(t *testing.T) {
	const n = 5
	times := hourly(n)
	depth := []float64{0.10, 0.15, math.NaN(), 0.25, 0.30}
	temp := []float64{270, 269, 268, 267, 266}
	s := mustSeries(t, "pit", times, map[string][]float64{"depth": depth, "temp": temp})

	masked, idx, err := s.MaskValid("depth")
	if err != nil {
		t.Fatalf("MaskValid: %v", err)
	}
	if len(idx) != n-1 {
		t.Fatalf("expected index set of size %d, got %d", n-1, len(idx))
	}
	if masked.Len() != n-1 {
		t.Fatalf("expected masked series of length %d, got %d", n-1, masked.Len())
	}

	// The same index set selects parallel data from a second series.
	other := mustSeries(t, "tb", times, map[string][]float64{"tb18": {200, 201, 202, 203, 204}})
	sub, err := other.Take(idx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if sub.Len() != n-1 {
		t.Fatalf("expected parallel series of length %d, got %d", n-1, sub.Len())
	}
	col, _ := sub.Column("tb18")
	want := []float64{200, 201, 203, 204}
	for i, v := range col {
		if v != want[i] {
			t.Errorf("row %d: expected %.0f, got %.0f", i, want[i], v)
		}
	}
}

func TestSelectIncidenceWindow(t *testing.T) {
	times := hourly(5)
	// Sensor geometry reports the angle with a sign; callers normalize
	// before filtering.
	angle := []float64{-40, -48, 50, 54.9, 55}
	s := mustSeries(t, "tb", times, map[string][]float64{"incidence": angle})

	filtered := s.Select(func(o Observation) bool {
		v, ok := o.Value("incidence")
		if !ok {
			return false
		}
		v = math.Abs(v)
		return v > 45 && v < 55
	})

	if filtered.Len() != 3 {
		t.Fatalf("expected 3 rows in (45, 55), got %d", filtered.Len())
	}
	col, _ := filtered.Column("incidence")
	want := []float64{-48, 50, 54.9}
	for i, v := range col {
		if v != want[i] {
			t.Errorf("row %d: expected %.1f, got %.1f", i, want[i], v)
		}
	}
}

func TestSelectSkipsMissing(t *testing.T) {
	times := hourly(3)
	s := mustSeries(t, "x", times, map[string][]float64{"v": {1, math.NaN(), 3}})
	got := s.Select(func(o Observation) bool {
		_, ok := o.Value("v")
		return ok
	})
	if got.Len() != 2 {
		t.Errorf("expected 2 present rows, got %d", got.Len())
	}
}

func TestTakeValidation(t *testing.T) {
	s := mustSeries(t, "x", hourly(3), map[string][]float64{"v": {1, 2, 3}})
	if _, err := s.Take([]int{0, 5}); err == nil {
		t.Error("expected out-of-range error")
	}
	if _, err := s.Take([]int{2, 1}); err == nil {
		t.Error("expected non-monotonic index error")
	}
}
