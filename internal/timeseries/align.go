package timeseries

import (
	"time"
)

// Pair records one matched row between two aligned series.
type Pair struct {
	Time   time.Time // timestamp of the row in series A
	AIndex int
	BIndex int
}

// Align matches rows of a and b whose timestamps differ by at most tol,
// using a greedy nearest-timestamp rule: both series are scanned in time
// order, each row of b is matched to at most one row of a, and rows that
// find no partner within tol are dropped. The returned pairs are ordered
// by the time axis of a.
//
// Dropping unmatched rows is intentional; callers that need to know how
// much was dropped can compare len(pairs) against the input lengths.
func Align(a, b *Series, tol time.Duration) []Pair {
	var pairs []Pair
	j := 0
	for i := 0; i < a.Len(); i++ {
		ta := a.times[i]
		// Advance through b while the next candidate is at least as close.
		for j+1 < b.Len() && absDuration(b.times[j+1].Sub(ta)) <= absDuration(b.times[j].Sub(ta)) {
			j++
		}
		if j < b.Len() && absDuration(b.times[j].Sub(ta)) <= tol {
			pairs = append(pairs, Pair{Time: ta, AIndex: i, BIndex: j})
			j++ // each row of b matches at most once
		}
		if j >= b.Len() {
			break
		}
	}
	return pairs
}

// AlignColumns aligns two series and extracts one column from each,
// returning the matched timestamps and parallel value slices.
func AlignColumns(a, b *Series, fieldA, fieldB string, tol time.Duration) ([]time.Time, []float64, []float64, error) {
	colA, err := a.Column(fieldA)
	if err != nil {
		return nil, nil, nil, err
	}
	colB, err := b.Column(fieldB)
	if err != nil {
		return nil, nil, nil, err
	}
	pairs := Align(a, b, tol)
	times := make([]time.Time, len(pairs))
	va := make([]float64, len(pairs))
	vb := make([]float64, len(pairs))
	for k, p := range pairs {
		times[k] = p.Time
		va[k] = colA[p.AIndex]
		vb[k] = colB[p.BIndex]
	}
	return times, va, vb, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
