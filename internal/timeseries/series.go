// Package timeseries loads and indexes measurement series by timestamp and
// exposes masked and filtered views of them. A Series is read-only after
// construction: filtering operations return new Series values, so aligned
// data can be shared between goroutines without synchronization.
//
// Missing measurements are represented by NaN, never by zero. All values are
// stored in SI units; unit conversion happens exactly once, at load time.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Observation is a read-only view of all measurements at one timestamp.
type Observation struct {
	Time   time.Time
	values map[string]float64
}

// Value returns the named measurement and whether it is present.
// A stored NaN counts as missing.
func (o Observation) Value(field string) (float64, bool) {
	v, ok := o.values[field]
	if !ok || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// Series is an immutable collection of time-indexed measurements. Each field
// is a column of the same length as the time axis, with NaN marking missing
// values. Timestamps are monotonically non-decreasing.
type Series struct {
	name   string
	times  []time.Time
	fields map[string][]float64
}

// New constructs a Series from a time axis and named columns. Every column
// must have the same length as the time axis, and timestamps must be
// monotonically non-decreasing.
func New(name string, times []time.Time, fields map[string][]float64) (*Series, error) {
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			return nil, &FormatError{Source: name,
				Reason: fmt.Sprintf("time axis not monotonic at index %d", i)}
		}
	}
	cols := make(map[string][]float64, len(fields))
	for f, col := range fields {
		if len(col) != len(times) {
			return nil, &FormatError{Source: name,
				Reason: fmt.Sprintf("field %q has %d values for %d timestamps", f, len(col), len(times))}
		}
		cols[f] = append([]float64(nil), col...)
	}
	return &Series{
		name:   name,
		times:  append([]time.Time(nil), times...),
		fields: cols,
	}, nil
}

// Name returns the series name (typically the source it was loaded from).
func (s *Series) Name() string { return s.name }

// Len returns the number of timestamps in the series.
func (s *Series) Len() int { return len(s.times) }

// Fields returns the sorted names of the measurement columns.
func (s *Series) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for f := range s.fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// HasField reports whether the series carries the named column.
func (s *Series) HasField(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// Times returns a copy of the time axis.
func (s *Series) Times() []time.Time {
	return append([]time.Time(nil), s.times...)
}

// Column returns a copy of the named measurement column. Missing values
// are NaN.
func (s *Series) Column(field string) ([]float64, error) {
	col, ok := s.fields[field]
	if !ok {
		return nil, &FormatError{Source: s.name, Reason: fmt.Sprintf("no field %q", field)}
	}
	return append([]float64(nil), col...), nil
}

// At returns the observation at row i.
func (s *Series) At(i int) Observation {
	vals := make(map[string]float64, len(s.fields))
	for f, col := range s.fields {
		vals[f] = col[i]
	}
	return Observation{Time: s.times[i], values: vals}
}

// Select returns a new series containing only the rows where pred holds.
// The predicate sees values exactly as stored: callers filtering on signed
// quantities such as incidence angle must normalize sign beforehand.
func (s *Series) Select(pred func(Observation) bool) *Series {
	var keep []int
	for i := range s.times {
		if pred(s.At(i)) {
			keep = append(keep, i)
		}
	}
	out, _ := s.take(keep)
	return out
}

// MaskValid returns the subsequence of rows where field is present, along
// with the retained row indices. The index set can be applied to a parallel
// series of the same length via Take, preserving relative order.
func (s *Series) MaskValid(field string) (*Series, []int, error) {
	col, ok := s.fields[field]
	if !ok {
		return nil, nil, &FormatError{Source: s.name, Reason: fmt.Sprintf("no field %q", field)}
	}
	keep := make([]int, 0, len(col))
	for i, v := range col {
		if !math.IsNaN(v) {
			keep = append(keep, i)
		}
	}
	out, err := s.take(keep)
	if err != nil {
		return nil, nil, err
	}
	return out, keep, nil
}

// Take returns a new series containing the given rows, in the given order.
// Indices must be within range and non-decreasing so the time-axis invariant
// is preserved.
func (s *Series) Take(idx []int) (*Series, error) {
	for k, i := range idx {
		if i < 0 || i >= len(s.times) {
			return nil, fmt.Errorf("take: index %d out of range for series of length %d", i, len(s.times))
		}
		if k > 0 && i < idx[k-1] {
			return nil, fmt.Errorf("take: index set not monotonic at position %d", k)
		}
	}
	return s.take(idx)
}

func (s *Series) take(idx []int) (*Series, error) {
	times := make([]time.Time, len(idx))
	for k, i := range idx {
		times[k] = s.times[i]
	}
	fields := make(map[string][]float64, len(s.fields))
	for f, col := range s.fields {
		sub := make([]float64, len(idx))
		for k, i := range idx {
			sub[k] = col[i]
		}
		fields[f] = sub
	}
	return &Series{name: s.name, times: times, fields: fields}, nil
}
