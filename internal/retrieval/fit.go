// Package retrieval derives empirical retrieval laws from simulated
// brightness-temperature sweeps. The central operation is an ordinary
// least-squares fit restricted to a caller-selected sub-range: the spectral
// difference saturates at depth, so coefficients must come from the
// near-linear region only. Which region that is belongs to the caller; the
// historical Chang derivation uses the first two sweep points.
package retrieval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Range is a half-open index interval [Start, End) into a sweep.
type Range struct {
	Start int
	End   int
}

func (r Range) len() int { return r.End - r.Start }

// InsufficientDataError reports a fit requested on too few points. It is
// fatal to the fit call only.
type InsufficientDataError struct {
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("fit needs at least %d points in range, got %d", e.Need, e.Got)
}

// Coefficient is a linear retrieval law y = Slope*x + Intercept fitted over
// a sub-range of a sweep. It retains the full sweep domain so a different
// sub-range can be re-fitted without recomputing the forward model.
type Coefficient struct {
	Slope     float64
	Intercept float64

	// R2 is the coefficient of determination over the fitted sub-range.
	R2 float64

	// Range is the fitted index interval; XMin/XMax bound the independent
	// variable over that interval — the valid input range of the law.
	Range Range
	XMin  float64
	XMax  float64

	xs []float64
	ys []float64
}

// Fit performs ordinary least squares over xs[r.Start:r.End] and
// ys[r.Start:r.End]. xs and ys must be index-aligned and the selected range
// must hold at least two points.
func Fit(xs, ys []float64, r Range) (Coefficient, error) {
	if len(xs) != len(ys) {
		return Coefficient{}, fmt.Errorf("fit: %d x values for %d y values", len(xs), len(ys))
	}
	if r.Start < 0 || r.End > len(xs) || r.Start >= r.End {
		return Coefficient{}, fmt.Errorf("fit: range [%d, %d) outside domain of %d points", r.Start, r.End, len(xs))
	}
	if r.len() < 2 {
		return Coefficient{}, &InsufficientDataError{Need: 2, Got: r.len()}
	}

	xsub := xs[r.Start:r.End]
	ysub := ys[r.Start:r.End]
	intercept, slope := stat.LinearRegression(xsub, ysub, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return Coefficient{}, fmt.Errorf("fit: degenerate x values in range [%d, %d)", r.Start, r.End)
	}

	c := Coefficient{
		Slope:     slope,
		Intercept: intercept,
		R2:        rSquared(xsub, ysub, slope, intercept),
		Range:     r,
		XMin:      xsub[0],
		XMax:      xsub[0],
		xs:        append([]float64(nil), xs...),
		ys:        append([]float64(nil), ys...),
	}
	for _, x := range xsub {
		c.XMin = math.Min(c.XMin, x)
		c.XMax = math.Max(c.XMax, x)
	}
	return c, nil
}

// Refit derives a new coefficient over a different sub-range of the same
// sweep, without re-running the forward model.
func (c Coefficient) Refit(r Range) (Coefficient, error) {
	return Fit(c.xs, c.ys, r)
}

// Domain returns copies of the full sweep the coefficient was fitted from.
func (c Coefficient) Domain() (xs, ys []float64) {
	return append([]float64(nil), c.xs...), append([]float64(nil), c.ys...)
}

// Predict evaluates the law at x.
func (c Coefficient) Predict(x float64) float64 {
	return c.Slope*x + c.Intercept
}

// Invert solves y = Slope*x + Intercept for x; this is the retrieval
// direction, mapping an observed spectral difference back to the physical
// quantity.
func (c Coefficient) Invert(y float64) (float64, error) {
	if c.Slope == 0 {
		return 0, fmt.Errorf("retrieval law has zero slope")
	}
	return (y - c.Intercept) / c.Slope, nil
}

// InRange reports whether x lies inside the fitted (non-saturated) input
// interval.
func (c Coefficient) InRange(x float64) bool {
	return x >= c.XMin && x <= c.XMax
}

func rSquared(xs, ys []float64, slope, intercept float64) float64 {
	meanY := stat.Mean(ys, nil)
	var ssTot, ssRes float64
	for i := range ys {
		pred := slope*xs[i] + intercept
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
		ssRes += (ys[i] - pred) * (ys[i] - pred)
	}
	if ssTot == 0 {
		// Flat data perfectly reproduced by the fit.
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
