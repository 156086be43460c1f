// Package validation quantifies agreement between observed, simulated, and
// retrieved series, and attributes residual error to individual snowpack
// parameters via one-at-a-time sensitivity sweeps.
package validation

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Record is the per-timestamp comparison tuple. Records are created once per
// validation run and never mutated; a re-run with different parameters
// regenerates them wholesale.
type Record struct {
	Time      time.Time
	Observed  float64
	Simulated float64
	Retrieved float64

	// ResidualSim is observed − simulated; ResidualRet is observed −
	// retrieved.
	ResidualSim float64
	ResidualRet float64
}

// Compare builds validation records from already time-aligned value slices
// (align with timeseries.Align first). All slices must have equal length.
func Compare(times []time.Time, observed, simulated, retrieved []float64) ([]Record, error) {
	n := len(times)
	if len(observed) != n || len(simulated) != n || len(retrieved) != n {
		return nil, fmt.Errorf("compare: series not aligned: %d timestamps, %d/%d/%d values",
			n, len(observed), len(simulated), len(retrieved))
	}
	records := make([]Record, n)
	for i := 0; i < n; i++ {
		records[i] = Record{
			Time:        times[i],
			Observed:    observed[i],
			Simulated:   simulated[i],
			Retrieved:   retrieved[i],
			ResidualSim: observed[i] - simulated[i],
			ResidualRet: observed[i] - retrieved[i],
		}
	}
	return records, nil
}

// ResidualKind selects which residual a statistic is computed over.
type ResidualKind int

const (
	AgainstSimulated ResidualKind = iota
	AgainstRetrieved
)

// Stats summarizes one residual population.
type Stats struct {
	N    int
	Bias float64 // mean residual
	MAE  float64
	RMSE float64
	R2   float64 // squared Pearson correlation between observed and estimate
}

// Summarize computes error statistics for the chosen residual kind.
func Summarize(records []Record, kind ResidualKind) (Stats, error) {
	if len(records) == 0 {
		return Stats{}, fmt.Errorf("summarize: no records")
	}
	n := len(records)
	obs := make([]float64, n)
	est := make([]float64, n)
	res := make([]float64, n)
	for i, r := range records {
		obs[i] = r.Observed
		switch kind {
		case AgainstSimulated:
			est[i] = r.Simulated
			res[i] = r.ResidualSim
		case AgainstRetrieved:
			est[i] = r.Retrieved
			res[i] = r.ResidualRet
		}
	}

	s := Stats{N: n, Bias: stat.Mean(res, nil)}
	var sumSq, sumAbs float64
	for _, v := range res {
		sumSq += v * v
		sumAbs += math.Abs(v)
	}
	s.MAE = sumAbs / float64(n)
	s.RMSE = math.Sqrt(sumSq / float64(n))

	corr := stat.Correlation(obs, est, nil)
	if !math.IsNaN(corr) {
		s.R2 = corr * corr
	}
	return s, nil
}
