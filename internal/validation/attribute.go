package validation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mjsandells/snowschool2024/internal/emission"
	"github.com/mjsandells/snowschool2024/internal/snowpack"
)

// Perturbation names one candidate snowpack parameter and how to perturb it.
// Apply is called per layer; everything else is held fixed.
type Perturbation struct {
	Parameter string
	Apply     func(snowpack.LayerParams) snowpack.LayerParams
}

// Sensitivity ranks one parameter's marginal contribution to residual
// reduction.
type Sensitivity struct {
	Parameter string

	// ExplainedVariance estimates the fraction of baseline residual
	// variance removed by the perturbation. Negative values mean the
	// perturbation made agreement worse.
	ExplainedVariance float64

	BaselineRMSE  float64
	PerturbedRMSE float64
}

// Metric reduces one forward-model result to the scalar that is compared
// against the observation (e.g. the 18−36 GHz V-pol spectral difference).
type Metric func(emission.Result) (float64, error)

// AttributeError estimates each candidate parameter's contribution to the
// observed-minus-simulated residual by re-running the forward model with
// that single parameter perturbed. This is a one-at-a-time sensitivity
// sweep, not a formal variance decomposition: interactions between
// parameters are ignored and the result is only as good as the chosen
// perturbation sizes. The ranking is by explained variance, descending.
func AttributeError(ctx context.Context, runner *emission.Runner, sensor emission.Sensor,
	packs []snowpack.Description, observed []float64, metric Metric, perturbs []Perturbation) ([]Sensitivity, error) {

	if len(packs) != len(observed) {
		return nil, fmt.Errorf("attribute: %d snowpacks for %d observations", len(packs), len(observed))
	}
	if len(packs) == 0 {
		return nil, fmt.Errorf("attribute: no inputs")
	}

	baseVar, baseRMSE, err := residualVariance(ctx, runner, sensor, packs, observed, metric)
	if err != nil {
		return nil, fmt.Errorf("attribute: baseline run: %w", err)
	}
	if baseVar == 0 {
		return nil, fmt.Errorf("attribute: baseline residual variance is zero, nothing to explain")
	}

	out := make([]Sensitivity, 0, len(perturbs))
	for _, p := range perturbs {
		perturbed, err := perturbPacks(packs, p)
		if err != nil {
			return nil, fmt.Errorf("attribute: perturbation %q: %w", p.Parameter, err)
		}
		pVar, pRMSE, err := residualVariance(ctx, runner, sensor, perturbed, observed, metric)
		if err != nil {
			return nil, fmt.Errorf("attribute: perturbation %q: %w", p.Parameter, err)
		}
		out = append(out, Sensitivity{
			Parameter:         p.Parameter,
			ExplainedVariance: 1 - pVar/baseVar,
			BaselineRMSE:      baseRMSE,
			PerturbedRMSE:     pRMSE,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExplainedVariance > out[j].ExplainedVariance
	})
	return out, nil
}

func perturbPacks(packs []snowpack.Description, p Perturbation) ([]snowpack.Description, error) {
	out := make([]snowpack.Description, len(packs))
	for i, sp := range packs {
		layers := sp.Layers()
		for k := range layers {
			layers[k] = p.Apply(layers[k])
		}
		var subPtr *snowpack.Substrate
		if sub, ok := sp.Substrate(); ok {
			subPtr = &sub
		}
		d, err := snowpack.Build(layers, subPtr)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// residualVariance runs the batch and computes the mean squared residual and
// RMSE of metric(result) against the observations, over the indices that
// simulated successfully. Failing every index is an error; failing some is
// the adapter's declared partial-failure behavior and those indices are
// simply excluded.
func residualVariance(ctx context.Context, runner *emission.Runner, sensor emission.Sensor,
	packs []snowpack.Description, observed []float64, metric Metric) (variance, rmse float64, err error) {

	batch := runner.Run(ctx, sensor, packs)

	var sumSq float64
	var n int
	for i, item := range batch.Items {
		if !item.OK() {
			continue
		}
		v, err := metric(item.Result)
		if err != nil {
			return 0, 0, fmt.Errorf("metric at index %d: %w", i, err)
		}
		r := observed[i] - v
		sumSq += r * r
		n++
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("no index simulated successfully")
	}
	ms := sumSq / float64(n)
	return ms, math.Sqrt(ms), nil
}
