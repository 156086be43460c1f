package validation

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mjsandells/snowschool2024/internal/emission"
	"github.com/mjsandells/snowschool2024/internal/retrieval"
	"github.com/mjsandells/snowschool2024/internal/snowpack"
)

// linearSimulator is a test double whose spectral response is linear in
// depth by construction, so the two-point fit must recover the slope
// exactly.
type linearSimulator struct {
	slopeKPerM float64
}

func (s *linearSimulator) Name() string { return "linear-double" }

func (s *linearSimulator) Simulate(ctx context.Context, sensor emission.Sensor, sp snowpack.Description) (emission.Result, error) {
	dtb := s.slopeKPerM * sp.TotalDepth()
	return emission.Result{Channels: []emission.ChannelTB{
		{FrequencyHz: 18e9, Pol: emission.PolV, TBK: 250},
		{FrequencyHz: 36e9, Pol: emission.PolV, TBK: 250 - dtb},
	}}, nil
}

func refSensor(t *testing.T) emission.Sensor {
	t.Helper()
	s, err := emission.NewSensor([]float64{18e9, 36e9}, 50, []emission.Polarization{emission.PolV})
	if err != nil {
		t.Fatalf("NewSensor: %v", err)
	}
	return s
}

// TestSweepFitRetrieveEndToEnd exercises the whole calibration path: a depth
// sweep through the forward model, a fit restricted to the first two points,
// then retrieval and comparison over synthetic observations.
func TestSweepFitRetrieveEndToEnd(t *testing.T) {
	const refSlope = 15.9 // K per meter of depth, linear by construction

	sensor := refSensor(t)
	sim := &linearSimulator{slopeKPerM: refSlope}
	runner := emission.NewRunner(sim, zap.NewNop().Sugar(), 4)

	fixed := snowpack.LayerParams{
		DensityKgM3:  300,
		GrainRadiusM: 0.0003,
		TemperatureK: 260,
		Stickiness:   0.15,
	}
	var depths []float64
	for d := 0.1; d <= 3.4+1e-9; d += 0.1 {
		depths = append(depths, d)
	}
	packs, err := snowpack.Sweep(depths, fixed, nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	batch := runner.Run(context.Background(), sensor, packs)
	if got := batch.Completed(); got != len(packs) {
		t.Fatalf("expected %d completed items, got %d", len(packs), got)
	}

	// The sweep's independent variable and the simulated response stay
	// index-aligned through the batch.
	dtb := make([]float64, len(packs))
	for i, item := range batch.Items {
		dtb[i], err = item.Result.SpectralDifference(18e9, 36e9, emission.PolV)
		if err != nil {
			t.Fatalf("SpectralDifference: %v", err)
		}
	}

	// Historical derivation: two-point slope estimate on the sweep, with
	// depth as the dependent variable of the retrieval law.
	coeff, err := retrieval.Fit(dtb, depths, retrieval.Range{Start: 0, End: 2})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	wantSlope := 1 / refSlope // m of depth per K
	if math.Abs(coeff.Slope-wantSlope) > 1e-9 {
		t.Errorf("retrieval slope %.9f m/K, expected %.9f", coeff.Slope, wantSlope)
	}

	// Retrieve depth from "observed" spectral differences and validate.
	base := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	trueDepths := []float64{0.2, 0.5, 1.0}
	times := make([]time.Time, len(trueDepths))
	observedDTB := make([]float64, len(trueDepths))
	retrieved := make([]float64, len(trueDepths))
	for i, d := range trueDepths {
		times[i] = base.Add(time.Duration(i) * time.Hour)
		observedDTB[i] = refSlope * d
		retrieved[i] = coeff.Predict(observedDTB[i])
	}

	records, err := Compare(times, trueDepths, trueDepths, retrieved)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	stats, err := Summarize(records, AgainstRetrieved)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if stats.RMSE > 1e-9 {
		t.Errorf("linear forward model must retrieve exactly, RMSE=%v", stats.RMSE)
	}
}

func TestAttributeError(t *testing.T) {
	sensor := refSensor(t)
	sim := emission.NewSemiEmpirical(emission.DefaultSemiEmpiricalParams())
	runner := emission.NewRunner(sim, zap.NewNop().Sugar(), 2)

	// Truth: packs with 350 kg/m³. Baseline guess: 300 kg/m³. A density
	// perturbation toward truth must explain more variance than a
	// temperature nudge.
	truth := snowpack.LayerParams{DensityKgM3: 350, GrainRadiusM: 0.0003, TemperatureK: 260, Stickiness: 0.15}
	guess := truth
	guess.DensityKgM3 = 300

	depths := []float64{0.3, 0.6, 0.9, 1.2}
	truePacks, err := snowpack.Sweep(depths, truth, nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	guessPacks, err := snowpack.Sweep(depths, guess, nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	metric := func(r emission.Result) (float64, error) {
		return r.SpectralDifference(18e9, 36e9, emission.PolV)
	}
	observed := make([]float64, len(truePacks))
	for i, sp := range truePacks {
		res, err := sim.Simulate(context.Background(), sensor, sp)
		if err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		observed[i], err = metric(res)
		if err != nil {
			t.Fatalf("metric: %v", err)
		}
	}

	perturbs := []Perturbation{
		{Parameter: "density", Apply: func(l snowpack.LayerParams) snowpack.LayerParams {
			l.DensityKgM3 = 350
			return l
		}},
		{Parameter: "temperature", Apply: func(l snowpack.LayerParams) snowpack.LayerParams {
			l.TemperatureK += 5
			return l
		}},
	}

	ranked, err := AttributeError(context.Background(), runner, sensor, guessPacks, observed, metric, perturbs)
	if err != nil {
		t.Fatalf("AttributeError: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 rankings, got %d", len(ranked))
	}
	if ranked[0].Parameter != "density" {
		t.Errorf("expected density ranked first, got %q", ranked[0].Parameter)
	}
	if ranked[0].ExplainedVariance < 0.9 {
		t.Errorf("density perturbation toward truth should explain most variance, got %v",
			ranked[0].ExplainedVariance)
	}
	if ranked[0].PerturbedRMSE >= ranked[0].BaselineRMSE {
		t.Errorf("density perturbation should reduce RMSE: %v >= %v",
			ranked[0].PerturbedRMSE, ranked[0].BaselineRMSE)
	}
}
