// swe-calibrate derives snow water equivalent retrieval coefficients from
// forward-model sweeps and validates them against field observations.
//
// The run has two halves. Calibration sweeps a single-layer snowpack across a
// depth axis, simulates the brightness temperatures each sensor channel would
// see, and fits linear retrieval laws over a configured sub-range of the
// sweep (the spectral difference saturates in deep snow, so the fit range
// matters). Validation loads observed brightness temperatures and in-situ
// snow measurements, retrieves depth and SWE through the fitted laws, and
// summarizes the residuals, attributing them to candidate snowpack
// parameters.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/mjsandells/snowschool2024/internal/artifacts"
	"github.com/mjsandells/snowschool2024/internal/emission"
	"github.com/mjsandells/snowschool2024/internal/log"
	"github.com/mjsandells/snowschool2024/internal/retrieval"
	"github.com/mjsandells/snowschool2024/internal/snowpack"
	"github.com/mjsandells/snowschool2024/internal/timeseries"
	"github.com/mjsandells/snowschool2024/internal/validation"
	"github.com/mjsandells/snowschool2024/pkg/config"
)

// Canonical field names the analysis expects from configured datasets. The
// per-dataset schema maps whatever the source files call their variables onto
// these.
const (
	fieldTBLow     = "tb_low"  // V-pol brightness temperature, lower frequency [K]
	fieldTBHigh    = "tb_high" // V-pol brightness temperature, higher frequency [K]
	fieldIncidence = "incidence_deg"
	fieldDepth     = "depth_m"
)

const despikeKernel = 5

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Analysis configuration file")
		runLabel   = flag.String("label", "", "Run label recorded with the artifacts")
		csvDir     = flag.String("csv-dir", "", "Optional directory for CSV exports")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *runLabel, *csvDir); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, configPath, runLabel, csvDir string) error {
	provider := config.NewYAMLProvider(configPath)
	defer provider.Close()
	cfg, err := provider.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runLabel == "" {
		runLabel = time.Now().UTC().Format("2006-01-02T15:04:05Z")
	}

	sim := emission.NewSemiEmpirical(cfg.Simulator)
	runner := emission.NewRunner(sim, log.GetSugaredLogger(), cfg.Workers)

	if cfg.CachePath != "" {
		cache, err := emission.OpenCache(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("open result cache: %w", err)
		}
		runner.SetCache(cache)
		defer func() {
			if err := cache.Flush(); err != nil {
				log.Warnf("could not flush result cache: %v", err)
			}
		}()
	}

	lowHz, highHz, err := frequencyPair(cfg.Sensor.Sensor)
	if err != nil {
		return err
	}
	metric := func(r emission.Result) (float64, error) {
		return r.SpectralDifference(lowHz, highHz, emission.PolV)
	}

	var store *artifacts.Store
	if cfg.ArtifactsDB != "" {
		store, err = artifacts.Open(cfg.ArtifactsDB, runLabel)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Infof("artifact run %s (%s)", store.RunID(), runLabel)
	}

	fmt.Printf("SWE Retrieval Calibration\n")
	fmt.Printf("=========================\n\n")
	fmt.Printf("Sensor: %.1f/%.1f GHz at %.0f° incidence\n",
		lowHz/1e9, highHz/1e9, cfg.Sensor.Sensor.IncidenceDeg())
	fmt.Printf("Reference snowpack: %.0f kg/m³, %.2f mm grains, %.0f K\n\n",
		cfg.Snowpack.Layer.DensityKgM3, cfg.Snowpack.Layer.GrainRadiusM*1000,
		cfg.Snowpack.Layer.TemperatureK)

	laws, err := calibrate(ctx, cfg, runner, metric, store)
	if err != nil {
		return err
	}

	if len(cfg.Datasets) == 0 && cfg.Database == nil {
		log.Info("no observation sources configured, calibration only")
		return nil
	}
	return validate(ctx, cfg, runner, metric, laws, store, csvDir)
}

// laws carries the fitted retrieval coefficients for the two target
// quantities. Depth is in cm per kelvin of spectral difference, SWE in mm.
type laws struct {
	depthCmPerK retrieval.Coefficient
	sweMMPerK   retrieval.Coefficient
}

func calibrate(ctx context.Context, cfg *config.ConfigData, runner *emission.Runner,
	metric validation.Metric, store *artifacts.Store) (laws, error) {

	depths := cfg.Sweep.Depths()
	packs, err := snowpack.Sweep(depths, cfg.Snowpack.Layer, cfg.Snowpack.Substrate)
	if err != nil {
		return laws{}, fmt.Errorf("build sweep: %w", err)
	}

	batch := runner.Run(ctx, cfg.Sensor.Sensor, packs)
	if failed := batch.FailedIndices(); len(failed) > 0 {
		return laws{}, fmt.Errorf("calibration sweep: %d of %d depths failed to simulate (first: %v)",
			len(failed), len(packs), batch.Items[failed[0]].Err)
	}

	dtb := make([]float64, len(packs))
	depthCm := make([]float64, len(packs))
	sweMM := make([]float64, len(packs))
	for i, item := range batch.Items {
		dtb[i], err = metric(item.Result)
		if err != nil {
			return laws{}, fmt.Errorf("sweep index %d: %w", i, err)
		}
		depthCm[i] = packs[i].TotalDepth() * 100
		sweMM[i] = packs[i].SWE() // kg/m² of water is mm of water
	}

	fitRange, ok := cfg.Fit["depth"]
	if !ok {
		// Default to the shallow half of the sweep, where the spectral
		// difference is still monotonic.
		fitRange = retrieval.Range{Start: 0, End: len(depths) / 2}
	}
	depthLaw, err := retrieval.Fit(dtb, depthCm, fitRange)
	if err != nil {
		return laws{}, fmt.Errorf("fit depth law: %w", err)
	}
	sweRange, ok := cfg.Fit["swe"]
	if !ok {
		sweRange = fitRange
	}
	sweLaw, err := retrieval.Fit(dtb, sweMM, sweRange)
	if err != nil {
		return laws{}, fmt.Errorf("fit swe law: %w", err)
	}

	impliedDensity := retrieval.DensityFromLaws(sweLaw.Slope, depthLaw.Slope, snowpack.DensityWater)

	fmt.Printf("Calibration sweep: %d depths, %.2f–%.2f m\n", len(depths), depths[0], depths[len(depths)-1])
	fmt.Printf("Fit window: sweep indices %d–%d (%.2f–%.2f m)\n\n",
		fitRange.Start, fitRange.End-1, depths[fitRange.Start], depths[fitRange.End-1])
	fmt.Printf("%-12s %12s %12s %8s\n", "Law", "Slope", "Intercept", "R²")
	fmt.Printf("%-12s %9.3f cm/K %9.3f cm %8.4f\n", "depth", depthLaw.Slope, depthLaw.Intercept, depthLaw.R2)
	fmt.Printf("%-12s %9.3f mm/K %9.3f mm %8.4f\n", "swe", sweLaw.Slope, sweLaw.Intercept, sweLaw.R2)
	fmt.Printf("\nImplied retrieval density: %.1f kg/m³ (reference %.1f)\n\n",
		impliedDensity, cfg.Snowpack.Layer.DensityKgM3)

	if store != nil {
		if err := store.SaveCoefficient("depth-cm", depthLaw); err != nil {
			return laws{}, err
		}
		if err := store.SaveCoefficient("swe-mm", sweLaw); err != nil {
			return laws{}, err
		}
	}
	return laws{depthCmPerK: depthLaw, sweMMPerK: sweLaw}, nil
}

func validate(ctx context.Context, cfg *config.ConfigData, runner *emission.Runner,
	metric validation.Metric, fitted laws, store *artifacts.Store, csvDir string) error {

	radiometer, inSitu, err := loadObservations(ctx, cfg)
	if err != nil {
		return err
	}
	log.Infof("loaded %d radiometer and %d in-situ observations", radiometer.Len(), inSitu.Len())

	times, obsDTB, truthDepthM, err := alignObservations(radiometer, inSitu, cfg.AlignTolerance)
	if err != nil {
		return err
	}
	if len(times) == 0 {
		return fmt.Errorf("no observation pairs within %v of each other", cfg.AlignTolerance)
	}
	log.Infof("aligned %d observation pairs (tolerance %v)", len(times), cfg.AlignTolerance)

	// The "simulated" leg runs the forward model on snowpacks built from the
	// in-situ depths and pushes the result through the same retrieval law.
	// Its residual isolates forward-model error; the retrieved leg's residual
	// is the end-to-end error.
	truthPacks, err := snowpack.Sweep(truthDepthM, cfg.Snowpack.Layer, cfg.Snowpack.Substrate)
	if err != nil {
		return fmt.Errorf("build observation snowpacks: %w", err)
	}
	batch := runner.Run(ctx, cfg.Sensor.Sensor, truthPacks)

	var (
		vTimes   []time.Time
		truthCm  []float64
		simCm    []float64
		retCm    []float64
		obsDTBOK []float64
	)
	for i, item := range batch.Items {
		if !item.OK() {
			log.Warnf("observation %s failed to simulate: %v", times[i].Format(time.RFC3339), item.Err)
			continue
		}
		simDTB, err := metric(item.Result)
		if err != nil {
			return err
		}
		vTimes = append(vTimes, times[i])
		truthCm = append(truthCm, truthDepthM[i]*100)
		simCm = append(simCm, fitted.depthCmPerK.Predict(simDTB))
		retCm = append(retCm, fitted.depthCmPerK.Predict(obsDTB[i]))
		obsDTBOK = append(obsDTBOK, obsDTB[i])
	}

	// Observed spectral differences outside the fitted interval retrieve by
	// extrapolation into the saturated regime; flag them before trusting the
	// statistics.
	outside := 0
	for _, v := range obsDTBOK {
		if !fitted.depthCmPerK.InRange(v) {
			outside++
		}
	}
	if outside > 0 {
		log.Warnf("%d of %d observed spectral differences fall outside the fitted interval [%.2f, %.2f] K",
			outside, len(obsDTBOK), fitted.depthCmPerK.XMin, fitted.depthCmPerK.XMax)
	}

	records, err := validation.Compare(vTimes, truthCm, simCm, retCm)
	if err != nil {
		return err
	}
	simStats, err := validation.Summarize(records, validation.AgainstSimulated)
	if err != nil {
		return err
	}
	retStats, err := validation.Summarize(records, validation.AgainstRetrieved)
	if err != nil {
		return err
	}

	fmt.Printf("Validation against %d in-situ depths [cm]\n", simStats.N)
	fmt.Printf("%-22s %8s %8s %8s %8s\n", "Residual", "Bias", "MAE", "RMSE", "R²")
	fmt.Printf("%-22s %8.2f %8.2f %8.2f %8.4f\n", "model self-consistency",
		simStats.Bias, simStats.MAE, simStats.RMSE, simStats.R2)
	fmt.Printf("%-22s %8.2f %8.2f %8.2f %8.4f\n\n", "end-to-end retrieval",
		retStats.Bias, retStats.MAE, retStats.RMSE, retStats.R2)

	ranked, err := attribute(ctx, cfg, runner, metric, vTimes, truthCm, obsDTBOK)
	if err != nil {
		// Attribution needs residual variance to work with; a perfect match
		// is a result, not a failure.
		log.Warnf("sensitivity attribution skipped: %v", err)
	} else {
		fmt.Printf("Residual attribution (one-at-a-time perturbations)\n")
		fmt.Printf("%-4s %-16s %10s %10s %10s\n", "Rank", "Parameter", "Explained", "RMSE", "RMSE'")
		for i, s := range ranked {
			fmt.Printf("%-4d %-16s %9.1f%% %10.2f %10.2f\n",
				i+1, s.Parameter, s.ExplainedVariance*100, s.BaselineRMSE, s.PerturbedRMSE)
		}
		fmt.Println()
	}

	if store != nil {
		if err := store.SaveValidation("depth-cm", records); err != nil {
			return err
		}
		if len(ranked) > 0 {
			if err := store.SaveSensitivity(ranked); err != nil {
				return err
			}
		}
	}
	if csvDir != "" {
		if err := artifacts.ExportValidationCSV(filepath.Join(csvDir, "validation.csv"), records); err != nil {
			return err
		}
		if len(ranked) > 0 {
			if err := artifacts.ExportSensitivityCSV(filepath.Join(csvDir, "sensitivity.csv"), ranked); err != nil {
				return err
			}
		}
		log.Infof("CSV exports written to %s", csvDir)
	}
	return nil
}

// attribute re-runs the forward model on the observation snowpacks with one
// parameter perturbed at a time, ranking each parameter by the residual
// variance its perturbation removes.
func attribute(ctx context.Context, cfg *config.ConfigData, runner *emission.Runner,
	metric validation.Metric, times []time.Time, truthCm, obsDTB []float64) ([]validation.Sensitivity, error) {

	depthsM := make([]float64, len(truthCm))
	for i, cm := range truthCm {
		depthsM[i] = cm / 100
	}
	packs, err := snowpack.Sweep(depthsM, cfg.Snowpack.Layer, cfg.Snowpack.Substrate)
	if err != nil {
		return nil, err
	}

	perturbs := []validation.Perturbation{
		{Parameter: "density +50 kg/m³", Apply: func(l snowpack.LayerParams) snowpack.LayerParams {
			l.DensityKgM3 += 50
			return l
		}},
		{Parameter: "density -50 kg/m³", Apply: func(l snowpack.LayerParams) snowpack.LayerParams {
			l.DensityKgM3 -= 50
			return l
		}},
		{Parameter: "grain +0.1 mm", Apply: func(l snowpack.LayerParams) snowpack.LayerParams {
			l.GrainRadiusM += 0.0001
			return l
		}},
		{Parameter: "grain -0.1 mm", Apply: func(l snowpack.LayerParams) snowpack.LayerParams {
			l.GrainRadiusM -= 0.0001
			return l
		}},
		{Parameter: "temperature +5 K", Apply: func(l snowpack.LayerParams) snowpack.LayerParams {
			l.TemperatureK += 5
			return l
		}},
	}

	return validation.AttributeError(ctx, runner, cfg.Sensor.Sensor, packs, obsDTB, metric, perturbs)
}

// loadObservations reads every configured source and splits the series into
// the radiometer side (spectral channels) and the in-situ side (snow depth).
func loadObservations(ctx context.Context, cfg *config.ConfigData) (radiometer, inSitu *timeseries.Series, err error) {
	var all []*timeseries.Series

	for _, ds := range cfg.Datasets {
		s, err := timeseries.Load(ds.Path, ds.Schema)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %q: %w", ds.Schema.Name, err)
		}
		all = append(all, s)
	}

	if cfg.Database != nil {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open station database: %w", err)
		}
		defer db.Close()
		for _, q := range cfg.Database.Queries {
			s, err := timeseries.LoadSQL(ctx, db, q)
			if err != nil {
				return nil, nil, err
			}
			all = append(all, s)
		}
	}

	for _, s := range all {
		switch {
		case s.HasField(fieldTBLow) && s.HasField(fieldTBHigh):
			if radiometer != nil {
				return nil, nil, fmt.Errorf("multiple radiometer sources (%s, %s)", radiometer.Name(), s.Name())
			}
			radiometer = prepareRadiometer(s, cfg.Sensor)
		case s.HasField(fieldDepth):
			if inSitu != nil {
				return nil, nil, fmt.Errorf("multiple in-situ sources (%s, %s)", inSitu.Name(), s.Name())
			}
			inSitu = s
		default:
			return nil, nil, fmt.Errorf("source %q carries neither %s/%s nor %s",
				s.Name(), fieldTBLow, fieldTBHigh, fieldDepth)
		}
	}
	if radiometer == nil {
		return nil, nil, fmt.Errorf("no radiometer source configured (fields %s, %s)", fieldTBLow, fieldTBHigh)
	}
	if inSitu == nil {
		return nil, nil, fmt.Errorf("no in-situ source configured (field %s)", fieldDepth)
	}
	return radiometer, inSitu, nil
}

// prepareRadiometer drops scans outside the accepted incidence window. Scan
// angle sign conventions differ between archives, so the magnitude is what is
// compared.
func prepareRadiometer(s *timeseries.Series, sd config.SensorData) *timeseries.Series {
	if !s.HasField(fieldIncidence) {
		return s
	}
	return s.Select(func(o timeseries.Observation) bool {
		inc, ok := o.Value(fieldIncidence)
		if !ok {
			return false
		}
		a := math.Abs(inc)
		return a > sd.IncidenceMinDeg && a < sd.IncidenceMaxDeg
	})
}

// alignObservations pairs radiometer scans with in-situ readings and returns
// the paired spectral differences and depths, with missing values dropped and
// the depth record despiked.
func alignObservations(radiometer, inSitu *timeseries.Series, tol time.Duration) ([]time.Time, []float64, []float64, error) {
	tbLow, err := radiometer.Column(fieldTBLow)
	if err != nil {
		return nil, nil, nil, err
	}
	tbHigh, err := radiometer.Column(fieldTBHigh)
	if err != nil {
		return nil, nil, nil, err
	}
	depthRaw, err := inSitu.Column(fieldDepth)
	if err != nil {
		return nil, nil, nil, err
	}
	depth := timeseries.Despike(depthRaw, despikeKernel)

	var times []time.Time
	var dtb, truth []float64
	for _, p := range timeseries.Align(radiometer, inSitu, tol) {
		lo, hi, d := tbLow[p.AIndex], tbHigh[p.AIndex], depth[p.BIndex]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsNaN(d) || d <= 0 {
			continue
		}
		times = append(times, p.Time)
		dtb = append(dtb, lo-hi)
		truth = append(truth, d)
	}
	return times, dtb, truth, nil
}

// frequencyPair picks the lowest and highest sensor frequencies for the
// spectral difference.
func frequencyPair(s emission.Sensor) (lowHz, highHz float64, err error) {
	freqs := s.Frequencies()
	if len(freqs) < 2 {
		return 0, 0, fmt.Errorf("sensor needs at least two frequencies for a spectral difference, have %d", len(freqs))
	}
	lowHz, highHz = freqs[0], freqs[0]
	for _, f := range freqs[1:] {
		if f < lowHz {
			lowHz = f
		}
		if f > highHz {
			highHz = f
		}
	}
	return lowHz, highHz, nil
}
