package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mjsandells/snowschool2024/internal/emission"
	"github.com/mjsandells/snowschool2024/internal/retrieval"
	"github.com/mjsandells/snowschool2024/internal/snowpack"
	"github.com/mjsandells/snowschool2024/internal/timeseries"
)

// YAMLProvider implements Provider for YAML configuration files.
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider.
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{filename: filename}
}

// YAML-tagged structures mirroring the file layout. Values here are in the
// units a field scientist writes (GHz, human-readable durations); conversion
// to SI happens once, in LoadConfig.
type sensorYAML struct {
	FrequenciesGHz  []float64 `yaml:"frequencies_ghz"`
	IncidenceDeg    float64   `yaml:"incidence_deg"`
	Polarizations   []string  `yaml:"polarizations"`
	IncidenceMinDeg float64   `yaml:"incidence_min_deg"`
	IncidenceMaxDeg float64   `yaml:"incidence_max_deg"`
}

type fieldYAML struct {
	Var      string  `yaml:"var"`
	Scale    float64 `yaml:"scale,omitempty"`
	Offset   float64 `yaml:"offset,omitempty"`
	Required bool    `yaml:"required,omitempty"`
}

type datasetYAML struct {
	Name      string               `yaml:"name"`
	Path      string               `yaml:"path"`
	TimeVar   string               `yaml:"time_var"`
	TimeEpoch string               `yaml:"time_epoch"`
	TimeUnit  string               `yaml:"time_unit"`
	FillValue *float64             `yaml:"fill_value,omitempty"`
	Fields    map[string]fieldYAML `yaml:"fields"`
}

type queryYAML struct {
	Name   string      `yaml:"name"`
	Query  string      `yaml:"query"`
	Fields []fieldYAML `yaml:"fields"`
}

type databaseYAML struct {
	DSN     string      `yaml:"dsn"`
	Queries []queryYAML `yaml:"queries"`
}

type snowpackYAML struct {
	DensityKgM3  float64 `yaml:"density_kg_m3"`
	GrainRadiusM float64 `yaml:"grain_radius_m"`
	TemperatureK float64 `yaml:"temperature_k"`
	Stickiness   float64 `yaml:"stickiness,omitempty"`

	Substrate *struct {
		TemperatureK     float64 `yaml:"temperature_k"`
		PermittivityReal float64 `yaml:"permittivity_real"`
		PermittivityImag float64 `yaml:"permittivity_imag"`
	} `yaml:"substrate,omitempty"`
}

type sweepYAML struct {
	StartM float64 `yaml:"start_m"`
	EndM   float64 `yaml:"end_m"`
	StepM  float64 `yaml:"step_m"`
}

type rangeYAML struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

type configYAML struct {
	Sensor   sensorYAML           `yaml:"sensor"`
	Datasets []datasetYAML        `yaml:"datasets"`
	Database *databaseYAML        `yaml:"database,omitempty"`
	Snowpack snowpackYAML         `yaml:"snowpack"`
	Sweep    sweepYAML            `yaml:"sweep"`
	Fit      map[string]rangeYAML `yaml:"fit"`

	AlignTolerance string `yaml:"align_tolerance"`
	CachePath      string `yaml:"cache_path,omitempty"`
	ArtifactsDB    string `yaml:"artifacts_db"`
	Workers        int    `yaml:"workers,omitempty"`
}

// LoadConfig loads and validates the complete configuration from the YAML
// file, converting all values to SI.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var raw configYAML
	if err := yaml.Unmarshal(cfgFile, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", y.filename, err)
	}

	cfg := &ConfigData{
		Fit:       make(map[string]retrieval.Range, len(raw.Fit)),
		Simulator: emission.DefaultSemiEmpiricalParams(),
	}

	// Sensor: GHz in the file, Hz everywhere else.
	freqsHz := make([]float64, len(raw.Sensor.FrequenciesGHz))
	for i, g := range raw.Sensor.FrequenciesGHz {
		freqsHz[i] = g * 1e9
	}
	pols := make([]emission.Polarization, 0, len(raw.Sensor.Polarizations))
	for _, p := range raw.Sensor.Polarizations {
		switch p {
		case "V", "v":
			pols = append(pols, emission.PolV)
		case "H", "h":
			pols = append(pols, emission.PolH)
		default:
			return nil, fmt.Errorf("sensor: unknown polarization %q", p)
		}
	}
	sensor, err := emission.NewSensor(freqsHz, raw.Sensor.IncidenceDeg, pols)
	if err != nil {
		return nil, fmt.Errorf("sensor: %w", err)
	}
	cfg.Sensor = SensorData{
		Sensor:          sensor,
		IncidenceMinDeg: raw.Sensor.IncidenceMinDeg,
		IncidenceMaxDeg: raw.Sensor.IncidenceMaxDeg,
	}
	if cfg.Sensor.IncidenceMinDeg == 0 && cfg.Sensor.IncidenceMaxDeg == 0 {
		cfg.Sensor.IncidenceMinDeg = 45
		cfg.Sensor.IncidenceMaxDeg = 55
	}

	for _, d := range raw.Datasets {
		ds, err := convertDataset(d)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", d.Name, err)
		}
		cfg.Datasets = append(cfg.Datasets, ds)
	}

	if raw.Database != nil {
		db := &DatabaseData{DSN: raw.Database.DSN}
		for _, q := range raw.Database.Queries {
			sq := timeseries.SQLQuery{Name: q.Name, Query: q.Query}
			for _, f := range q.Fields {
				sq.Fields = append(sq.Fields, timeseries.FieldSpec{
					Var: f.Var, Scale: f.Scale, Offset: f.Offset, Required: f.Required,
				})
			}
			db.Queries = append(db.Queries, sq)
		}
		cfg.Database = db
	}

	cfg.Snowpack = SnowpackData{Layer: snowpack.LayerParams{
		DensityKgM3:  raw.Snowpack.DensityKgM3,
		GrainRadiusM: raw.Snowpack.GrainRadiusM,
		TemperatureK: raw.Snowpack.TemperatureK,
		Stickiness:   raw.Snowpack.Stickiness,
	}}
	if sub := raw.Snowpack.Substrate; sub != nil {
		cfg.Snowpack.Substrate = &snowpack.Substrate{
			TemperatureK:     sub.TemperatureK,
			PermittivityReal: sub.PermittivityReal,
			PermittivityImag: sub.PermittivityImag,
		}
	}

	cfg.Sweep = SweepData(raw.Sweep)
	if cfg.Sweep.StepM <= 0 {
		return nil, fmt.Errorf("sweep: step_m must be positive, got %v", cfg.Sweep.StepM)
	}
	if cfg.Sweep.EndM < cfg.Sweep.StartM {
		return nil, fmt.Errorf("sweep: end_m %v before start_m %v", cfg.Sweep.EndM, cfg.Sweep.StartM)
	}

	for name, r := range raw.Fit {
		cfg.Fit[name] = retrieval.Range{Start: r.Start, End: r.End}
	}

	if raw.AlignTolerance != "" {
		tol, err := time.ParseDuration(raw.AlignTolerance)
		if err != nil {
			return nil, fmt.Errorf("align_tolerance: %w", err)
		}
		cfg.AlignTolerance = tol
	} else {
		cfg.AlignTolerance = 30 * time.Minute
	}

	cfg.CachePath = raw.CachePath
	cfg.ArtifactsDB = raw.ArtifactsDB
	cfg.Workers = raw.Workers

	y.config = cfg
	return cfg, nil
}

func convertDataset(d datasetYAML) (DatasetData, error) {
	if d.Path == "" {
		return DatasetData{}, fmt.Errorf("missing path")
	}
	epoch, err := time.Parse(time.RFC3339, d.TimeEpoch)
	if err != nil {
		return DatasetData{}, fmt.Errorf("time_epoch: %w", err)
	}
	unit, err := time.ParseDuration(d.TimeUnit)
	if err != nil {
		return DatasetData{}, fmt.Errorf("time_unit: %w", err)
	}
	schema := timeseries.Schema{
		Name:      d.Name,
		TimeVar:   d.TimeVar,
		TimeEpoch: epoch,
		TimeUnit:  unit,
		Fields:    make(map[string]timeseries.FieldSpec, len(d.Fields)),
	}
	if d.FillValue != nil {
		schema.FillValue = *d.FillValue
		schema.HasFill = true
	}
	for name, f := range d.Fields {
		if f.Var == "" {
			return DatasetData{}, fmt.Errorf("field %q: missing var", name)
		}
		schema.Fields[name] = timeseries.FieldSpec{
			Var: f.Var, Scale: f.Scale, Offset: f.Offset, Required: f.Required,
		}
	}
	return DatasetData{Path: d.Path, Schema: schema}, nil
}

// IsReadOnly returns true; YAML files are not modified by the tool.
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML providers.
func (y *YAMLProvider) Close() error {
	return nil
}
