// Package config loads the analysis configuration that drives a calibration
// run: which datasets to read and how to decode them, the sensor geometry,
// the reference snowpack, and where artifacts go. Unit conversions (GHz to
// Hz, per-field scale/offset) happen here, at the configuration boundary;
// everything downstream works in SI.
package config

import (
	"time"

	"github.com/mjsandells/snowschool2024/internal/emission"
	"github.com/mjsandells/snowschool2024/internal/retrieval"
	"github.com/mjsandells/snowschool2024/internal/snowpack"
	"github.com/mjsandells/snowschool2024/internal/timeseries"
)

// Provider defines the interface for configuration data sources.
type Provider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData is the complete, validated configuration with all unit
// conversions already applied.
type ConfigData struct {
	Sensor   SensorData
	Datasets []DatasetData
	Database *DatabaseData

	Snowpack  SnowpackData
	Sweep     SweepData
	Fit       map[string]retrieval.Range
	Simulator emission.SemiEmpiricalParams

	// AlignTolerance bounds the timestamp mismatch accepted when pairing
	// observations across datasets.
	AlignTolerance time.Duration

	CachePath   string // empty disables the forward-model result cache
	ArtifactsDB string
	Workers     int
}

// SensorData holds the radiometer geometry. Frequencies are in Hz (converted
// from the GHz the file declares) and the incidence window brackets the
// scan angles accepted from observation datasets.
type SensorData struct {
	Sensor          emission.Sensor
	IncidenceMinDeg float64
	IncidenceMaxDeg float64
}

// DatasetData names one file-backed observation source and its decode schema.
type DatasetData struct {
	Path   string
	Schema timeseries.Schema
}

// DatabaseData holds the station database source, for deployments where
// observations live in TimescaleDB rather than files.
type DatabaseData struct {
	DSN     string
	Queries []timeseries.SQLQuery
}

// SnowpackData holds the reference layer and optional substrate used for
// forward-model sweeps.
type SnowpackData struct {
	Layer     snowpack.LayerParams
	Substrate *snowpack.Substrate
}

// SweepData describes the depth axis of the calibration sweep, in meters.
type SweepData struct {
	StartM float64
	EndM   float64
	StepM  float64
}

// Depths expands the sweep axis into explicit depth values.
func (s SweepData) Depths() []float64 {
	var out []float64
	for d := s.StartM; d <= s.EndM+1e-9; d += s.StepM {
		out = append(out, d)
	}
	return out
}
