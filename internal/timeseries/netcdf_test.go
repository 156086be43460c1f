package timeseries

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
)

// writeDataset builds a small NetCDF file with an hourly time axis, a depth
// record in centimeters with one fill value, and a float32 brightness
// temperature column.
func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tower.nc")

	cw, err := cdf.OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	vars := []struct {
		name string
		v    api.Variable
	}{
		{"time", api.Variable{Values: []float64{0, 1, 2}, Dimensions: []string{"time"}}},
		{"snow_depth_cm", api.Variable{Values: []float64{10, -9999, 30}, Dimensions: []string{"time"}}},
		{"tb_36v_k", api.Variable{Values: []float32{240.5, 241, 242}, Dimensions: []string{"time"}}},
		{"station_id", api.Variable{Values: []float64{7, 7}, Dimensions: []string{"station"}}},
	}
	for _, v := range vars {
		if err := cw.AddVar(v.name, v.v); err != nil {
			t.Fatalf("AddVar %s: %v", v.name, err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestLoadAppliesSchemaOnce(t *testing.T) {
	path := writeDataset(t)
	epoch := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	s, err := Load(path, Schema{
		Name:      "tower",
		TimeVar:   "time",
		TimeEpoch: epoch,
		TimeUnit:  time.Hour,
		FillValue: -9999,
		HasFill:   true,
		Fields: map[string]FieldSpec{
			"depth_m": {Var: "snow_depth_cm", Scale: 0.01, Required: true},
			"temp_k":  {Var: "air_temp_c", Offset: 273.15}, // optional, absent
			"tb_k":    {Var: "tb_36v_k", Required: true},   // float32 source
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", s.Len())
	}
	times := s.Times()
	for i, want := range []time.Time{epoch, epoch.Add(time.Hour), epoch.Add(2 * time.Hour)} {
		if !times[i].Equal(want) {
			t.Errorf("timestamp %d: %v, expected %v", i, times[i], want)
		}
	}

	// cm converted to m exactly once, fill mapped to NaN.
	depth, err := s.Column("depth_m")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if math.Abs(depth[0]-0.10) > 1e-12 || math.Abs(depth[2]-0.30) > 1e-12 {
		t.Errorf("scale not applied at load: %v", depth)
	}
	if !math.IsNaN(depth[1]) {
		t.Errorf("fill value should load as missing, got %v", depth[1])
	}

	// float32 sources widen to float64, unconverted.
	tb, err := s.Column("tb_k")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if math.Abs(tb[0]-240.5) > 1e-6 {
		t.Errorf("tb[0]=%v, expected 240.5", tb[0])
	}

	// Absent optional fields are omitted, not zero-filled.
	if s.HasField("temp_k") {
		t.Error("absent optional field should be omitted from the series")
	}
}

func TestLoadZeroFillValue(t *testing.T) {
	path := writeDataset(t)

	// A declared fill value of exactly 0 must still map 0 to missing. The
	// time variable doubles as a data column here because it starts at 0.
	s, err := Load(path, Schema{
		TimeVar:   "time",
		TimeEpoch: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		TimeUnit:  time.Hour,
		FillValue: 0,
		HasFill:   true,
		Fields: map[string]FieldSpec{
			"t_h": {Var: "time", Required: true},
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	col, err := s.Column("t_h")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if !math.IsNaN(col[0]) {
		t.Errorf("zero fill value not honored: got %v", col[0])
	}
	if col[1] != 1 || col[2] != 2 {
		t.Errorf("non-fill values changed: %v", col)
	}
}

func TestLoadFormatErrors(t *testing.T) {
	path := writeDataset(t)
	base := Schema{
		TimeVar:   "time",
		TimeEpoch: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		TimeUnit:  time.Hour,
	}

	tests := []struct {
		name   string
		fields map[string]FieldSpec
		mutate func(*Schema)
	}{
		{
			name:   "missing required variable",
			fields: map[string]FieldSpec{"swe_mm": {Var: "swe_mm", Required: true}},
		},
		{
			name:   "column length disagrees with time axis",
			fields: map[string]FieldSpec{"station": {Var: "station_id", Required: true}},
		},
		{
			name:   "undecodable time axis",
			fields: map[string]FieldSpec{"depth_m": {Var: "snow_depth_cm"}},
			mutate: func(s *Schema) { s.TimeVar = "no_such_time" },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			schema := base
			schema.Fields = tc.fields
			if tc.mutate != nil {
				tc.mutate(&schema)
			}
			_, err := Load(path, schema)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %v", err)
			}
		})
	}
}
