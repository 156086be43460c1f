package timeseries

import (
	"fmt"
	"math"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// FieldSpec maps one canonical field name to the variable that carries it in
// a particular dataset, together with the linear unit conversion applied at
// load time (canonical = source*Scale + Offset). Variable naming is
// inconsistent across field datasets, so the mapping is resolved here, once;
// raw variable names are never referenced downstream.
type FieldSpec struct {
	Var      string
	Scale    float64 // 0 means 1
	Offset   float64
	Required bool
}

// Schema declares the variables an analysis run needs from a dataset and how
// to decode its time axis.
type Schema struct {
	Name string

	// TimeVar is the time coordinate variable. Its values are interpreted
	// as TimeEpoch + value*TimeUnit.
	TimeVar   string
	TimeEpoch time.Time
	TimeUnit  time.Duration

	// FillValue in a source variable is mapped to NaN when HasFill is
	// set. Source NaNs are kept as NaN regardless.
	FillValue float64
	HasFill   bool

	Fields map[string]FieldSpec
}

// Load reads a NetCDF dataset into a Series according to the schema. It
// returns a *FormatError when a required variable is absent, a column length
// disagrees with the time axis, or the time axis cannot be decoded. Optional
// fields that are absent are simply omitted from the series.
func Load(path string, schema Schema) (*Series, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, &FormatError{Source: path, Reason: err.Error()}
	}
	defer nc.Close()
	return loadGroup(nc, path, schema)
}

func loadGroup(nc api.Group, path string, schema Schema) (*Series, error) {
	ticks, err := varFloats(nc, schema.TimeVar)
	if err != nil {
		return nil, &FormatError{Source: path,
			Reason: fmt.Sprintf("time variable %q: %v", schema.TimeVar, err)}
	}
	times := make([]time.Time, len(ticks))
	for i, tk := range ticks {
		times[i] = schema.TimeEpoch.Add(time.Duration(tk * float64(schema.TimeUnit)))
	}

	fields := make(map[string][]float64, len(schema.Fields))
	for name, spec := range schema.Fields {
		raw, err := varFloats(nc, spec.Var)
		if err != nil {
			if spec.Required {
				return nil, &FormatError{Source: path,
					Reason: fmt.Sprintf("required variable %q (field %q): %v", spec.Var, name, err)}
			}
			continue
		}
		if len(raw) != len(times) {
			return nil, &FormatError{Source: path,
				Reason: fmt.Sprintf("variable %q has %d values for %d timestamps", spec.Var, len(raw), len(times))}
		}
		scale := spec.Scale
		if scale == 0 {
			scale = 1
		}
		col := make([]float64, len(raw))
		for i, v := range raw {
			if math.IsNaN(v) || (schema.HasFill && v == schema.FillValue) {
				col[i] = math.NaN()
				continue
			}
			col[i] = v*scale + spec.Offset
		}
		fields[name] = col
	}

	s, err := New(schema.Name, times, fields)
	if err != nil {
		return nil, err
	}
	s.name = path
	if schema.Name != "" {
		s.name = schema.Name
	}
	return s, nil
}

// varFloats reads a 1-D variable of any numeric type as float64.
func varFloats(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	switch vals := v.(type) {
	case []float64:
		return append([]float64(nil), vals...), nil
	case []float32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("variable %q is not a 1-D numeric array (%T)", name, v)
	}
}
