// Package snowpack constructs validated, immutable layer-stack descriptions
// of a snow medium for consumption by an emission simulator. Construction is
// pure: a Description never changes after Build returns, so descriptions can
// be fanned out across simulation workers without copying or locking.
//
// All quantities are SI: thickness in meters, density in kg/m³, grain radius
// in meters, temperature in Kelvin. There are no exceptions.
package snowpack

import (
	"fmt"
)

// DensityIce is the density of pure ice, the upper bound for snow density.
const DensityIce = 917.0 // kg/m³

// DensityWater is the density of liquid water, used when converting between
// snow depth and water equivalent.
const DensityWater = 1000.0 // kg/m³

// MaxStickiness bounds the sticky-hard-sphere microstructure parameter.
const MaxStickiness = 0.5

// LayerParams holds the physical parameters of one snowpack layer.
type LayerParams struct {
	ThicknessM   float64 // > 0
	DensityKgM3  float64 // (0, DensityIce]
	GrainRadiusM float64 // > 0
	TemperatureK float64 // > 0
	Stickiness   float64 // [0, MaxStickiness]
}

// Substrate describes the half-space under the snowpack.
type Substrate struct {
	TemperatureK     float64
	PermittivityReal float64
	PermittivityImag float64
}

// ValidationError reports an invalid layer parameter. It is fatal for the
// construction call that produced it but carries enough context that a batch
// of independent constructions can keep going.
type ValidationError struct {
	Layer  int // top-to-bottom layer index, -1 when not layer-specific
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Layer < 0 {
		return fmt.Sprintf("invalid snowpack: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid snowpack layer %d: %s: %s", e.Layer, e.Field, e.Reason)
}

// Description is an immutable ordered stack of layers, numbered
// top-to-bottom, with an optional substrate.
type Description struct {
	layers    []LayerParams
	substrate *Substrate
}

// Build validates the layer parameters and constructs a Description.
func Build(layers []LayerParams, sub *Substrate) (Description, error) {
	if len(layers) == 0 {
		return Description{}, &ValidationError{Layer: -1, Field: "layers", Reason: "no layers"}
	}
	for i, l := range layers {
		if err := validateLayer(i, l); err != nil {
			return Description{}, err
		}
	}
	d := Description{layers: append([]LayerParams(nil), layers...)}
	if sub != nil {
		s := *sub
		d.substrate = &s
	}
	return d, nil
}

// BuildColumns constructs a Description from per-layer parameter columns,
// the form in which pit profiles come out of the field datasets. All columns
// must have the same length.
func BuildColumns(thickness, density, radius, temperature, stickiness []float64, sub *Substrate) (Description, error) {
	n := len(thickness)
	for field, col := range map[string][]float64{
		"density":     density,
		"radius":      radius,
		"temperature": temperature,
		"stickiness":  stickiness,
	} {
		if len(col) != n {
			return Description{}, &ValidationError{Layer: -1, Field: field,
				Reason: fmt.Sprintf("%d values for %d layers", len(col), n)}
		}
	}
	layers := make([]LayerParams, n)
	for i := 0; i < n; i++ {
		layers[i] = LayerParams{
			ThicknessM:   thickness[i],
			DensityKgM3:  density[i],
			GrainRadiusM: radius[i],
			TemperatureK: temperature[i],
			Stickiness:   stickiness[i],
		}
	}
	return Build(layers, sub)
}

// Sweep builds one single-layer snowpack per depth value, holding the other
// layer parameters fixed. This regenerates the reference Chang-style
// monotonic depth sweep used to derive retrieval coefficients.
func Sweep(depthsM []float64, fixed LayerParams, sub *Substrate) ([]Description, error) {
	out := make([]Description, len(depthsM))
	for i, d := range depthsM {
		p := fixed
		p.ThicknessM = d
		desc, err := Build([]LayerParams{p}, sub)
		if err != nil {
			return nil, fmt.Errorf("sweep depth %d (%.3f m): %w", i, d, err)
		}
		out[i] = desc
	}
	return out, nil
}

func validateLayer(i int, l LayerParams) error {
	switch {
	case l.ThicknessM <= 0:
		return &ValidationError{Layer: i, Field: "thickness",
			Reason: fmt.Sprintf("%.4g m, must be > 0", l.ThicknessM)}
	case l.DensityKgM3 <= 0 || l.DensityKgM3 > DensityIce:
		return &ValidationError{Layer: i, Field: "density",
			Reason: fmt.Sprintf("%.4g kg/m³, must be in (0, %.0f]", l.DensityKgM3, DensityIce)}
	case l.GrainRadiusM <= 0:
		return &ValidationError{Layer: i, Field: "grain radius",
			Reason: fmt.Sprintf("%.4g m, must be > 0", l.GrainRadiusM)}
	case l.TemperatureK <= 0:
		return &ValidationError{Layer: i, Field: "temperature",
			Reason: fmt.Sprintf("%.4g K, must be > 0", l.TemperatureK)}
	case l.Stickiness < 0 || l.Stickiness > MaxStickiness:
		return &ValidationError{Layer: i, Field: "stickiness",
			Reason: fmt.Sprintf("%.4g, must be in [0, %.1f]", l.Stickiness, MaxStickiness)}
	}
	return nil
}

// NumLayers returns the number of layers, top-to-bottom.
func (d Description) NumLayers() int { return len(d.layers) }

// Layer returns a copy of the parameters of layer i (0 = top).
func (d Description) Layer(i int) LayerParams { return d.layers[i] }

// Layers returns a copy of all layer parameters, top-to-bottom.
func (d Description) Layers() []LayerParams {
	return append([]LayerParams(nil), d.layers...)
}

// Substrate returns a copy of the substrate description, if one was given.
func (d Description) Substrate() (Substrate, bool) {
	if d.substrate == nil {
		return Substrate{}, false
	}
	return *d.substrate, true
}

// TotalDepth returns the summed layer thickness in meters.
func (d Description) TotalDepth() float64 {
	var sum float64
	for _, l := range d.layers {
		sum += l.ThicknessM
	}
	return sum
}

// SWE returns the snow water equivalent of the stack in kg/m², numerically
// equal to millimeters of water.
func (d Description) SWE() float64 {
	var sum float64
	for _, l := range d.layers {
		sum += l.ThicknessM * l.DensityKgM3
	}
	return sum
}
