package snowpack

import (
	"errors"
	"math"
	"testing"
)

func TestBuildRoundTrip(t *testing.T) {
	layers := []LayerParams{{
		ThicknessM:   1.0,
		DensityKgM3:  300,
		GrainRadiusM: 0.0003,
		TemperatureK: 260,
		Stickiness:   0.15,
	}}
	sub := &Substrate{TemperatureK: 270, PermittivityReal: 3.5, PermittivityImag: 0.1}

	d, err := Build(layers, sub)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if d.NumLayers() != 1 {
		t.Fatalf("expected 1 layer, got %d", d.NumLayers())
	}
	got := d.Layer(0)
	if got != layers[0] {
		t.Errorf("layer round-trip changed parameters: %+v != %+v", got, layers[0])
	}
	if d.TotalDepth() != 1.0 {
		t.Errorf("expected total depth 1.0, got %v", d.TotalDepth())
	}
	if math.Abs(d.SWE()-300.0) > 1e-12 {
		t.Errorf("expected SWE 300 mm, got %v", d.SWE())
	}
	s, ok := d.Substrate()
	if !ok || s.TemperatureK != 270 {
		t.Errorf("substrate not preserved: %+v ok=%v", s, ok)
	}

	// Mutating the input after Build must not affect the description.
	layers[0].DensityKgM3 = 500
	if d.Layer(0).DensityKgM3 != 300 {
		t.Error("description shares storage with caller slice")
	}
}

func TestBuildValidation(t *testing.T) {
	valid := LayerParams{ThicknessM: 0.5, DensityKgM3: 300, GrainRadiusM: 0.0003, TemperatureK: 260, Stickiness: 0.1}

	tests := []struct {
		name   string
		mutate func(*LayerParams)
		field  string
	}{
		{"zero thickness", func(l *LayerParams) { l.ThicknessM = 0 }, "thickness"},
		{"negative thickness", func(l *LayerParams) { l.ThicknessM = -0.1 }, "thickness"},
		{"zero density", func(l *LayerParams) { l.DensityKgM3 = 0 }, "density"},
		{"density above ice", func(l *LayerParams) { l.DensityKgM3 = 950 }, "density"},
		{"zero radius", func(l *LayerParams) { l.GrainRadiusM = 0 }, "grain radius"},
		{"zero temperature", func(l *LayerParams) { l.TemperatureK = 0 }, "temperature"},
		{"negative stickiness", func(l *LayerParams) { l.Stickiness = -0.01 }, "stickiness"},
		{"stickiness above bound", func(l *LayerParams) { l.Stickiness = 0.6 }, "stickiness"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid
			tt.mutate(&l)
			_, err := Build([]LayerParams{l}, nil)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if verr.Layer != 0 {
				t.Errorf("expected layer 0, got %d", verr.Layer)
			}
		})
	}

	// Density exactly at the ice density is allowed.
	l := valid
	l.DensityKgM3 = DensityIce
	if _, err := Build([]LayerParams{l}, nil); err != nil {
		t.Errorf("density %v should be valid: %v", DensityIce, err)
	}
}

func TestBuildColumnsLengthMismatch(t *testing.T) {
	_, err := BuildColumns(
		[]float64{0.1, 0.2},
		[]float64{300, 310},
		[]float64{0.0003}, // short
		[]float64{260, 261},
		[]float64{0.1, 0.1},
		nil,
	)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "radius" {
		t.Errorf("expected mismatch reported for radius, got %q", verr.Field)
	}
}

func TestSweep(t *testing.T) {
	fixed := LayerParams{DensityKgM3: 300, GrainRadiusM: 0.0003, TemperatureK: 260, Stickiness: 0.15}

	var depths []float64
	for d := 0.1; d <= 3.4+1e-9; d += 0.1 {
		depths = append(depths, d)
	}

	descs, err := Sweep(depths, fixed, nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(descs) != len(depths) {
		t.Fatalf("expected %d descriptions, got %d", len(depths), len(descs))
	}
	for i, d := range descs {
		if d.NumLayers() != 1 {
			t.Fatalf("sweep element %d has %d layers", i, d.NumLayers())
		}
		if math.Abs(d.TotalDepth()-depths[i]) > 1e-12 {
			t.Errorf("element %d: depth %v, expected %v", i, d.TotalDepth(), depths[i])
		}
		if d.Layer(0).DensityKgM3 != fixed.DensityKgM3 {
			t.Errorf("element %d: density changed", i)
		}
	}

	if _, err := Sweep([]float64{0.1, -0.5}, fixed, nil); err == nil {
		t.Error("expected error for non-positive depth in sweep")
	}
}
