// Package emission provides a uniform interface to microwave emission
// simulators and a batch runner that drives them over many snowpack
// descriptions at once. The simulator itself is a capability: anything that
// can map a sensor configuration and a snowpack description to per-channel
// brightness temperatures plugs in behind the Simulator interface.
package emission

import (
	"fmt"
	"sort"
)

// Polarization of a radiometer channel.
type Polarization string

const (
	PolV Polarization = "V"
	PolH Polarization = "H"
)

// Channel identifies one radiometer channel.
type Channel struct {
	FrequencyHz float64
	Pol         Polarization
}

func (c Channel) String() string {
	return fmt.Sprintf("%.1fGHz-%s", c.FrequencyHz/1e9, c.Pol)
}

// Sensor is an immutable passive-radiometer configuration: an ordered set of
// frequencies observed at a single incidence angle in one or more
// polarizations. Frequencies are in Hz, never GHz.
type Sensor struct {
	frequencies  []float64
	incidenceDeg float64
	pols         []Polarization
}

// NewSensor validates and constructs a sensor configuration.
func NewSensor(frequenciesHz []float64, incidenceDeg float64, pols []Polarization) (Sensor, error) {
	if len(frequenciesHz) == 0 {
		return Sensor{}, fmt.Errorf("sensor: no frequencies")
	}
	for i, f := range frequenciesHz {
		if f <= 0 {
			return Sensor{}, fmt.Errorf("sensor: frequency %d is %.4g Hz, must be > 0", i, f)
		}
		// A sub-MHz "frequency" is almost certainly a GHz value that
		// missed unit normalization at load time.
		if f < 1e6 {
			return Sensor{}, fmt.Errorf("sensor: frequency %d is %.4g Hz, looks like an unconverted GHz value", i, f)
		}
	}
	if incidenceDeg < 0 || incidenceDeg >= 90 {
		return Sensor{}, fmt.Errorf("sensor: incidence angle %.4g°, must be in [0, 90)", incidenceDeg)
	}
	if len(pols) == 0 {
		pols = []Polarization{PolV}
	}
	return Sensor{
		frequencies:  append([]float64(nil), frequenciesHz...),
		incidenceDeg: incidenceDeg,
		pols:         append([]Polarization(nil), pols...),
	}, nil
}

// Frequencies returns a copy of the ordered frequency set in Hz.
func (s Sensor) Frequencies() []float64 {
	return append([]float64(nil), s.frequencies...)
}

// IncidenceDeg returns the incidence angle in degrees.
func (s Sensor) IncidenceDeg() float64 { return s.incidenceDeg }

// Polarizations returns a copy of the polarization modes.
func (s Sensor) Polarizations() []Polarization {
	return append([]Polarization(nil), s.pols...)
}

// Channels expands the configuration into its ordered channel list:
// frequencies in input order, polarizations within each frequency.
func (s Sensor) Channels() []Channel {
	chans := make([]Channel, 0, len(s.frequencies)*len(s.pols))
	for _, f := range s.frequencies {
		for _, p := range s.pols {
			chans = append(chans, Channel{FrequencyHz: f, Pol: p})
		}
	}
	return chans
}

// key returns a stable identity string for cache hashing.
func (s Sensor) key() string {
	pols := append([]Polarization(nil), s.pols...)
	sort.Slice(pols, func(i, j int) bool { return pols[i] < pols[j] })
	return fmt.Sprintf("%v|%.6f|%v", s.frequencies, s.incidenceDeg, pols)
}
