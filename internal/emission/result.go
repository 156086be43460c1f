package emission

import "fmt"

// ChannelTB is one simulated brightness temperature.
type ChannelTB struct {
	FrequencyHz float64      `msgpack:"f"`
	Pol         Polarization `msgpack:"p"`
	TBK         float64      `msgpack:"tb"`
}

// Result holds the simulated brightness temperatures for one snowpack
// description, one entry per sensor channel in channel order.
type Result struct {
	Channels []ChannelTB `msgpack:"channels"`
}

// TB returns the brightness temperature for the given channel.
func (r Result) TB(frequencyHz float64, pol Polarization) (float64, bool) {
	for _, c := range r.Channels {
		if c.FrequencyHz == frequencyHz && c.Pol == pol {
			return c.TBK, true
		}
	}
	return 0, false
}

// SpectralDifference returns TB(low) − TB(high) for the given polarization,
// the quantity the Chang-style retrieval is built on (e.g. 18 GHz − 36 GHz).
func (r Result) SpectralDifference(lowHz, highHz float64, pol Polarization) (float64, error) {
	low, ok := r.TB(lowHz, pol)
	if !ok {
		return 0, fmt.Errorf("no %s channel at %.4g Hz", pol, lowHz)
	}
	high, ok := r.TB(highHz, pol)
	if !ok {
		return 0, fmt.Errorf("no %s channel at %.4g Hz", pol, highHz)
	}
	return low - high, nil
}
