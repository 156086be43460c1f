package emission

import (
	"context"
	"fmt"
	"math"

	"github.com/mjsandells/snowschool2024/internal/snowpack"
)

// Reference microstructure the extinction parameterization is anchored to:
// 36 GHz, 0.3 mm grains, 300 kg/m³.
const (
	refFrequencyGHz = 36.0
	refGrainRadiusM = 3e-4
	refDensityKgM3  = 300.0

	scatterPrefactor = 1.8 // scattering coefficient at the anchor point [1/m]
	absorbPrefactor  = 0.2 // absorption coefficient at the anchor point [1/m]

	scatterFreqExp   = 2.8
	scatterRadiusExp = 1.2
)

// extinction returns approximate dry-snow scattering and absorption
// coefficients [1/m] for one layer, following a Rayleigh-like power law in
// frequency and grain size. Shared with the runner's thin-medium check.
func extinction(freqHz float64, l snowpack.LayerParams) (ks, ka float64) {
	fRel := (freqHz / 1e9) / refFrequencyGHz
	ks = scatterPrefactor *
		math.Pow(fRel, scatterFreqExp) *
		math.Pow(l.GrainRadiusM/refGrainRadiusM, scatterRadiusExp) *
		(l.DensityKgM3 / refDensityKgM3)
	ka = absorbPrefactor * fRel * (l.DensityKgM3 / refDensityKgM3)
	return ks, ka
}

// SemiEmpiricalParams tune the built-in simulator.
type SemiEmpiricalParams struct {
	// EmissivityV and EmissivityH are the surface emissivities at the
	// analysis incidence angle.
	EmissivityV float64
	EmissivityH float64

	// Darkening scales how strongly scattering depresses the brightness
	// temperature as optical depth grows.
	Darkening float64

	// MaxAlbedo is the single-scattering albedo beyond which the closure
	// is declared non-convergent.
	MaxAlbedo float64
}

// DefaultSemiEmpiricalParams returns parameters tuned so the 18−36 GHz
// spectral difference grows near-linearly with depth and saturates around
// one meter for reference microstructure.
func DefaultSemiEmpiricalParams() SemiEmpiricalParams {
	return SemiEmpiricalParams{
		EmissivityV: 0.97,
		EmissivityH: 0.92,
		Darkening:   0.35,
		MaxAlbedo:   0.99,
	}
}

// SemiEmpirical is a saturating brightness-temperature simulator: an
// exponential approach to saturation in optical depth with frequency- and
// grain-size-dependent extinction. It is a stand-in behind the Simulator
// interface for self-contained runs and sweep regressions, not a physical
// radiative-transfer solver.
type SemiEmpirical struct {
	params SemiEmpiricalParams
}

// NewSemiEmpirical creates the built-in simulator.
func NewSemiEmpirical(params SemiEmpiricalParams) *SemiEmpirical {
	return &SemiEmpirical{params: params}
}

// Name implements Simulator.
func (m *SemiEmpirical) Name() string { return "semiempirical" }

// Simulate implements Simulator. It fails with a non-convergence error when
// the extinction-weighted single-scattering albedo exceeds MaxAlbedo, which
// happens for very coarse grains.
func (m *SemiEmpirical) Simulate(ctx context.Context, sensor Sensor, sp snowpack.Description) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	mu := math.Cos(sensor.IncidenceDeg() * math.Pi / 180)
	layers := sp.Layers()

	var dSum, tWeighted float64
	for _, l := range layers {
		dSum += l.ThicknessM
		tWeighted += l.ThicknessM * l.TemperatureK
	}
	tEff := tWeighted / dSum

	tBase := tEff
	if sub, ok := sp.Substrate(); ok {
		tBase = sub.TemperatureK
	}

	var out Result
	for _, ch := range sensor.Channels() {
		var tau, keSum, omegaWeighted float64
		for _, l := range layers {
			ks, ka := extinction(ch.FrequencyHz, l)
			ke := ks + ka
			tau += ke * l.ThicknessM / mu
			keSum += ke * l.ThicknessM
			omegaWeighted += ks * l.ThicknessM
		}
		omega := omegaWeighted / keSum
		if omega > m.params.MaxAlbedo {
			return Result{}, fmt.Errorf("scattering albedo %.4f exceeds %.2f at %s: sticky-hard-sphere closure does not converge",
				omega, m.params.MaxAlbedo, ch)
		}

		eps := m.params.EmissivityV
		if ch.Pol == PolH {
			eps = m.params.EmissivityH
		}

		att := math.Exp(-tau)
		darkening := m.params.Darkening * omega * (1 - att)
		tb := eps * (tBase*att + tEff*(1-att)) * (1 - darkening)
		out.Channels = append(out.Channels, ChannelTB{FrequencyHz: ch.FrequencyHz, Pol: ch.Pol, TBK: tb})
	}
	return out, nil
}
