package retrieval

// The historical Chang-style retrieval publishes two linear laws against the
// 18−36 GHz spectral difference: one for SWE in millimeters and one for
// depth in centimeters. The two laws are only mutually consistent for a
// single bulk density, which this algebra recovers.

// DensityFromLaws returns the bulk snow density (kg/m³) implied by a SWE law
// coefficient (mm of water per Kelvin), a depth law coefficient (cm of snow
// per Kelvin), and the density of liquid water. SWE[mm] = depth[cm]·10·ρ/ρw,
// so ρ = cSWE·ρw / (cDepth·10).
func DensityFromLaws(sweCoeffMMPerK, depthCoeffCMPerK, waterDensityKgM3 float64) float64 {
	return sweCoeffMMPerK * waterDensityKgM3 / (depthCoeffCMPerK * 10)
}

// SWEFromDepthLaw converts a depth-law coefficient (cm/K) into the SWE-law
// coefficient (mm/K) for the given bulk density.
func SWEFromDepthLaw(depthCoeffCMPerK, densityKgM3, waterDensityKgM3 float64) float64 {
	return depthCoeffCMPerK * 10 * densityKgM3 / waterDensityKgM3
}
