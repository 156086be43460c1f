package retrieval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitPolynomial fits ys = c0 + c1*x + ... + cd*x^d by least squares over the
// whole domain and returns the coefficients in ascending-power order along
// with R². Used when a linear law leaves structured residuals, e.g. a
// density retrieval with a curved response.
func FitPolynomial(xs, ys []float64, degree int) ([]float64, float64, error) {
	if len(xs) != len(ys) {
		return nil, 0, fmt.Errorf("fit: %d x values for %d y values", len(xs), len(ys))
	}
	if degree < 1 {
		return nil, 0, fmt.Errorf("fit: degree %d, must be >= 1", degree)
	}
	n := len(xs)
	if n < degree+1 {
		return nil, 0, &InsufficientDataError{Need: degree + 1, Got: n}
	}

	// Vandermonde design matrix, solved by QR.
	X := mat.NewDense(n, degree+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= degree; j++ {
			X.Set(i, j, math.Pow(xs[i], float64(j)))
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), ys...))

	var qr mat.QR
	qr.Factorize(X)
	coeffVec := mat.NewVecDense(degree+1, nil)
	if err := qr.SolveVecTo(coeffVec, false, y); err != nil {
		return nil, 0, fmt.Errorf("polynomial fit: %w", err)
	}

	coeffs := make([]float64, degree+1)
	for i := range coeffs {
		coeffs[i] = coeffVec.AtVec(i)
	}

	var ssTot, ssRes, meanY float64
	for _, v := range ys {
		meanY += v
	}
	meanY /= float64(n)
	for i := range ys {
		pred := 0.0
		for j, c := range coeffs {
			pred += c * math.Pow(xs[i], float64(j))
		}
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
		ssRes += (ys[i] - pred) * (ys[i] - pred)
	}
	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return coeffs, r2, nil
}
