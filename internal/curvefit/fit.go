package curvefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NumPoints is the number of samples in every curve handed to Fit. Sample i
// is the lateral offset at i metres ahead of the vehicle.
const NumPoints = 50

// ErrInvalidInput is returned when a sampled curve cannot be fitted.
var ErrInvalidInput = errors.New("curvefit: invalid input")

// design is the QR factorisation of the NumPoints×4 Vandermonde matrix for the
// abscissa 0..NumPoints-1. It never changes, so it is factorised once.
var design = factorizeDesign()

func factorizeDesign() *mat.QR {
	a := mat.NewDense(NumPoints, Degree+1, nil)
	for i := 0; i < NumPoints; i++ {
		x := float64(i)
		for j := 0; j <= Degree; j++ {
			a.Set(i, j, math.Pow(x, float64(Degree-j)))
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	return &qr
}

// Fit returns the cubic that minimises the unweighted sum of squared residuals
// against points sampled at x = 0, 1, ..., NumPoints-1.
func Fit(points []float64) (Poly, error) {
	if len(points) != NumPoints {
		return Poly{}, fmt.Errorf("%w: got %d points, want %d", ErrInvalidInput, len(points), NumPoints)
	}
	for i, v := range points {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Poly{}, fmt.Errorf("%w: point %d is not finite", ErrInvalidInput, i)
		}
	}

	b := mat.NewVecDense(NumPoints, append([]float64(nil), points...))
	var c mat.VecDense
	if err := design.SolveVecTo(&c, false, b); err != nil {
		return Poly{}, fmt.Errorf("least squares solve failed: %w", err)
	}

	var p Poly
	for i := range p {
		p[i] = c.AtVec(i)
	}
	return p, nil
}

// MustFit is like Fit but panics on error. Intended for fixtures.
func MustFit(points []float64) Poly {
	p, err := Fit(points)
	if err != nil {
		panic(err)
	}
	return p
}
