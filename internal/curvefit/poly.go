// Package curvefit fits cubic polynomials to lane and path points sampled at
// fixed longitudinal positions ahead of the vehicle.
package curvefit

// Degree is the polynomial degree used for every fitted curve.
const Degree = 3

// Poly is a cubic polynomial in descending degree order:
//
//	y(x) = c[0]*x^3 + c[1]*x^2 + c[2]*x + c[3]
//
// x is the longitudinal distance in metres, y the lateral offset in metres.
type Poly [Degree + 1]float64

// Eval returns the lateral offset at longitudinal distance x.
func (p Poly) Eval(x float64) float64 {
	y := 0.0
	for _, c := range p {
		y = y*x + c
	}
	return y
}

// Add returns p + q.
func (p Poly) Add(q Poly) Poly {
	for i := range p {
		p[i] += q[i]
	}
	return p
}

// Sub returns p - q.
func (p Poly) Sub(q Poly) Poly {
	for i := range p {
		p[i] -= q[i]
	}
	return p
}

// Scale returns p multiplied by k.
func (p Poly) Scale(k float64) Poly {
	for i := range p {
		p[i] *= k
	}
	return p
}

// IsZero reports whether every coefficient is zero.
func (p Poly) IsZero() bool {
	return p == Poly{}
}

// Offset returns the constant-only polynomial y(x) = d.
func Offset(d float64) Poly {
	return Poly{0, 0, 0, d}
}

// Sample evaluates p at the fixed abscissa used for fitting.
func (p Poly) Sample() []float64 {
	ys := make([]float64, NumPoints)
	for i := range ys {
		ys[i] = p.Eval(float64(i))
	}
	return ys
}
