package curvefit

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-6)

func TestFitRecoversExactPolynomials(t *testing.T) {
	tests := []struct {
		name string
		want Poly
	}{
		{"zero", Poly{}},
		{"constant", Poly{0, 0, 0, 5}},
		{"linear", Poly{0, 0, 2, 1}},
		{"quadratic", Poly{0, 0.01, -0.3, 0.5}},
		{"cubic", Poly{1e-4, -2e-3, 0.05, -1.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fit(tt.want.Sample())
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Fit() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFitIsDeterministic(t *testing.T) {
	points := make([]float64, NumPoints)
	for i := range points {
		x := float64(i)
		points[i] = 0.3*math.Sin(x/7) + 0.001*x*x
	}

	first, err := Fit(points)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Fit(points)
		if err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		if again != first {
			t.Fatalf("Fit() not deterministic: %v != %v", again, first)
		}
	}
}

func TestFitDoesNotModifyInput(t *testing.T) {
	points := Poly{0, 0, 1, 0}.Sample()
	orig := append([]float64(nil), points...)
	if _, err := Fit(points); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if diff := cmp.Diff(orig, points); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

func TestFitLeastSquaresOfNoisyLine(t *testing.T) {
	// Alternating +/-0.1 noise around y = x has no cubic component worth
	// speaking of; the fitted line must stay close to the truth.
	points := make([]float64, NumPoints)
	for i := range points {
		points[i] = float64(i)
		if i%2 == 0 {
			points[i] += 0.1
		} else {
			points[i] -= 0.1
		}
	}
	got, err := Fit(points)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	for x := 0.0; x < NumPoints; x++ {
		if d := math.Abs(got.Eval(x) - x); d > 0.1 {
			t.Errorf("fit at x=%v deviates by %v", x, d)
		}
	}
}

func TestFitRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 49, 51, 100} {
		_, err := Fit(make([]float64, n))
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Fit(len=%d) error = %v, want ErrInvalidInput", n, err)
		}
	}
	if _, err := Fit(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Fit(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestFitRejectsNonFinite(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		points := make([]float64, NumPoints)
		points[17] = bad
		if _, err := Fit(points); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Fit(%v) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestMustFitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustFit did not panic on short input")
		}
	}()
	MustFit([]float64{1, 2, 3})
}

func TestPolyArithmetic(t *testing.T) {
	p := Poly{1, 2, 3, 4}
	q := Poly{0.5, 0.5, 0.5, 0.5}

	if got, want := p.Add(q), (Poly{1.5, 2.5, 3.5, 4.5}); got != want {
		t.Errorf("Add() = %v, want %v", got, want)
	}
	if got, want := p.Sub(q), (Poly{0.5, 1.5, 2.5, 3.5}); got != want {
		t.Errorf("Sub() = %v, want %v", got, want)
	}
	if got, want := p.Scale(2), (Poly{2, 4, 6, 8}); got != want {
		t.Errorf("Scale() = %v, want %v", got, want)
	}
	if p != (Poly{1, 2, 3, 4}) {
		t.Errorf("receiver mutated: %v", p)
	}
	if got := p.Eval(2); got != 8+8+6+4 {
		t.Errorf("Eval(2) = %v, want 26", got)
	}
	if !(Poly{}).IsZero() || p.IsZero() {
		t.Error("IsZero() wrong")
	}
	if got := Offset(-1.5); got != (Poly{0, 0, 0, -1.5}) {
		t.Errorf("Offset() = %v", got)
	}
	if n := len(p.Sample()); n != NumPoints {
		t.Errorf("Sample() len = %d, want %d", n, NumPoints)
	}
}
