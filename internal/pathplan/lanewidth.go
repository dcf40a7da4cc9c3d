package pathplan

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// LaneWidth maps ego speed to an expected lane width by piecewise-linear
// interpolation over a lookup table. Speeds outside the table take the
// nearest endpoint value.
type LaneWidth struct {
	table interp.PiecewiseLinear
}

// NewLaneWidth builds a lookup from strictly increasing speed breakpoints
// (m/s) and the lane widths (m) at those speeds.
func NewLaneWidth(breakpoints, widths []float64) (*LaneWidth, error) {
	if len(breakpoints) != len(widths) {
		return nil, fmt.Errorf("lane width table: %d breakpoints but %d widths", len(breakpoints), len(widths))
	}
	if len(breakpoints) < 2 {
		return nil, fmt.Errorf("lane width table: need at least 2 entries, got %d", len(breakpoints))
	}
	for i := 1; i < len(breakpoints); i++ {
		if breakpoints[i] <= breakpoints[i-1] {
			return nil, fmt.Errorf("lane width table: breakpoints must be strictly increasing, got %v", breakpoints)
		}
	}
	lw := &LaneWidth{}
	if err := lw.table.Fit(breakpoints, widths); err != nil {
		return nil, fmt.Errorf("lane width table: %w", err)
	}
	return lw, nil
}

// DefaultLaneWidthTable is 3.0 m at standstill widening to 3.8 m at 31 m/s.
func DefaultLaneWidthTable() (breakpoints, widths []float64) {
	return []float64{0, 31}, []float64{3.0, 3.8}
}

// DefaultLaneWidth is the lookup over DefaultLaneWidthTable.
func DefaultLaneWidth() *LaneWidth {
	lw, err := NewLaneWidth(DefaultLaneWidthTable())
	if err != nil {
		panic(err)
	}
	return lw
}

// At returns the full lane width at the given ego speed.
func (lw *LaneWidth) At(speed float64) float64 {
	return lw.table.Predict(speed)
}

// HalfAt returns half the lane width at the given ego speed.
func (lw *LaneWidth) HalfAt(speed float64) float64 {
	return lw.At(speed) / 2
}
