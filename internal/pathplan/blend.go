package pathplan

import (
	"math"
	"time"

	"github.com/banshee-data/pathplanner/internal/curvefit"
)

const (
	// ModelPathProb is the confidence assigned to the model path. The model
	// does not report one yet.
	ModelPathProb = 1.0

	// DefaultPathWeight is the weight of the model path relative to the
	// centre of the lane.
	DefaultPathWeight = 1.0

	// DefaultMinLaneProbSum is the combined lane confidence below which both
	// lane lines are ignored.
	DefaultMinLaneProbSum = 0.01

	// DefaultStaleTimeout is how long the output stays live after the last
	// accepted frame.
	DefaultStaleTimeout = 500 * time.Millisecond

	// degenerateWeight is the blend denominator below which the trajectory
	// is reported as the zero polynomial.
	degenerateWeight = 1e-12
)

// FusionResult is the outcome of blending lane lines and model path.
type FusionResult struct {
	Trajectory curvefit.Poly `json:"trajectory"`  // consumed by the controller
	CenterLane curvefit.Poly `json:"center_lane"` // centre of lane from left/right lines
	CenterProb float64       `json:"center_prob"` // confidence in CenterLane, [0,1]
}

// Blender computes the desired path from fitted lane lines and model path.
type Blender struct {
	LaneWidth      *LaneWidth
	MinLaneProbSum float64
	PathWeight     float64
}

// DefaultBlender returns a Blender with the built-in lane width table and
// weights.
func DefaultBlender() *Blender {
	return &Blender{
		LaneWidth:      DefaultLaneWidth(),
		MinLaneProbSum: DefaultMinLaneProbSum,
		PathWeight:     DefaultPathWeight,
	}
}

// CalcDesiredPath averages the left and right lines, each shifted half a lane
// towards the centre and weighted by its confidence, then blends the lane
// centre with the model path.
//
// The centre confidence is the root mean square of the two line confidences,
// so one confident line keeps the centre usable while two weak lines do not.
func (b *Blender) CalcDesiredPath(left, right, path curvefit.Poly, leftProb, rightProb, pathProb, speed float64) FusionResult {
	halfLane := curvefit.Offset(b.LaneWidth.HalfAt(speed))

	var res FusionResult
	if leftProb+rightProb > b.MinLaneProbSum {
		res.CenterLane = left.Sub(halfLane).Scale(leftProb).
			Add(right.Add(halfLane).Scale(rightProb)).
			Scale(1 / (leftProb + rightProb))
		res.CenterProb = math.Sqrt((leftProb*leftProb + rightProb*rightProb) / 2)
	}

	den := res.CenterProb + pathProb*b.PathWeight
	if math.Abs(den) < degenerateWeight {
		return res
	}
	res.Trajectory = res.CenterLane.Scale(res.CenterProb).
		Add(path.Scale(pathProb * b.PathWeight)).
		Scale(1 / den)
	return res
}

// CalcDesiredPath runs DefaultBlender().CalcDesiredPath.
func CalcDesiredPath(left, right, path curvefit.Poly, leftProb, rightProb, pathProb, speed float64) FusionResult {
	return DefaultBlender().CalcDesiredPath(left, right, path, leftProb, rightProb, pathProb, speed)
}
