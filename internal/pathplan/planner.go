// Package pathplan fuses lane lines and the model-predicted path into the
// trajectory polynomial handed to the lateral controller, and tracks whether
// model frames are still arriving.
//
// A Planner is driven by one control loop. It reads no clock: callers pass
// the current time, which must never decrease, on every Update.
package pathplan

import (
	"fmt"
	"time"

	"github.com/banshee-data/pathplanner/internal/curvefit"
)

// Config holds the planner parameters.
type Config struct {
	LaneWidthBreakpoints []float64     // ego speed, m/s
	LaneWidthValues      []float64     // lane width, m
	MinLaneProbSum       float64       // combined lane confidence needed to use the lines
	PathWeight           float64       // model path weight relative to the lane centre
	StaleTimeout         time.Duration // no frame for longer than this marks the output dead
}

// DefaultConfig returns the built-in planner parameters.
func DefaultConfig() Config {
	bp, w := DefaultLaneWidthTable()
	return Config{
		LaneWidthBreakpoints: bp,
		LaneWidthValues:      w,
		MinLaneProbSum:       DefaultMinLaneProbSum,
		PathWeight:           DefaultPathWeight,
		StaleTimeout:         DefaultStaleTimeout,
	}
}

// State is everything the planner exposes after an Update.
type State struct {
	Trajectory     curvefit.Poly `json:"trajectory"`
	Dead           bool          `json:"dead"`
	LastSampleTime float64       `json:"last_sample_time"` // caller time of the last accepted frame, s
	LogMonoTime    uint64        `json:"log_mono_time"`    // capture time of the last accepted frame
	Lead           LeadState     `json:"lead"`

	// Intermediate curves from the last accepted frame.
	Fusion FusionResult  `json:"fusion"`
	Left   curvefit.Poly `json:"left"`
	Right  curvefit.Poly `json:"right"`
	Path   curvefit.Poly `json:"path"`
}

// Planner owns the planner state. It is not safe for concurrent use.
type Planner struct {
	blender      *Blender
	staleTimeout float64 // seconds
	state        State
}

// NewPlanner returns a Planner with a zero trajectory that is dead until the
// first frame is accepted.
func NewPlanner(cfg Config) (*Planner, error) {
	lw, err := NewLaneWidth(cfg.LaneWidthBreakpoints, cfg.LaneWidthValues)
	if err != nil {
		return nil, err
	}
	if cfg.StaleTimeout <= 0 {
		return nil, fmt.Errorf("stale timeout must be positive, got %s", cfg.StaleTimeout)
	}
	return &Planner{
		blender: &Blender{
			LaneWidth:      lw,
			MinLaneProbSum: cfg.MinLaneProbSum,
			PathWeight:     cfg.PathWeight,
		},
		staleTimeout: cfg.StaleTimeout.Seconds(),
		state: State{
			Dead: true,
			Lead: LeadState{Dist: 0, Prob: 0, Var: 1},
		},
	}, nil
}

// Update advances the planner by one control cycle. curTime is in seconds,
// vEgo in m/s, and sample is nil when no new frame arrived.
//
// A frame whose curves cannot be fitted is rejected: the error is returned
// and the cycle is treated as if no frame had arrived.
func (p *Planner) Update(curTime, vEgo float64, sample *InputSample) error {
	if sample == nil {
		p.checkStale(curTime)
		return nil
	}

	path, err := curvefit.Fit(sample.Path.Points)
	if err != nil {
		p.checkStale(curTime)
		return fmt.Errorf("path: %w", err)
	}
	left, err := curvefit.Fit(sample.LeftLane.Points)
	if err != nil {
		p.checkStale(curTime)
		return fmt.Errorf("left lane: %w", err)
	}
	right, err := curvefit.Fit(sample.RightLane.Points)
	if err != nil {
		p.checkStale(curTime)
		return fmt.Errorf("right lane: %w", err)
	}

	res := p.blender.CalcDesiredPath(left, right, path,
		sample.LeftLane.Prob, sample.RightLane.Prob, ModelPathProb, vEgo)

	p.state.Trajectory = res.Trajectory
	p.state.Fusion = res
	p.state.Left, p.state.Right, p.state.Path = left, right, path
	p.state.Lead = LeadState{
		Dist: sample.Lead.Dist,
		Prob: sample.Lead.Prob,
		Var:  sample.Lead.Std * sample.Lead.Std,
	}
	p.state.LogMonoTime = sample.LogMonoTime
	p.state.LastSampleTime = curTime
	p.state.Dead = false
	return nil
}

// Step polls r once and runs Update with whatever it returned.
func (p *Planner) Step(curTime, vEgo float64, r Receiver) error {
	sample, ok := r.Recv()
	if !ok {
		sample = nil
	}
	return p.Update(curTime, vEgo, sample)
}

func (p *Planner) checkStale(curTime float64) {
	if curTime-p.state.LastSampleTime > p.staleTimeout {
		p.state.Dead = true
	}
}

// State returns a copy of the current state.
func (p *Planner) State() State { return p.state }

// Trajectory returns the current desired path polynomial.
func (p *Planner) Trajectory() curvefit.Poly { return p.state.Trajectory }

// Dead reports whether the trajectory is stale and must not be used.
func (p *Planner) Dead() bool { return p.state.Dead }

// Lead returns the cached lead vehicle.
func (p *Planner) Lead() LeadState { return p.state.Lead }
