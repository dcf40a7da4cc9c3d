package pathplan

// Curve is one perception output: lateral offsets sampled at 0..49 m ahead
// plus the detector's confidence in them.
type Curve struct {
	Points []float64 `json:"points"`
	Prob   float64   `json:"prob"`
}

// LeadInput is the lead vehicle as reported by the model.
type LeadInput struct {
	Dist float64 `json:"dist"` // m
	Prob float64 `json:"prob"`
	Std  float64 `json:"std"` // m
}

// InputSample is one model frame. Path.Prob is ignored; see ModelPathProb.
type InputSample struct {
	LogMonoTime uint64    `json:"log_mono_time"` // capture time, ns
	Path        Curve     `json:"path"`
	LeftLane    Curve     `json:"left_lane"`
	RightLane   Curve     `json:"right_lane"`
	Lead        LeadInput `json:"lead"`
}

// LeadState is the cached lead vehicle passthrough.
type LeadState struct {
	Dist float64 `json:"dist"`
	Prob float64 `json:"prob"`
	Var  float64 `json:"var"` // variance of Dist, m^2
}

// Receiver is a non-blocking source of model frames. Recv returns false when
// no new frame arrived since the last call.
type Receiver interface {
	Recv() (*InputSample, bool)
}

// ChanReceiver polls a channel without blocking. A closed channel behaves as
// a source that never produces another frame.
type ChanReceiver <-chan *InputSample

// Recv implements Receiver.
func (c ChanReceiver) Recv() (*InputSample, bool) {
	select {
	case s, ok := <-c:
		if !ok || s == nil {
			return nil, false
		}
		return s, true
	default:
		return nil, false
	}
}
