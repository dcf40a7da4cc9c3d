package main

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pathplanner/internal/api"
	"github.com/banshee-data/pathplanner/internal/db"
	"github.com/banshee-data/pathplanner/internal/modelmsg"
	"github.com/banshee-data/pathplanner/internal/monitoring"
	"github.com/banshee-data/pathplanner/internal/pathplan"
	"github.com/banshee-data/pathplanner/internal/timeutil"
)

// speedHolder carries the latest ego speed from the decoder to the loop.
type speedHolder struct {
	bits atomic.Uint64
}

func (s *speedHolder) Store(v float64) { s.bits.Store(math.Float64bits(v)) }
func (s *speedHolder) Load() float64   { return math.Float64frombits(s.bits.Load()) }

// offerLatest puts s on a 1-deep channel, replacing any frame the loop has
// not picked up yet. It must only be called from a single producer.
func offerLatest(ch chan *pathplan.InputSample, s *pathplan.InputSample) (replaced bool) {
	for {
		select {
		case ch <- s:
			return replaced
		default:
		}
		select {
		case <-ch:
			replaced = true
		default:
		}
	}
}

// decoderStats are updated by runDecoder and read by the loop for snapshots.
type decoderStats struct {
	models   atomic.Uint64
	skipped  atomic.Uint64 // model frames overwritten before the loop saw them
	carState atomic.Uint64
	bad      atomic.Uint64
}

// runDecoder turns link lines into planner inputs until lines is closed or
// ctx is done.
func runDecoder(ctx context.Context, lines <-chan string, frames chan *pathplan.InputSample, speed *speedHolder, stats *decoderStats, lim *monitoring.Limiter) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			msg, err := modelmsg.Decode(line)
			if err != nil {
				stats.bad.Add(1)
				lim.Logf("dropping line: %v", err)
				continue
			}
			switch msg.Type {
			case modelmsg.EventTypeModel:
				stats.models.Add(1)
				if offerLatest(frames, msg.Model) {
					stats.skipped.Add(1)
				}
			case modelmsg.EventTypeCarState:
				stats.carState.Add(1)
				speed.Store(msg.CarState.VEgo)
			}
		}
	}
}

type countingReceiver struct {
	r pathplan.Receiver
	n uint64
}

func (c *countingReceiver) Recv() (*pathplan.InputSample, bool) {
	s, ok := c.r.Recv()
	if ok && s != nil {
		c.n++
	}
	return s, ok
}

// controlLoop runs the planner on every clock tick and publishes the
// result.
type controlLoop struct {
	Planner     *pathplan.Planner
	Clock       timeutil.Clock
	Interval    time.Duration
	Frames      pathplan.Receiver
	Speed       *speedHolder
	Snapshots   *api.SnapshotStore
	Writer      *db.OutputWriter // nil disables recording
	RecordEvery int
	RunID       string
	Version     string
	Log         *monitoring.Limiter

	cycles   uint64
	rejected uint64
	wasDead  bool
}

func (l *controlLoop) Run(ctx context.Context) error {
	if l.Interval <= 0 {
		return errors.New("control loop interval must be positive")
	}
	start := l.Clock.Now()
	ticker := l.Clock.NewTicker(l.Interval)
	defer ticker.Stop()

	frames := &countingReceiver{r: l.Frames}
	l.wasDead = l.Planner.Dead()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			l.tick(timeutil.LoopTime(now, start), now, frames)
		}
	}
}

func (l *controlLoop) tick(curTime float64, now time.Time, frames *countingReceiver) {
	vEgo := l.Speed.Load()
	if err := l.Planner.Step(curTime, vEgo, frames); err != nil {
		l.rejected++
		l.Log.Logf("rejected model frame at t=%.3f: %v", curTime, err)
	}
	st := l.Planner.State()

	if st.Dead != l.wasDead {
		if st.Dead {
			monitoring.Logf("planner output dead at t=%.3f (last frame at t=%.3f)", curTime, st.LastSampleTime)
		} else {
			monitoring.Logf("planner output live at t=%.3f", curTime)
		}
		l.wasDead = st.Dead
	}

	l.Snapshots.Publish(api.Snapshot{
		RunID:     l.RunID,
		Version:   l.Version,
		CurTime:   curTime,
		VEgo:      vEgo,
		Frames:    frames.n - l.rejected,
		Rejected:  l.rejected,
		UpdatedAt: now,
		State:     st,
	})

	if l.Writer != nil && l.RecordEvery > 0 && l.cycles%uint64(l.RecordEvery) == 0 {
		l.Writer.Enqueue(db.OutputFromState(curTime, vEgo, st))
	}
	l.cycles++
}
