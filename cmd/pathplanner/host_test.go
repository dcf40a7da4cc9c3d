package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/pathplanner/internal/api"
	"github.com/banshee-data/pathplanner/internal/curvefit"
	"github.com/banshee-data/pathplanner/internal/db"
	"github.com/banshee-data/pathplanner/internal/modelmsg"
	"github.com/banshee-data/pathplanner/internal/monitoring"
	"github.com/banshee-data/pathplanner/internal/pathplan"
	"github.com/banshee-data/pathplanner/internal/serialmux"
	"github.com/banshee-data/pathplanner/internal/timeutil"
)

func quietLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
}

func validSample(mono uint64) *pathplan.InputSample {
	return &pathplan.InputSample{
		LogMonoTime: mono,
		Path:        pathplan.Curve{Points: curvefit.Poly{0, 0, 0.002, 0.1}.Sample(), Prob: 1},
		LeftLane:    pathplan.Curve{Points: curvefit.Poly{0, 0, 0.002, 1.75}.Sample(), Prob: 0.9},
		RightLane:   pathplan.Curve{Points: curvefit.Poly{0, 0, 0.002, -1.65}.Sample(), Prob: 0.85},
		Lead:        pathplan.LeadInput{Dist: 30, Prob: 0.7, Std: 2},
	}
}

func newTestLoop(t *testing.T, frames chan *pathplan.InputSample) *controlLoop {
	t.Helper()
	p, err := pathplan.NewPlanner(pathplan.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	return &controlLoop{
		Planner:     p,
		Clock:       timeutil.NewMockClock(time.Unix(1000, 0)),
		Interval:    10 * time.Millisecond,
		Frames:      pathplan.ChanReceiver(frames),
		Speed:       &speedHolder{},
		Snapshots:   &api.SnapshotStore{},
		RecordEvery: 1,
		RunID:       "run",
		Version:     "test",
		Log:         monitoring.NewLimiter(time.Hour),
	}
}

func TestSpeedHolder(t *testing.T) {
	var s speedHolder
	if got := s.Load(); got != 0 {
		t.Errorf("zero value Load() = %v", got)
	}
	s.Store(27.5)
	if got := s.Load(); got != 27.5 {
		t.Errorf("Load() = %v, want 27.5", got)
	}
}

func TestOfferLatest(t *testing.T) {
	ch := make(chan *pathplan.InputSample, 1)
	a, b := validSample(1), validSample(2)

	if offerLatest(ch, a) {
		t.Error("first offer reported a replacement")
	}
	if !offerLatest(ch, b) {
		t.Error("second offer did not report a replacement")
	}
	if got := <-ch; got != b {
		t.Errorf("received frame %d, want the latest", got.LogMonoTime)
	}
}

func TestRunDecoder(t *testing.T) {
	quietLogs(t)

	model, err := modelmsg.EncodeModel(validSample(42))
	if err != nil {
		t.Fatalf("EncodeModel: %v", err)
	}
	carState, err := modelmsg.EncodeCarState(modelmsg.CarState{VEgo: 13.5})
	if err != nil {
		t.Fatalf("EncodeCarState: %v", err)
	}

	lines := make(chan string, 8)
	lines <- carState
	lines <- "not json"
	lines <- model
	lines <- model
	close(lines)

	frames := make(chan *pathplan.InputSample, 1)
	speed := &speedHolder{}
	stats := &decoderStats{}
	runDecoder(context.Background(), lines, frames, speed, stats, monitoring.NewLimiter(time.Hour))

	if got := speed.Load(); got != 13.5 {
		t.Errorf("speed = %v, want 13.5", got)
	}
	if got := stats.models.Load(); got != 2 {
		t.Errorf("models = %d, want 2", got)
	}
	if got := stats.skipped.Load(); got != 1 {
		t.Errorf("skipped = %d, want 1", got)
	}
	if got := stats.carState.Load(); got != 1 {
		t.Errorf("carState = %d, want 1", got)
	}
	if got := stats.bad.Load(); got != 1 {
		t.Errorf("bad = %d, want 1", got)
	}
	select {
	case s := <-frames:
		if s.LogMonoTime != 42 {
			t.Errorf("LogMonoTime = %d, want 42", s.LogMonoTime)
		}
	default:
		t.Fatal("no frame forwarded")
	}
}

func TestControlLoopTick(t *testing.T) {
	quietLogs(t)

	database, err := db.OpenDB(filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer database.Close()
	run, err := database.CreateRun(time.Now(), "test", "{}")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	frames := make(chan *pathplan.InputSample, 1)
	l := newTestLoop(t, frames)
	l.Writer = db.NewOutputWriter(database, run.ID, 16)
	l.RecordEvery = 2
	l.Speed.Store(10)
	recv := &countingReceiver{r: l.Frames}
	now := time.Unix(1000, 0)

	frames <- validSample(7)
	l.tick(0, now, recv)
	snap, ok := l.Snapshots.Load()
	if !ok {
		t.Fatal("no snapshot published")
	}
	if snap.State.Dead || snap.Frames != 1 || snap.VEgo != 10 {
		t.Errorf("after frame: dead=%v frames=%d v_ego=%v", snap.State.Dead, snap.Frames, snap.VEgo)
	}
	if snap.State.LogMonoTime != 7 {
		t.Errorf("LogMonoTime = %d, want 7", snap.State.LogMonoTime)
	}

	l.tick(0.3, now, recv)
	if snap, _ = l.Snapshots.Load(); snap.State.Dead {
		t.Error("dead before the stale timeout")
	}

	l.tick(0.6, now, recv)
	if snap, _ = l.Snapshots.Load(); !snap.State.Dead {
		t.Error("not dead after the stale timeout")
	}

	bad := validSample(8)
	bad.LeftLane.Points = bad.LeftLane.Points[:10]
	frames <- bad
	l.tick(0.7, now, recv)
	snap, _ = l.Snapshots.Load()
	if snap.Rejected != 1 || snap.Frames != 1 {
		t.Errorf("rejected=%d frames=%d, want 1 and 1", snap.Rejected, snap.Frames)
	}
	if !snap.State.Dead || snap.State.LogMonoTime != 7 {
		t.Errorf("rejected frame changed state: dead=%v mono=%d", snap.State.Dead, snap.State.LogMonoTime)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Writer.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("writer Run() = %v", err)
	}
	outs, err := database.RecentOutputs(run.ID, 10)
	if err != nil {
		t.Fatalf("RecentOutputs: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("recorded %d outputs, want 2 (every second cycle)", len(outs))
	}
	if outs[0].CurTime != 0 || outs[1].CurTime != 0.6 || !outs[1].Dead {
		t.Errorf("recorded cycles = %+v", outs)
	}
}

func TestControlLoopRunWithMockClock(t *testing.T) {
	quietLogs(t)

	l := newTestLoop(t, make(chan *pathplan.InputSample, 1))
	clock := l.Clock.(*timeutil.MockClock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		clock.Advance(l.Interval)
		if _, ok := l.Snapshots.Load(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop never published a snapshot")
		}
		time.Sleep(time.Millisecond)
	}

	snap, _ := l.Snapshots.Load()
	if !snap.State.Dead {
		t.Error("planner live without any frame")
	}
	if snap.CurTime <= 0 {
		t.Errorf("CurTime = %v, want positive loop time", snap.CurTime)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestControlLoopRejectsZeroInterval(t *testing.T) {
	l := newTestLoop(t, nil)
	l.Interval = 0
	if err := l.Run(context.Background()); err == nil {
		t.Error("Run() with zero interval succeeded")
	}
}

// TestReplayEndToEnd drives the planner from the recorded drive in testdata
// through the replay link, decoder and control loop.
func TestReplayEndToEnd(t *testing.T) {
	quietLogs(t)

	data, err := os.ReadFile(filepath.Join("testdata", "drive.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	link := serialmux.NewReplaySerialMux(data, time.Millisecond, false)
	defer link.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan *pathplan.InputSample, 1)
	l := newTestLoop(t, frames)
	l.Clock = timeutil.RealClock{}
	l.Interval = 2 * time.Millisecond

	id, lines := link.Subscribe()
	defer link.Unsubscribe(id)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); _ = link.Monitor(ctx) }()
	stats := &decoderStats{}
	go func() {
		defer wg.Done()
		runDecoder(ctx, lines, frames, l.Speed, stats, l.Log)
	}()
	go func() { defer wg.Done(); _ = l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for stats.bad.Load() == 0 || stats.models.Load() < 30 {
		if time.Now().After(deadline) {
			t.Fatalf("replay stalled: models=%d bad=%d", stats.models.Load(), stats.bad.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap, _ := l.Snapshots.Load()
	cancel()
	wg.Wait()

	if snap.Frames == 0 {
		t.Fatal("no frames accepted")
	}
	if snap.VEgo < 12 {
		t.Errorf("v_ego = %v, want car state speed", snap.VEgo)
	}
	// centre of lane is ~0.05 m and the model path 0.1 m at the vehicle
	if d := snap.State.Trajectory.Eval(0); d < 0.04 || d > 0.11 {
		t.Errorf("trajectory offset at 0 m = %v", d)
	}
}
