package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/pathplanner/internal/config"
	"github.com/banshee-data/pathplanner/internal/pathplan"
	"github.com/banshee-data/pathplanner/internal/serialmux"
)

func TestFlagDefaults(t *testing.T) {
	if *configPath != "" {
		t.Errorf("config default = %q, want built-in defaults", *configPath)
	}
	if *replayInterval != 50*time.Millisecond {
		t.Errorf("replay-interval default = %v", *replayInterval)
	}
	if !*replayLoop {
		t.Error("replay-loop should default to true")
	}
	if *disableSerial {
		t.Error("disable-serial should default to false")
	}
	if *dbPath != "planner.db" {
		t.Errorf("db default = %q", *dbPath)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\") error = %v", err)
	}
	if diff := cmp.Diff(config.DefaultPlannerConfig(), cfg); diff != "" {
		t.Errorf("built-in config mismatch (-want +got):\n%s", diff)
	}

	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`{"stale_timeout": "250ms", "record_every": 5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig(good)
	if err != nil {
		t.Fatalf("loadConfig(good) error = %v", err)
	}
	if got := cfg.GetStaleTimeout(); got != 250*time.Millisecond {
		t.Errorf("stale timeout = %v", got)
	}
	if got := cfg.GetRecordEvery(); got != 5 {
		t.Errorf("record every = %d", got)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"min_lane_prob_sum": -1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(bad); err == nil {
		t.Error("loadConfig accepted an invalid config")
	} else if n := strings.Count(err.Error(), "min_lane_prob_sum"); n != 1 {
		t.Errorf("loadConfig(bad) error = %q, want the validation failure reported once", err)
	}

	if _, err := loadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("loadConfig accepted a missing file")
	}
}

func TestPlannerParams(t *testing.T) {
	if diff := cmp.Diff(pathplan.DefaultConfig(), plannerParams(config.EmptyPlannerConfig())); diff != "" {
		t.Errorf("unset config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(pathplan.DefaultConfig(), plannerParams(config.DefaultPlannerConfig())); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}

	cfg := config.EmptyPlannerConfig()
	weight, timeout := 0.5, "250ms"
	cfg.PathWeight = &weight
	cfg.StaleTimeout = &timeout
	cfg.LaneWidthBreakpoints = []float64{0, 10, 30}
	cfg.LaneWidthValues = []float64{3.0, 3.4, 3.7}
	got := plannerParams(cfg)
	want := pathplan.Config{
		LaneWidthBreakpoints: []float64{0, 10, 30},
		LaneWidthValues:      []float64{3.0, 3.4, 3.7},
		MinLaneProbSum:       pathplan.DefaultMinLaneProbSum,
		PathWeight:           0.5,
		StaleTimeout:         250 * time.Millisecond,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plannerParams() mismatch (-want +got):\n%s", diff)
	}
	if _, err := pathplan.NewPlanner(got); err != nil {
		t.Errorf("NewPlanner(plannerParams()) error = %v", err)
	}
}

func TestOpenLink(t *testing.T) {
	*disableSerial = true
	link, err := openLink(config.DefaultPlannerConfig())
	*disableSerial = false
	if err != nil {
		t.Fatalf("openLink() disabled error = %v", err)
	}
	if _, ok := link.(*serialmux.DisabledSerialMux); !ok {
		t.Errorf("disabled link is %T", link)
	}
	link.Close()

	*replayPath = filepath.Join("testdata", "drive.jsonl")
	defer func() { *replayPath = "" }()
	link, err = openLink(config.DefaultPlannerConfig())
	if err != nil {
		t.Fatalf("openLink() replay error = %v", err)
	}
	if _, ok := link.(*serialmux.SerialMux[*serialmux.ReplayPort]); !ok {
		t.Errorf("replay link is %T", link)
	}
	link.Close()

	*replayPath = filepath.Join(t.TempDir(), "missing.jsonl")
	if _, err := openLink(config.DefaultPlannerConfig()); err == nil {
		t.Error("openLink accepted a missing replay file")
	}
}
