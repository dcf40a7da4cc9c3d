package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DefaultConfigPath is the path to the canonical planner defaults file.
const DefaultConfigPath = "config/planner.defaults.json"

// PlannerConfig represents the root configuration for the path planner and
// its host loop. Every field is optional; the Get* accessors fall back to the
// built-in defaults for anything the file leaves out.
type PlannerConfig struct {
	// Fusion params
	LaneWidthBreakpoints []float64 `json:"lane_width_breakpoints,omitempty"` // ego speed, m/s
	LaneWidthValues      []float64 `json:"lane_width_values,omitempty"`      // full lane width, m
	MinLaneProbSum       *float64  `json:"min_lane_prob_sum,omitempty"`
	PathWeight           *float64  `json:"path_weight,omitempty"`

	// Liveness params
	StaleTimeout *string `json:"stale_timeout,omitempty"` // duration string like "500ms"

	// Host loop params
	LoopInterval *string `json:"loop_interval,omitempty"` // duration string like "10ms"
	RecordEvery  *int    `json:"record_every,omitempty"`  // write every Nth cycle to the output log, 0 disables

	// Input transport
	Serial *SerialOptions `json:"serial,omitempty"`
}

// SerialOptions mirrors serialmux.PortOptions so the transport can be
// configured from the same file.
type SerialOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPlannerConfig returns a PlannerConfig with all fields unset.
func EmptyPlannerConfig() *PlannerConfig {
	return &PlannerConfig{}
}

// DefaultPlannerConfig returns a PlannerConfig with every field populated
// from the built-in defaults.
func DefaultPlannerConfig() *PlannerConfig {
	return &PlannerConfig{
		LaneWidthBreakpoints: []float64{0, 31},
		LaneWidthValues:      []float64{3.0, 3.8},
		MinLaneProbSum:       ptrFloat64(0.01),
		PathWeight:           ptrFloat64(1.0),
		StaleTimeout:         ptrString("500ms"),
		LoopInterval:         ptrString("10ms"),
		RecordEvery:          ptrInt(1),
		Serial:               &SerialOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
	}
}

// LoadPlannerConfig loads a PlannerConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadPlannerConfig(path string) (*PlannerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPlannerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *PlannerConfig) Validate() error {
	if c.LaneWidthBreakpoints != nil || c.LaneWidthValues != nil {
		bp, v := c.LaneWidthBreakpoints, c.LaneWidthValues
		if len(bp) != len(v) {
			return fmt.Errorf("lane_width_breakpoints and lane_width_values differ in length (%d vs %d)", len(bp), len(v))
		}
		if len(bp) < 2 {
			return fmt.Errorf("lane width table needs at least 2 entries, got %d", len(bp))
		}
		if !sort.SliceIsSorted(bp, func(i, j int) bool { return bp[i] < bp[j] }) {
			return fmt.Errorf("lane_width_breakpoints must be increasing, got %v", bp)
		}
		for i := 1; i < len(bp); i++ {
			if bp[i] == bp[i-1] {
				return fmt.Errorf("lane_width_breakpoints must be strictly increasing, got %v", bp)
			}
		}
		for _, w := range v {
			if w <= 0 {
				return fmt.Errorf("lane_width_values must be positive, got %v", v)
			}
		}
	}

	if c.MinLaneProbSum != nil {
		if *c.MinLaneProbSum < 0 || *c.MinLaneProbSum > 2 {
			return fmt.Errorf("min_lane_prob_sum must be between 0 and 2, got %f", *c.MinLaneProbSum)
		}
	}

	if c.PathWeight != nil && *c.PathWeight < 0 {
		return fmt.Errorf("path_weight must be non-negative, got %f", *c.PathWeight)
	}

	if c.StaleTimeout != nil && *c.StaleTimeout != "" {
		d, err := time.ParseDuration(*c.StaleTimeout)
		if err != nil {
			return fmt.Errorf("invalid stale_timeout '%s': %w", *c.StaleTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("stale_timeout must be positive, got %s", d)
		}
	}

	if c.LoopInterval != nil && *c.LoopInterval != "" {
		d, err := time.ParseDuration(*c.LoopInterval)
		if err != nil {
			return fmt.Errorf("invalid loop_interval '%s': %w", *c.LoopInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("loop_interval must be positive, got %s", d)
		}
	}

	if c.RecordEvery != nil && *c.RecordEvery < 0 {
		return fmt.Errorf("record_every must be non-negative, got %d", *c.RecordEvery)
	}

	return nil
}

// GetLaneWidthTable returns the speed breakpoints and matching lane widths.
func (c *PlannerConfig) GetLaneWidthTable() (breakpoints, widths []float64) {
	if len(c.LaneWidthBreakpoints) == 0 || len(c.LaneWidthBreakpoints) != len(c.LaneWidthValues) {
		// lanes in the US are ~3.6m wide; narrower at low speed
		return []float64{0, 31}, []float64{3.0, 3.8}
	}
	return append([]float64(nil), c.LaneWidthBreakpoints...), append([]float64(nil), c.LaneWidthValues...)
}

// GetMinLaneProbSum returns the min_lane_prob_sum value or the default.
func (c *PlannerConfig) GetMinLaneProbSum() float64 {
	if c.MinLaneProbSum == nil {
		return 0.01
	}
	return *c.MinLaneProbSum
}

// GetPathWeight returns the path_weight value or the default.
func (c *PlannerConfig) GetPathWeight() float64 {
	if c.PathWeight == nil {
		return 1.0
	}
	return *c.PathWeight
}

// GetStaleTimeout parses and returns the StaleTimeout as a time.Duration.
func (c *PlannerConfig) GetStaleTimeout() time.Duration {
	if c.StaleTimeout == nil || *c.StaleTimeout == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.StaleTimeout)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetLoopInterval parses and returns the LoopInterval as a time.Duration.
func (c *PlannerConfig) GetLoopInterval() time.Duration {
	if c.LoopInterval == nil || *c.LoopInterval == "" {
		return 10 * time.Millisecond // 100Hz
	}
	d, err := time.ParseDuration(*c.LoopInterval)
	if err != nil {
		return 10 * time.Millisecond
	}
	return d
}

// GetRecordEvery returns the record_every value or the default.
func (c *PlannerConfig) GetRecordEvery() int {
	if c.RecordEvery == nil {
		return 1
	}
	return *c.RecordEvery
}

// GetSerial returns the serial options or the defaults.
func (c *PlannerConfig) GetSerial() SerialOptions {
	if c.Serial == nil {
		return SerialOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	}
	return *c.Serial
}
