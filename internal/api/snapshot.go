package api

import (
	"sync"
	"time"

	"github.com/banshee-data/pathplanner/internal/pathplan"
)

// Snapshot is the planner state as last published by the control loop.
type Snapshot struct {
	RunID     string         `json:"run_id,omitempty"`
	Version   string         `json:"version"`
	CurTime   float64        `json:"cur_time"`
	VEgo      float64        `json:"v_ego"`
	Units     string         `json:"units,omitempty"` // of VEgo when converted for display
	Frames    uint64         `json:"frames"`
	Rejected  uint64         `json:"rejected"`
	UpdatedAt time.Time      `json:"updated_at"`
	State     pathplan.State `json:"state"`
}

// SnapshotStore hands snapshots from the control loop to HTTP handlers.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap Snapshot
	ok   bool
}

func (s *SnapshotStore) Publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.ok = true
}

// Load returns the latest snapshot, or false before the first Publish.
func (s *SnapshotStore) Load() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.ok
}
