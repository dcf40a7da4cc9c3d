package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pathplanner/internal/curvefit"
	"github.com/banshee-data/pathplanner/internal/pathplan"
)

// ErrNoRuns is returned by LatestRun on an empty database.
var ErrNoRuns = errors.New("db: no planner runs recorded")

// Run identifies one planner process lifetime.
type Run struct {
	ID         string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	Version    string    `json:"version"`
	ConfigJSON string    `json:"config_json"`
}

// Output is one recorded planner cycle.
type Output struct {
	CurTime     float64            `json:"cur_time"`
	VEgo        float64            `json:"v_ego"`
	LogMonoTime uint64             `json:"log_mono_time"`
	Dead        bool               `json:"dead"`
	Trajectory  curvefit.Poly      `json:"trajectory"`
	CenterLane  curvefit.Poly      `json:"center_lane"`
	CenterProb  float64            `json:"center_prob"`
	Lead        pathplan.LeadState `json:"lead"`
}

// OutputFromState captures the published part of a planner state.
func OutputFromState(curTime, vEgo float64, st pathplan.State) Output {
	return Output{
		CurTime:     curTime,
		VEgo:        vEgo,
		LogMonoTime: st.LogMonoTime,
		Dead:        st.Dead,
		Trajectory:  st.Trajectory,
		CenterLane:  st.Fusion.CenterLane,
		CenterProb:  st.Fusion.CenterProb,
		Lead:        st.Lead,
	}
}

// CreateRun registers a new run with a fresh UUID.
func (db *DB) CreateRun(startedAt time.Time, version, configJSON string) (Run, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	run := Run{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		Version:    version,
		ConfigJSON: configJSON,
	}
	_, err := db.Exec(
		`INSERT INTO planner_runs (run_id, started_at, version, config_json) VALUES (?, ?, ?, ?)`,
		run.ID, unixSeconds(startedAt), run.Version, run.ConfigJSON,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun() (Run, error) {
	var (
		run     Run
		started float64
	)
	err := db.QueryRow(
		`SELECT run_id, started_at, version, config_json FROM planner_runs
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`,
	).Scan(&run.ID, &started, &run.Version, &run.ConfigJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = fromUnixSeconds(started)
	return run, nil
}

const insertOutputSQL = `INSERT INTO planner_outputs (
	run_id, cur_time, v_ego, log_mono_time, dead,
	d0, d1, d2, d3, c0, c1, c2, c3,
	center_prob, lead_dist, lead_prob, lead_var
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func outputArgs(runID string, o Output) []any {
	d, c := o.Trajectory, o.CenterLane
	return []any{
		runID, o.CurTime, o.VEgo, int64(o.LogMonoTime), o.Dead,
		d[0], d[1], d[2], d[3], c[0], c[1], c[2], c[3],
		o.CenterProb, o.Lead.Dist, o.Lead.Prob, o.Lead.Var,
	}
}

// RecordOutput stores a single planner cycle.
func (db *DB) RecordOutput(runID string, o Output) error {
	_, err := db.Exec(insertOutputSQL, outputArgs(runID, o)...)
	return err
}

// RecordOutputs stores a batch of cycles in one transaction.
func (db *DB) RecordOutputs(ctx context.Context, runID string, outs []Output) error {
	if len(outs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("planner outputs rollback error: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertOutputSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outs {
		if _, err := stmt.ExecContext(ctx, outputArgs(runID, o)...); err != nil {
			return fmt.Errorf("failed to insert output at %.3f: %w", o.CurTime, err)
		}
	}
	return tx.Commit()
}

// RecentOutputs returns up to limit of the newest outputs of a run, oldest
// first.
func (db *DB) RecentOutputs(runID string, limit int) ([]Output, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := db.Query(`
		SELECT cur_time, v_ego, log_mono_time, dead,
		       d0, d1, d2, d3, c0, c1, c2, c3,
		       center_prob, lead_dist, lead_prob, lead_var
		FROM planner_outputs
		WHERE run_id = ?
		ORDER BY output_id DESC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outs []Output
	for rows.Next() {
		var (
			o    Output
			mono int64
		)
		d, c := &o.Trajectory, &o.CenterLane
		if err := rows.Scan(
			&o.CurTime, &o.VEgo, &mono, &o.Dead,
			&d[0], &d[1], &d[2], &d[3], &c[0], &c[1], &c[2], &c[3],
			&o.CenterProb, &o.Lead.Dist, &o.Lead.Prob, &o.Lead.Var,
		); err != nil {
			return nil, err
		}
		o.LogMonoTime = uint64(mono)
		outs = append(outs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(outs)-1; i < j; i, j = i+1, j-1 {
		outs[i], outs[j] = outs[j], outs[i]
	}
	return outs, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}
