// Command plot-trajectory renders planner output to PNG. With -db it plots
// the trajectory history of a recorded run; with -replay it runs the planner
// over a frame log and plots the curves of the last accepted frame.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/pathplanner/internal/curveplot"
	"github.com/banshee-data/pathplanner/internal/db"
	"github.com/banshee-data/pathplanner/internal/modelmsg"
	"github.com/banshee-data/pathplanner/internal/pathplan"
	"github.com/banshee-data/pathplanner/internal/security"
)

var (
	dbPath     = flag.String("db", "", "Planner output database")
	runID      = flag.String("run", "", "Run to plot (latest when empty)")
	limit      = flag.Int("limit", 2000, "Number of most recent cycles to plot")
	replayPath = flag.String("replay", "", "Frame log to run the planner over")
	outPath    = flag.String("out", "", "Output PNG path (derived from the run or replay name when empty)")
)

func main() {
	flag.Parse()

	out := *outPath
	if out != "" {
		if err := security.ValidateOutputPath(out); err != nil {
			log.Fatalf("plot-trajectory: %v", err)
		}
	}

	var err error
	switch {
	case *dbPath != "" && *replayPath != "":
		err = errors.New("use either -db or -replay, not both")
	case *dbPath != "":
		out, err = plotRun(*dbPath, *runID, *limit, out)
	case *replayPath != "":
		out, err = plotReplay(*replayPath, out)
	default:
		err = errors.New("one of -db or -replay is required")
	}
	if err != nil {
		log.Fatalf("plot-trajectory: %v", err)
	}
	log.Printf("wrote %s", out)
}

// plotRun writes the history of a recorded run and returns the PNG path.
func plotRun(path, id string, limit int, out string) (string, error) {
	database, err := db.OpenDB(path)
	if err != nil {
		return "", err
	}
	defer database.Close()

	if id == "" {
		run, err := database.LatestRun()
		if err != nil {
			return "", err
		}
		id = run.ID
	}
	if out == "" {
		out = "trajectory-" + security.SanitizeFilename(id) + ".png"
	}
	outs, err := database.RecentOutputs(id, limit)
	if err != nil {
		return "", err
	}
	p, err := curveplot.History(outs, fmt.Sprintf("run %s (%d cycles)", id, len(outs)))
	if err != nil {
		return "", err
	}
	return out, curveplot.SavePNG(p, out)
}

// replayFinalState feeds every model frame in data to a fresh planner, using
// the frame capture time as the loop clock, and returns the final state.
func replayFinalState(data []byte) (pathplan.State, int, error) {
	planner, err := pathplan.NewPlanner(pathplan.DefaultConfig())
	if err != nil {
		return pathplan.State{}, 0, err
	}

	var (
		vEgo     float64
		accepted int
		started  bool
		first    uint64
		last     float64
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		msg, err := modelmsg.Decode(sc.Text())
		if err != nil {
			continue
		}
		switch msg.Type {
		case modelmsg.EventTypeCarState:
			vEgo = msg.CarState.VEgo
		case modelmsg.EventTypeModel:
			mono := msg.Model.LogMonoTime
			if !started {
				started = true
				first = mono
			}
			curTime := float64(int64(mono)-int64(first)) / 1e9
			if curTime < last {
				log.Printf("skipping frame %d: capture time goes backwards (%.3fs < %.3fs)", mono, curTime, last)
				continue
			}
			last = curTime
			if err := planner.Update(curTime, vEgo, msg.Model); err != nil {
				log.Printf("skipping frame %d: %v", msg.Model.LogMonoTime, err)
				continue
			}
			accepted++
		}
	}
	if err := sc.Err(); err != nil {
		return pathplan.State{}, 0, err
	}
	if accepted == 0 {
		return pathplan.State{}, 0, errors.New("no model frames accepted")
	}
	return planner.State(), accepted, nil
}

// plotReplay writes the curves of the last frame in a replay log and
// returns the PNG path.
func plotReplay(path, out string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	st, n, err := replayFinalState(data)
	if err != nil {
		return "", err
	}
	if out == "" {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out = "curves-" + security.SanitizeFilename(name) + ".png"
	}
	p, err := curveplot.Curves(st, fmt.Sprintf("%s: last of %d frames", path, n))
	if err != nil {
		return "", err
	}
	return out, curveplot.SavePNG(p, out)
}
