package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pathplanner/internal/curvefit"
	"github.com/banshee-data/pathplanner/internal/db"
	"github.com/banshee-data/pathplanner/internal/serialmux"
	"github.com/banshee-data/pathplanner/internal/units"
)

// ANSI escape codes used by LoggingMiddleware
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultOutputLimit = 100
	maxOutputLimit     = 10000
)

type Server struct {
	snapshots *SnapshotStore
	m         serialmux.SerialMuxInterface
	db        *db.DB

	// AssetsHost overrides where chart pages load echarts from. Empty uses
	// the go-echarts default.
	AssetsHost string
}

// NewServer builds the HTTP surface. m and database may be nil.
func NewServer(snapshots *SnapshotStore, m serialmux.SerialMuxInterface, database *db.DB) *Server {
	return &Server{
		snapshots: snapshots,
		m:         m,
		db:        database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the planner routes plus the debug routes of the serial
// link and output log.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/planner", s.showPlanner)
	mux.HandleFunc("/api/outputs", s.listOutputs)

	debug := tsweb.Debugger(mux)
	debug.Handle("curves", "Current lane lines, model path and trajectory", http.HandlerFunc(s.showCurves))

	if s.m != nil {
		s.m.AttachAdminRoutes(mux)
	}
	if s.db != nil {
		s.db.AttachAdminRoutes(mux)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) showPlanner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	u := r.URL.Query().Get("units")
	if u != "" && !units.IsValid(u) {
		writeJSONError(w, http.StatusBadRequest, "units must be one of: "+units.GetValidUnitsString())
		return
	}
	snap, ok := s.snapshots.Load()
	if !ok {
		writeJSONError(w, http.StatusServiceUnavailable, "planner has not run yet")
		return
	}
	if u != "" {
		snap.VEgo = units.ConvertSpeed(snap.VEgo, u)
		snap.Units = u
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listOutputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		writeJSONError(w, http.StatusNotFound, "output log disabled")
		return
	}

	limit := defaultOutputLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxOutputLimit {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxOutputLimit))
			return
		}
		limit = n
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		if snap, ok := s.snapshots.Load(); ok && snap.RunID != "" {
			runID = snap.RunID
		} else {
			run, err := s.db.LatestRun()
			if err != nil {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			runID = run.ID
		}
	}

	outs, err := s.db.RecentOutputs(runID, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load outputs: %v", err))
		return
	}
	if outs == nil {
		outs = []db.Output{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "outputs": outs})
}

func lineData(p curvefit.Poly) []opts.LineData {
	ys := p.Sample()
	data := make([]opts.LineData, len(ys))
	for i, y := range ys {
		data[i] = opts.LineData{Value: y}
	}
	return data
}

// showCurves renders the fitted curves of the latest snapshot over the
// sampled distance range.
func (s *Server) showCurves(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshots.Load()
	if !ok {
		writeJSONError(w, http.StatusServiceUnavailable, "planner has not run yet")
		return
	}
	st := snap.State

	xs := make([]int, curvefit.NumPoints)
	for i := range xs {
		xs[i] = i
	}

	subtitle := fmt.Sprintf("t=%.2fs v_ego=%.1fm/s center_prob=%.2f", snap.CurTime, snap.VEgo, st.Fusion.CenterProb)
	if st.Dead {
		subtitle += " DEAD"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Path planner", Width: "1000px", Height: "600px", AssetsHost: s.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Desired path", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "lateral (m)", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(xs).
		AddSeries("left lane", lineData(st.Left)).
		AddSeries("right lane", lineData(st.Right)).
		AddSeries("model path", lineData(st.Path)).
		AddSeries("lane center", lineData(st.Fusion.CenterLane)).
		AddSeries("trajectory", lineData(st.Trajectory))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
