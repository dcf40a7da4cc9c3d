package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pathplanner/internal/api"
	"github.com/banshee-data/pathplanner/internal/config"
	"github.com/banshee-data/pathplanner/internal/db"
	"github.com/banshee-data/pathplanner/internal/monitoring"
	"github.com/banshee-data/pathplanner/internal/pathplan"
	"github.com/banshee-data/pathplanner/internal/serialmux"
	"github.com/banshee-data/pathplanner/internal/timeutil"
	"github.com/banshee-data/pathplanner/internal/version"
)

var (
	configPath     = flag.String("config", "", "Planner tuning JSON (defaults built in when empty)")
	listen         = flag.String("listen", ":8080", "Listen address")
	port           = flag.String("port", "/dev/ttyUSB0", "Serial port carrying model and car state frames")
	replayPath     = flag.String("replay", "", "Replay a recorded frame log instead of opening the serial port")
	replayInterval = flag.Duration("replay-interval", 50*time.Millisecond, "Delay between replayed lines")
	replayLoop     = flag.Bool("replay-loop", true, "Restart the replay after the last line")
	disableSerial  = flag.Bool("disable-serial", false, "Run without a frame link (output stays dead)")
	dbPath         = flag.String("db", "planner.db", "Output log database (empty disables recording)")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path string) (*config.PlannerConfig, error) {
	if path == "" {
		return config.DefaultPlannerConfig(), nil
	}
	return config.LoadPlannerConfig(path)
}

// plannerParams maps the tuning file onto the planner parameters.
func plannerParams(cfg *config.PlannerConfig) pathplan.Config {
	bp, w := cfg.GetLaneWidthTable()
	return pathplan.Config{
		LaneWidthBreakpoints: bp,
		LaneWidthValues:      w,
		MinLaneProbSum:       cfg.GetMinLaneProbSum(),
		PathWeight:           cfg.GetPathWeight(),
		StaleTimeout:         cfg.GetStaleTimeout(),
	}
}

func openLink(cfg *config.PlannerConfig) (serialmux.SerialMuxInterface, error) {
	switch {
	case *disableSerial:
		log.Printf("serial link disabled; planner output will stay dead")
		return serialmux.NewDisabledSerialMux(), nil
	case *replayPath != "":
		data, err := os.ReadFile(*replayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read replay file: %w", err)
		}
		log.Printf("replaying %s every %s (loop=%t)", *replayPath, *replayInterval, *replayLoop)
		return serialmux.NewReplaySerialMux(data, *replayInterval, *replayLoop), nil
	default:
		m, err := serialmux.NewRealSerialMux(*port, serialmux.OptionsFromConfig(cfg.GetSerial()))
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("pathplanner %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	planner, err := pathplan.NewPlanner(plannerParams(cfg))
	if err != nil {
		log.Fatalf("failed to create planner: %v", err)
	}

	link, err := openLink(cfg)
	if err != nil {
		log.Fatalf("failed to open frame link: %v", err)
	}
	defer link.Close()

	var (
		database *db.DB
		writer   *db.OutputWriter
		runID    string
	)
	if *dbPath != "" {
		database, err = db.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			log.Fatalf("failed to encode config: %v", err)
		}
		run, err := database.CreateRun(time.Now(), version.Version, string(cfgJSON))
		if err != nil {
			log.Fatalf("failed to create run: %v", err)
		}
		runID = run.ID
		writer = db.NewOutputWriter(database, runID, 1024)
		log.Printf("recording run %s to %s", runID, *dbPath)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor frame link: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	frames := make(chan *pathplan.InputSample, 1)
	speed := &speedHolder{}
	stats := &decoderStats{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := link.Subscribe()
		defer link.Unsubscribe(id)
		runDecoder(ctx, lines, frames, speed, stats, monitoring.NewLimiter(5*time.Second))
		log.Printf("decoder routine terminated: models=%d skipped=%d car_state=%d bad=%d",
			stats.models.Load(), stats.skipped.Load(), stats.carState.Load(), stats.bad.Load())
	}()

	if writer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := writer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("output writer stopped: %v", err)
			}
			written, dropped := writer.Stats()
			log.Printf("output writer terminated: written=%d dropped=%d", written, dropped)
		}()
	}

	snapshots := &api.SnapshotStore{}
	loop := &controlLoop{
		Planner:     planner,
		Clock:       timeutil.RealClock{},
		Interval:    cfg.GetLoopInterval(),
		Frames:      pathplan.ChanReceiver(frames),
		Speed:       speed,
		Snapshots:   snapshots,
		Writer:      writer,
		RecordEvery: cfg.GetRecordEvery(),
		RunID:       runID,
		Version:     version.Version,
		Log:         monitoring.NewLimiter(time.Second),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("control loop stopped: %v", err)
			stop()
		}
		log.Printf("control loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(snapshots, link, database).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
