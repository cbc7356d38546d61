package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/motion.report/internal/api"
	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/pose"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/trace"
	"github.com/banshee-data/motion.report/internal/units"
)

var (
	listen       = flag.String("listen", ":8080", "Listen address")
	dbPath       = flag.String("db", "motion.db", "Path to the sqlite database")
	tuningPath   = flag.String("config", "", "Path to a tuning config JSON (defaults built in)")
	replayPath   = flag.String("replay", "", "Replay a recorded pose log CSV instead of a live feed")
	realtime     = flag.Bool("realtime", true, "Pace replay by record timestamps")
	synthetic    = flag.Bool("synthetic", false, "Use the built-in synthetic pose feed")
	exportDir    = flag.String("export-dir", "exports", "Directory for CSV exports (empty disables)")
	displayUnits = flag.String("units", units.Meters, "Display units for deviations ("+units.GetValidUnitsString()+")")
	verbose      = flag.Bool("verbose", false, "Log per-sample diagnostics")
)

func main() {
	flag.Parse()

	// Subcommands run before any of the long-lived machinery starts.
	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("Invalid units %q (valid: %s)", *displayUnits, units.GetValidUnitsString())
	}
	monitoring.Verbose = *verbose

	var tuning *config.TuningConfig
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		tuning = config.MustLoadDefaultConfig()
	}

	var source pose.Source
	switch {
	case *replayPath != "":
		var err error
		source, err = pose.NewReplaySource(*replayPath, *realtime)
		if err != nil {
			log.Fatalf("Failed to open pose log: %v", err)
		}
	case *synthetic:
		source = pose.NewSyntheticSource()
	default:
		log.Fatal("A pose source is required: -replay <file> or -synthetic")
	}
	defer source.Close()

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	engineCfg := trace.EngineConfigFromTuning(tuning)
	engineCfg.ExportDir = *exportDir
	engine := trace.NewEngine(engineCfg, tuning, source, timeutil.RealClock{}, database)
	if err := database.InsertSession(engine.SessionID(), time.Now()); err != nil {
		log.Fatalf("Failed to record session: %v", err)
	}
	log.Printf("Session %s started", engine.SessionID())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Engine goroutine: owns every state transition.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	// HTTP server goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(engine, database, tuning, *displayUnits).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("Listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if engine.Snapshot().SessionComplete {
		if err := database.CompleteSession(engine.SessionID(), time.Now()); err != nil {
			log.Printf("failed to mark session complete: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
