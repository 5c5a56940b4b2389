package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/canbus.report/internal/api"
	"github.com/banshee-data/canbus.report/internal/canmux"
	"github.com/banshee-data/canbus.report/internal/capture"
	"github.com/banshee-data/canbus.report/internal/config"
	"github.com/banshee-data/canbus.report/internal/db"
	"github.com/banshee-data/canbus.report/internal/dbc"
	"github.com/banshee-data/canbus.report/internal/monitor"
	"github.com/banshee-data/canbus.report/internal/monitoring"
	"github.com/banshee-data/canbus.report/internal/pipeline"
	"github.com/banshee-data/canbus.report/internal/units"
	"github.com/banshee-data/canbus.report/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode (replays a candump fixture instead of opening a serial port)")
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "canbus_data.db", "SQLite database path")
	serialPort    = flag.String("serial", "/dev/ttyACM0", "SLCAN adapter serial port")
	baudRate      = flag.Int("baud", 115200, "Serial baud rate")
	channel       = flag.String("channel", "can0", "Bus name stamped on captured frames")
	sourceID      = flag.String("source", "veh-1", "Source identity stamped on captured frames")
	speedUnits    = flag.String("units", "kmph", "Display units for API speed values (kmph, mph, mps)")
	configPath    = flag.String("config", "", "Tuning config JSON path (defaults to the built-in values)")
	replayFile    = flag.String("replay", "", "Replay a candump -L log instead of reading the serial port")
	pcapFile      = flag.String("pcap", "", "Replay a SocketCAN pcap capture instead of reading the serial port")
	pace          = flag.Bool("pace", false, "Replay with recorded inter-frame delays")
	disableSerial = flag.Bool("disable-serial", false, "Run the server without any frame source")
)

const devFixture = "fixtures/drive.log"

func loadTuning() *config.TuningConfig {
	if *configPath != "" {
		cfg, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		return cfg
	}
	return config.MustLoadDefaultConfig()
}

func loadDictionary(cfg *config.TuningConfig) *dbc.Dictionary {
	if path := cfg.GetDictionaryPath(); path != "" {
		dict, err := dbc.Load(path)
		if err != nil {
			log.Fatalf("failed to load signal dictionary: %v", err)
		}
		return dict
	}
	dict, err := dbc.LoadEmbedded()
	if err != nil {
		log.Fatalf("failed to load embedded signal dictionary: %v", err)
	}
	return dict
}

// frameSource opens the configured frame source: a replay file, the dev
// fixture, or a live SLCAN adapter. The returned mux is nil for replays.
func frameSource(ctx context.Context) (<-chan pipeline.Frame, canmux.MuxInterface) {
	opts := capture.ReplayOptions{SourceID: *sourceID, Channel: *channel, Pace: *pace}

	switch {
	case *pcapFile != "":
		frames, err := capture.ReplayPCAP(ctx, *pcapFile, opts)
		if err != nil {
			log.Fatalf("failed to open pcap capture: %v", err)
		}
		return frames, nil

	case *replayFile != "":
		frames, err := capture.ReplayCandump(ctx, *replayFile, opts)
		if err != nil {
			log.Fatalf("failed to open replay log: %v", err)
		}
		return frames, nil

	case *devMode:
		frames, err := capture.ReplayCandump(ctx, devFixture, opts)
		if err != nil {
			log.Fatalf("failed to open dev fixture %s: %v", devFixture, err)
		}
		return frames, nil

	case *disableSerial:
		return nil, canmux.NewDisabledMux()

	default:
		m, err := canmux.NewRealMux(*serialPort, canmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", *serialPort, err)
		}
		if err := m.Initialize(); err != nil {
			log.Fatalf("failed to initialize CAN adapter: %v", err)
		}
		return nil, m
	}
}

// replayRun reports whether the frame source is finite, in which case the
// process exits once the pipeline drains it.
func replayRun() bool {
	return *replayFile != "" || *pcapFile != "" || *devMode
}

func main() {
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid units %q (valid: %s)", *speedUnits, units.GetValidUnitsString())
	}

	log.Printf("canbus.report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg := loadTuning()
	dict := loadDictionary(cfg)

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	migrationsFS, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}
	if shouldExit, err := database.CheckAndPromptMigrations(migrationsFS); err != nil {
		log.Fatalf("Failed to check migrations: %v", err)
	} else if shouldExit {
		return
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frames, m := frameSource(ctx)

	// live adapter: run the monitor routine to manage IO on the serial port
	// and convert its subscription into pipeline frames
	if m != nil {
		defer m.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()
		frames = canmux.StreamFrames(ctx, m, *channel, *sourceID, nil)
	}

	p := pipeline.New(dict, database, cfg, nil)
	log.Printf("starting ingest run %s", p.RunID())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx, frames); err != nil {
			log.Printf("pipeline stopped with error: %v", err)
		}
		c := p.Counters()
		log.Printf("ingest run %s finished: ingested=%d decoded=%d unknown=%d truncated=%d events=%d",
			p.RunID(), c.Ingested, c.Decoded, c.Unknown, c.Truncated, c.Events)
		// replays end at EOF, so bring the rest of the process down too
		if replayRun() {
			stop()
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only over
		// localhost or Tailscale)
		database.AttachAdminRoutes(mux)
		if m != nil {
			m.AttachAdminRoutes(mux)
		}
		monitor.NewMonitor(database).AttachDebugRoutes(mux)

		mux.Handle("/metrics", monitoring.MetricsHandler())

		var cmdMux canmux.MuxInterface = m
		if cmdMux == nil {
			cmdMux = canmux.NewDisabledMux()
		}
		apiMux := api.NewServer(cmdMux, database, *speedUnits, cfg).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/command", apiMux)

		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, "canbus.report telemetry daemon %s (%s)\n", version.Version, version.GitSHA)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
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
	log.Printf("Graceful shutdown complete")
}
