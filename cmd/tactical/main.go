package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/tactical/internal/annunciator"
	"github.com/banshee-data/tactical/internal/api"
	"github.com/banshee-data/tactical/internal/config"
	"github.com/banshee-data/tactical/internal/health"
	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/source"
	"github.com/banshee-data/tactical/internal/tactical/storage/sqlite"
	"github.com/banshee-data/tactical/internal/timeutil"
	"github.com/banshee-data/tactical/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen    = flag.String("grpc-listen", ":50061", "gRPC health listen address (empty disables)")
	dbFile        = flag.String("db", "tactical.db", "Path to the SQLite database file")
	configFile    = flag.String("config", "", "Path to a tuning config JSON file (default: built-in defaults, as in "+config.DefaultConfigPath+")")
	cameraList    = flag.String("cameras", "left,right", "Comma-separated camera names, in merge order")
	intrinsicsDir = flag.String("intrinsics-dir", "", "Directory holding <camera>_matrix.txt and <camera>_distortion.txt")
	udpAddr       = flag.String("udp", ":7300", "UDP address for live frames (empty disables)")
	rcvBuf        = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	replayFile    = flag.String("replay", "", "Replay frames from a JSONL recording")
	pcapFile      = flag.String("pcap", "", "Replay frames from a pcap capture")
	pcapPort      = flag.Int("pcap-port", 7300, "UDP destination port to extract from the pcap capture")
	device        = flag.String("annunciator", "", "Serial device for the alert annunciator (\"mock\" echoes to stdout, empty disables)")
	baud          = flag.Int("baud", 9600, "Annunciator baud rate")
	diagLog       = flag.Bool("diag", false, "Enable diagnostic logging")
	traceLog      = flag.Bool("trace", false, "Enable per-tick trace logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// alertDevice is the annunciator surface main drives, whichever port
// type backs it.
type alertDevice interface {
	pipeline.AlertSink
	Initialize() error
	Monitor(ctx context.Context) error
	AttachAdminRoutes(mux *http.ServeMux)
	Close() error
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *replayFile != "" && *pcapFile != "" {
		log.Fatal("-replay and -pcap are mutually exclusive")
	}

	setupLogging(*diagLog, *traceLog)

	cfg := loadConfig(*configFile)
	names, err := parseCameraList(*cameraList)
	if err != nil {
		log.Fatalf("invalid -cameras: %v", err)
	}

	store, err := sqlite.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	log.Printf("session %s, database %s", store.SessionID(), *dbFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := source.NewHub(names...)
	cams, err := buildCameras(ctx, store, hub, names, *intrinsicsDir, cfg.ActiveZoneRadii())
	if err != nil {
		log.Fatalf("failed to set up cameras: %v", err)
	}

	pcfg, err := pipeline.ConfigFromTuning(cfg)
	if err != nil {
		log.Fatalf("invalid tuning config: %v", err)
	}
	proc, err := pipeline.New(pcfg, cams, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to create pipeline: %v", err)
	}
	proc.AddAlertSink(store)
	proc.AddCalibrationSink(store)

	dev, err := openAnnunciator(*device, *baud)
	if err != nil {
		log.Fatalf("failed to open annunciator: %v", err)
	}
	if dev != nil {
		defer dev.Close()
		if err := dev.Initialize(); err != nil {
			log.Fatalf("failed to initialize annunciator: %v", err)
		}
		proc.AddAlertSink(dev)
	}

	var wg sync.WaitGroup

	if dev != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dev.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("annunciator monitor failed: %v", err)
			}
			log.Print("annunciator monitor terminated")
		}()
	}

	if *grpcListen != "" {
		hcfg := health.DefaultConfig()
		hcfg.ListenAddr = *grpcListen
		hs := health.NewServer(hcfg, proc, timeutil.RealClock{})
		if err := hs.Start(); err != nil {
			log.Fatalf("failed to start health server: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hs.Run(ctx)
			hs.Stop()
			log.Print("health server stopped")
		}()
	}

	if *udpAddr != "" {
		listener := source.NewUDPListener(source.UDPListenerConfig{Address: *udpAddr, RcvBuf: *rcvBuf, Hub: hub})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener failed: %v", err)
			}
			received, rejected := listener.Counts()
			log.Printf("UDP listener stopped: %d frames received, %d rejected", received, rejected)
		}()
	}

	if *replayFile != "" || *pcapFile != "" {
		ticks, err := loadRecording(*replayFile, *pcapFile, *pcapPort)
		if err != nil {
			log.Fatalf("failed to load recording: %v", err)
		}
		log.Printf("replaying %d ticks", len(ticks))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Play(ctx, ticks, hub, timeutil.RealClock{}, cfg.GetTickInterval()); err != nil && err != context.Canceled {
				log.Printf("replay failed: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(proc, store, cfg.GetUnits())
		mux := apiServer.ServeMux()
		apiServer.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}
		if dev != nil {
			dev.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP listening on %s", *listen)
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
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func setupLogging(diag, trace bool) {
	w := tactical.LogWriters{Ops: os.Stdout}
	if diag {
		w.Diag = os.Stdout
	}
	if trace {
		w.Trace = os.Stdout
	}
	tactical.SetLogWriters(w)
}

func loadConfig(path string) *config.TuningConfig {
	if path == "" {
		return config.DefaultTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", path, err)
	}
	log.Printf("loaded tuning config %s", path)
	return cfg
}

// openAnnunciator returns nil when no device is named.
func openAnnunciator(path string, baud int) (alertDevice, error) {
	switch path {
	case "":
		return nil, nil
	case "mock":
		port := annunciator.NewMockPort()
		port.Echo = os.Stdout
		return annunciator.New(port), nil
	}
	return annunciator.Open(path, annunciator.PortOptions{BaudRate: baud})
}

// loadRecording reads a JSONL or pcap recording and groups it into ticks.
func loadRecording(jsonl, pcap string, port int) ([]source.Tick, error) {
	path := jsonl
	if path == "" {
		path = pcap
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var frames []tactical.Frame
	if pcap != "" || strings.HasSuffix(path, ".pcap") {
		frames, err = source.ReadPcapFrames(f, port)
	} else {
		frames, err = source.ReadFrames(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return source.GroupTicks(frames), nil
}
