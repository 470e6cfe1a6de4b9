package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sfm/tilapia-camera/internal/camera"
	"github.com/sfm/tilapia-camera/internal/config"
	"github.com/sfm/tilapia-camera/internal/correlator"
	"github.com/sfm/tilapia-camera/internal/detector"
	"github.com/sfm/tilapia-camera/internal/emitter"
	"github.com/sfm/tilapia-camera/internal/engine"
	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/measure"
	"github.com/sfm/tilapia-camera/internal/metrics"
	"github.com/sfm/tilapia-camera/internal/recorder"
	"github.com/sfm/tilapia-camera/internal/snapshot"
	"github.com/sfm/tilapia-camera/internal/webmonitor"
)

var (
	// Command-line flags
	configPath  = flag.String("config", "", "YAML config file (defaults apply when empty)")
	httpAddr    = flag.String("http", "", "HTTP server address (overrides http.addr)")
	metricsAddr = flag.String("metrics", "", "Metrics server address (overrides http.metrics_addr)")
	assetsDir   = flag.String("assets", webmonitor.DefaultConfig().AssetsDir, "Web assets directory")
	stillImage  = flag.String("still", "", "Replay this image instead of opening the camera")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

// Daemon is the assembled camera pipeline
type Daemon struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	detector   *detector.Detector
	recorder   *recorder.Recorder
	engine     *engine.Engine
	emitter    *emitter.MQTTEmitter
	monitor    *webmonitor.Server
	httpServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)

	logger.Info("Main", "Tilapia camera daemon starting...")
	logger.Info("Main", "Log level: %s", level)
	if cfg.InsecureKey() {
		logger.Warn("Main", "Using the built-in API key; set %s or remote.api_key", config.APIKeyEnv)
	}

	d, err := NewDaemon(cfg)
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	if err := d.Start(); err != nil {
		log.Fatalf("Failed to start daemon: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	if err := d.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Daemon stopped")
}

// loadConfig reads the config file and applies explicitly set flags on top
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv(os.LookupEnv)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "metrics":
			cfg.HTTP.MetricsAddr = *metricsAddr
		case "still":
			cfg.Camera.StillImage = *stillImage
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDaemon wires every component from cfg
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	m := metrics.New()

	model, err := openModel(cfg.Detector)
	if err != nil {
		return nil, err
	}
	det := detector.New(model, m)
	info := det.Info()
	logger.Info("Main", "Detector: %s (%s, loaded in %v)", info.Backend, info.Artifact, info.LoadTime)

	if err := os.MkdirAll(cfg.Snapshot.OutputDir, 0755); err != nil {
		det.Close()
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	rec := recorder.NewRecorder(cfg.Snapshot.OutputDir, cfg.Snapshot.Filename, m)

	store := snapshot.NewStore()
	pub := snapshot.NewPublisher(store, rec, snapshot.Options{
		Interval:         cfg.Snapshot.Interval,
		ClearStaleWeight: cfg.Snapshot.ClearStaleWeight,
	}, m)
	pipe := measure.NewPipeline(cfg.Calibration)

	eng := engine.New(engine.Config{
		FPS:    cfg.Camera.FPS,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}, opener(cfg.Camera), det, pipe, pub, m)

	client := correlator.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, cfg.Remote.Timeout)
	corr := correlator.New(client, store, cfg.Remote.DocPrefix, m)

	d := &Daemon{
		cfg:      cfg,
		metrics:  m,
		detector: det,
		recorder: rec,
		engine:   eng,
	}

	deps := webmonitor.Deps{
		Camera:     eng,
		Store:      store,
		Publisher:  pub,
		Recorder:   rec,
		Correlator: corr,
		Sampling:   client,
		Metrics:    m,
	}

	if cfg.MQTT.Broker != "" {
		d.emitter = emitter.NewMQTTEmitter(cfg.MQTT)
		store.Subscribe(d.emitter.Listener())
		deps.Emitter = d.emitter
	}

	monitorCfg := webmonitor.DefaultConfig()
	monitorCfg.Addr = cfg.HTTP.Addr
	monitorCfg.AssetsDir = *assetsDir
	monitorCfg.StatusInterval = cfg.HTTP.StatusInterval
	monitorCfg.MJPEGInterval = cfg.HTTP.MJPEGInterval
	d.monitor = webmonitor.NewServer(monitorCfg, deps)

	d.httpServer = &http.Server{
		Addr:    monitorCfg.Addr,
		Handler: d.monitor.Handler(),
	}
	return d, nil
}

func openModel(cfg config.DetectorConfig) (detector.Model, error) {
	if cfg.Backend == "objectbox" {
		model, err := detector.NewObjectboxModel(cfg.Objectbox.Addr, cfg.Objectbox.Detector)
		if err != nil {
			return nil, err
		}
		return model, nil
	}
	model, err := detector.NewONNXModel(cfg.ModelPath, detector.ONNXOptions{
		InputSize:      cfg.InputSize,
		ScoreThreshold: cfg.ScoreThreshold,
		NMSThreshold:   cfg.NMSThreshold,
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

func opener(cfg config.CameraConfig) camera.Opener {
	if cfg.StillImage != "" {
		return func() (camera.Source, error) {
			src, err := camera.OpenStill(cfg.StillImage)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	}
	return func() (camera.Source, error) {
		return camera.OpenWebcam(cfg.Device, cfg.Width, cfg.Height)
	}
}

// Start starts all daemon components
func (d *Daemon) Start() error {
	logger.Info("Main", "Starting daemon...")
	logger.Info("Main", "  HTTP server: %s", d.httpServer.Addr)
	logger.Info("Main", "  Metrics server: %s", d.cfg.HTTP.MetricsAddr)
	logger.Info("Main", "  Snapshot path: %s", d.recorder.Path())
	logger.Info("Main", "  Weight service: %s", d.cfg.Remote.BaseURL)

	if err := d.recorder.Start(); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	if d.emitter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := d.emitter.Connect(ctx)
		cancel()
		if err != nil {
			// Snapshots still work without the broker
			logger.Warn("Main", "MQTT unavailable, continuing without it: %v", err)
		}
	}

	// Start metrics server
	go func() {
		logger.Info("Main", "Starting metrics server on %s", d.cfg.HTTP.MetricsAddr)
		if err := d.metrics.StartServer(d.cfg.HTTP.MetricsAddr); err != nil {
			logger.Error("Main", "Metrics server error: %v", err)
		}
	}()

	// Start HTTP server
	go func() {
		logger.Info("Main", "Starting HTTP server on %s", d.httpServer.Addr)
		if err := d.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "HTTP server error: %v", err)
		}
	}()

	if err := d.engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	logger.Info("Main", "Daemon started successfully")
	return nil
}

// Shutdown stops the daemon in reverse start order
func (d *Daemon) Shutdown() error {
	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	d.monitor.Close()

	if d.engine.IsRunning() {
		if err := d.engine.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("engine: %w", err))
		}
	}
	if err := d.recorder.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}
	if d.emitter != nil {
		if err := d.emitter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if err := d.detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}

	return errors.Join(errs...)
}
