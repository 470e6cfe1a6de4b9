package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/sfm/tilapia-camera/internal/logger"
)

// Validate checks the configuration and fills unset optional values
func Validate(cfg *Config) error {
	if err := cfg.Calibration.Validate(); err != nil {
		return err
	}

	// Snapshot
	if cfg.Snapshot.OutputDir == "" {
		return fmt.Errorf("snapshot.output_dir is required")
	}
	if cfg.Snapshot.Filename == "" {
		cfg.Snapshot.Filename = "frame.png"
	}
	if cfg.Snapshot.Interval < 0 {
		return fmt.Errorf("snapshot.interval must be >= 0")
	}
	if cfg.Snapshot.Interval == 0 {
		cfg.Snapshot.Interval = 3 * time.Second
	}

	// Detector
	switch cfg.Detector.Backend {
	case "onnx":
		if cfg.Detector.ModelPath == "" {
			return fmt.Errorf("detector.model_path is required for the onnx backend")
		}
	case "objectbox":
		if _, err := parseHTTPURL(cfg.Detector.Objectbox.Addr); err != nil {
			return fmt.Errorf("detector.objectbox.addr: %w", err)
		}
	default:
		return fmt.Errorf("detector.backend: unknown backend '%s' (must be 'onnx' or 'objectbox')", cfg.Detector.Backend)
	}
	if cfg.Detector.InputSize < 0 {
		return fmt.Errorf("detector.input_size must be >= 0")
	}

	// Camera
	if cfg.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}
	if cfg.Camera.Device == "" && cfg.Camera.StillImage == "" {
		return fmt.Errorf("camera.device or camera.still_image is required")
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		cfg.Camera.Width, cfg.Camera.Height = 1280, 720
	}

	// Remote
	if _, err := parseHTTPURL(cfg.Remote.BaseURL); err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = DefaultAPIKey
	}
	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	if cfg.Remote.DocPrefix == "" {
		cfg.Remote.DocPrefix = "DOC-"
	}

	// MQTT
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "tilapia/snapshot"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "tilapia-camera"
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// HTTP
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if cfg.HTTP.StatusInterval <= 0 {
		cfg.HTTP.StatusInterval = time.Second
	}
	if cfg.HTTP.MJPEGInterval <= 0 {
		cfg.HTTP.MJPEGInterval = 50 * time.Millisecond
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	return u, nil
}
