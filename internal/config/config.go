package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sfm/tilapia-camera/internal/calibration"
)

const (
	// APIKeyEnv overrides remote.api_key
	APIKeyEnv = "API_KEY"
	// DefaultAPIKey is the fallback key the weight service ships with
	DefaultAPIKey = "default-api-key"
)

// Config represents the complete daemon configuration
type Config struct {
	Calibration calibration.Calibration `yaml:"calibration"`
	Snapshot    SnapshotConfig          `yaml:"snapshot"`
	Detector    DetectorConfig          `yaml:"detector"`
	Camera      CameraConfig            `yaml:"camera"`
	Remote      RemoteConfig            `yaml:"remote"`
	MQTT        MQTTConfig              `yaml:"mqtt"`
	HTTP        HTTPConfig              `yaml:"http"`
	Log         LogConfig               `yaml:"log"`
}

// SnapshotConfig contains publish gate and frame persistence settings
type SnapshotConfig struct {
	OutputDir        string        `yaml:"output_dir"`
	Filename         string        `yaml:"filename"`
	Interval         time.Duration `yaml:"interval"`           // minimum spacing between publishes
	ClearStaleWeight bool          `yaml:"clear_stale_weight"` // drop the weight when a different fish is published
}

// DetectorConfig selects and configures the model backend
type DetectorConfig struct {
	Backend        string          `yaml:"backend"` // onnx, objectbox
	ModelPath      string          `yaml:"model_path"`
	InputSize      int             `yaml:"input_size"`
	ScoreThreshold float32         `yaml:"score_threshold"`
	NMSThreshold   float32         `yaml:"nms_threshold"`
	Objectbox      ObjectboxConfig `yaml:"objectbox"`
}

// ObjectboxConfig points at a running objectbox container
type ObjectboxConfig struct {
	Addr     string `yaml:"addr"`
	Detector string `yaml:"detector"` // detector name inside the box, empty for any
}

// CameraConfig contains capture settings
type CameraConfig struct {
	Device     string `yaml:"device"` // device index or stream URL
	FPS        int    `yaml:"fps"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	StillImage string `yaml:"still_image"` // replay this file instead of opening a device
}

// RemoteConfig contains weight service settings
type RemoteConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	DocPrefix string        `yaml:"doc_prefix"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// HTTPConfig contains monitor and metrics listener settings
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	StatusInterval time.Duration `yaml:"status_interval"`
	MJPEGInterval  time.Duration `yaml:"mjpeg_interval"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Calibration: calibration.Default(),
		Snapshot: SnapshotConfig{
			OutputDir:        "output_frames",
			Filename:         "frame.png",
			Interval:         3 * time.Second,
			ClearStaleWeight: true,
		},
		Detector: DetectorConfig{
			Backend:        "onnx",
			ModelPath:      "best_SMF.onnx",
			InputSize:      640,
			ScoreThreshold: 0.25,
			NMSThreshold:   0.7,
			Objectbox: ObjectboxConfig{
				Addr: "http://localhost:8083",
			},
		},
		Camera: CameraConfig{
			Device: "0",
			FPS:    20,
			Width:  1280,
			Height: 720,
		},
		Remote: RemoteConfig{
			BaseURL:   "https://sfm-ver-two.on-forge.com/api",
			Timeout:   10 * time.Second,
			DocPrefix: "DOC-",
		},
		MQTT: MQTTConfig{
			Topic:    "tilapia/snapshot",
			ClientID: "tilapia-camera",
			QoS:      1,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			MetricsAddr:    ":9090",
			StatusInterval: time.Second,
			MJPEGInterval:  50 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads a YAML file over the defaults, applies the environment and
// validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv copies environment overrides into cfg
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if key, ok := lookup(APIKeyEnv); ok && key != "" {
		c.Remote.APIKey = key
	}
}

// ResolveAPIKey picks the key for tools without a config file: an explicit
// key first, then the environment, then the built-in key. builtin reports
// the last case so callers can warn about it.
func ResolveAPIKey(explicit string, lookup func(string) (string, bool)) (key string, builtin bool) {
	if explicit != "" {
		return explicit, explicit == DefaultAPIKey
	}
	if env, ok := lookup(APIKeyEnv); ok && env != "" {
		return env, env == DefaultAPIKey
	}
	return DefaultAPIKey, true
}

// InsecureKey reports whether the shared fallback key is in use
func (c *Config) InsecureKey() bool {
	return c.Remote.APIKey == "" || c.Remote.APIKey == DefaultAPIKey
}
