package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sfm/tilapia-camera/internal/calibration"
	"github.com/sfm/tilapia-camera/internal/config"
	"github.com/sfm/tilapia-camera/internal/correlator"
	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/measure"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

func main() {
	remote := config.Default().Remote

	var (
		doc        string
		widthIn    float64
		lengthIn   float64
		samplingID int64
		daemonURL  string
		logLevel   string
		logColor   bool
	)

	flag.StringVar(&doc, "doc", "", "Sampling DOC identifier, e.g. DOC-42")
	flag.Float64Var(&widthIn, "width", 0, "Fish width in inches")
	flag.Float64Var(&lengthIn, "length", 0, "Fish length in inches")
	flag.Int64Var(&samplingID, "next", 0, "Print the next unfilled sample of this sampling id and exit")
	flag.StringVar(&daemonURL, "daemon", "", "Ask a running daemon (e.g. http://localhost:8080) instead of the weight service")
	flag.StringVar(&remote.BaseURL, "base-url", remote.BaseURL, "Weight service base URL")
	flag.StringVar(&remote.APIKey, "api-key", "", "Weight service API key (default $"+config.APIKeyEnv+")")
	flag.DurationVar(&remote.Timeout, "timeout", remote.Timeout, "Per-request timeout")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	var builtinKey bool
	remote.APIKey, builtinKey = config.ResolveAPIKey(remote.APIKey, os.LookupEnv)
	if builtinKey {
		logger.Warn("Main", "Using the built-in API key; set %s or -api-key", config.APIKeyEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*remote.Timeout)
	defer cancel()

	client := correlator.NewClient(remote.BaseURL, remote.APIKey, remote.Timeout)

	var out any
	switch {
	case samplingID > 0:
		out, err = client.NextSample(ctx, samplingID)
	case daemonURL != "":
		out, err = askDaemon(ctx, daemonURL, doc)
	default:
		out, err = correlate(ctx, client, doc, widthIn, lengthIn)
	}
	if err != nil {
		log.Fatalf("Weight lookup failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}

// correlate publishes the given measurement into a private store and runs
// the same correlation the daemon runs for POST /api/weight
func correlate(ctx context.Context, client *correlator.Client, doc string, widthIn, lengthIn float64) (snapshot.PublishedState, error) {
	if widthIn <= 0 || lengthIn <= 0 {
		return snapshot.PublishedState{}, fmt.Errorf("-width and -length must be positive")
	}

	cal := calibration.Default()
	store := snapshot.NewStore()
	store.Publish(measure.Measurement{
		WidthIn:    widthIn,
		LengthIn:   lengthIn,
		Stage:      calibration.ClassifyStage(widthIn, cal.Thresholds),
		Confidence: 1,
	}, time.Now(), "", false)

	corr := correlator.New(client, store, correlator.DefaultDocPrefix, nil)
	if _, err := corr.Correlate(ctx, doc); err != nil {
		return snapshot.PublishedState{}, err
	}
	return store.Snapshot(), nil
}

func askDaemon(ctx context.Context, baseURL, doc string) (map[string]any, error) {
	body, err := json.Marshal(map[string]string{"doc": doc})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/weight", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %d: %v", resp.StatusCode, payload["error"])
	}
	return payload, nil
}
