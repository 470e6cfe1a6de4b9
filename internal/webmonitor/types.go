package webmonitor

import (
	"github.com/sfm/tilapia-camera/internal/correlator"
	"github.com/sfm/tilapia-camera/internal/emitter"
	"github.com/sfm/tilapia-camera/internal/engine"
	"github.com/sfm/tilapia-camera/internal/recorder"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

// StatusPayload is the body of /api/status and each status stream event.
type StatusPayload struct {
	Published snapshot.PublishedState `json:"published"`
	Camera    engine.Status           `json:"camera"`
	Publisher string                  `json:"publisher"`
	Recorder  *recorder.Status        `json:"recorder,omitempty"`
	MQTT      *emitter.Stats          `json:"mqtt,omitempty"`
	Stats     Counters                `json:"stats"`
	Timestamp float64                 `json:"timestamp"`
}

// Counters mirrors the Prometheus counters for the HTML page.
type Counters struct {
	FramesProcessed    uint64 `json:"frames_processed"`
	PlaceholderFrames  uint64 `json:"placeholder_frames"`
	DetectionsKept     uint64 `json:"detections_kept"`
	DetectionsFiltered uint64 `json:"detections_filtered"`
	InferenceErrors    uint64 `json:"inference_errors"`
	Publishes          uint64 `json:"publishes"`
	StorageErrors      uint64 `json:"storage_errors"`
	CorrelationsOK     uint64 `json:"correlations_ok"`
	CorrelationsFailed uint64 `json:"correlations_failed"`
	ProcessLatencyMs   uint64 `json:"process_latency_ms"`
	StreamClients      int64  `json:"stream_clients"`
}

// WeightRequest is the body of POST /api/weight.
type WeightRequest struct {
	Doc string `json:"doc"`
}

// WeightResponse is returned after a successful correlation.
type WeightResponse struct {
	Result    correlator.WeightResult `json:"result"`
	Published snapshot.PublishedState `json:"published"`
}
