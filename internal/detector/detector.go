// Package detector wraps a single object-detection call per frame and
// applies the fixed confidence cutoff.
package detector

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/metrics"
	"github.com/sfm/tilapia-camera/pkg/types"
)

// ConfidenceCutoff is the hard retention threshold. Detections with a
// confidence at or above it are kept, anything below is dropped.
const ConfidenceCutoff = 0.9

// ErrModelLoad is returned when a model artifact cannot be loaded.
var ErrModelLoad = errors.New("model load failure")

// Model runs inference on a single frame
type Model interface {
	Infer(ctx context.Context, frame image.Image) ([]types.Detection, error)
	Info() ModelInfo
	Close() error
}

// ModelInfo describes the loaded backend
type ModelInfo struct {
	Backend  string        // "onnx", "objectbox"
	Artifact string        // Model path or box address
	LoadTime time.Duration // Time taken to initialize
}

// Detector filters model output for one frame at a time
type Detector struct {
	model   Model
	cutoff  float64
	metrics *metrics.Metrics
}

// New returns a Detector using the fixed ConfidenceCutoff. m may be nil.
func New(model Model, m *metrics.Metrics) *Detector {
	return &Detector{
		model:   model,
		cutoff:  ConfidenceCutoff,
		metrics: m,
	}
}

// Detect runs the model once. An inference error is logged and yields no
// detections so the frame loop keeps going.
func (d *Detector) Detect(ctx context.Context, frame *types.Frame) []types.Detection {
	if frame == nil || frame.Image == nil {
		return nil
	}

	raw, err := d.model.Infer(ctx, frame.Image)
	if err != nil {
		if d.metrics != nil {
			d.metrics.InferenceErrors.Add(1)
		}
		logger.Warn("Detector", "Model inference error on frame %d: %v", frame.FrameNum, err)
		return nil
	}

	kept := make([]types.Detection, 0, len(raw))
	for _, det := range raw {
		if det.Confidence < d.cutoff || det.Box.Empty() {
			continue
		}
		kept = append(kept, det)
	}

	if d.metrics != nil {
		d.metrics.DetectionsKept.Add(uint64(len(kept)))
		d.metrics.DetectionsFiltered.Add(uint64(len(raw) - len(kept)))
	}
	return kept
}

// Info returns the backend description
func (d *Detector) Info() ModelInfo {
	return d.model.Info()
}

// Close releases the model
func (d *Detector) Close() error {
	return d.model.Close()
}
