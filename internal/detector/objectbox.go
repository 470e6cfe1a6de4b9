package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"time"

	"github.com/machinebox/sdk-go/objectbox"

	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/pkg/types"
)

type objectChecker interface {
	Check(r io.Reader) (objectbox.CheckResponse, error)
}

// ObjectboxModel sends frames to a Machine Box objectbox instance
type ObjectboxModel struct {
	client   objectChecker
	addr     string
	detector string
	loadTime time.Duration
}

// NewObjectboxModel connects to the box at addr. detectorName restricts
// results to one trained detector; empty accepts all of them.
func NewObjectboxModel(addr, detectorName string) (*ObjectboxModel, error) {
	start := time.Now()
	client := objectbox.New(addr)
	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: objectbox at %s: %v", ErrModelLoad, addr, err)
	}
	logger.Info("Detector", "Connected to box: %s %s %s %d", info.Build, info.Name, info.Status, info.Version)

	return &ObjectboxModel{
		client:   client,
		addr:     addr,
		detector: detectorName,
		loadTime: time.Since(start),
	}, nil
}

// Infer encodes the frame as JPEG and maps every returned object to a detection
func (m *ObjectboxModel) Infer(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	resp, err := m.client.Check(&buf)
	if err != nil {
		return nil, fmt.Errorf("objectbox check: %w", err)
	}
	return objectboxDetections(resp, m.detector), nil
}

func objectboxDetections(resp objectbox.CheckResponse, detectorName string) []types.Detection {
	var out []types.Detection
	for _, d := range resp.Detectors {
		if detectorName != "" && d.Name != detectorName && d.ID != detectorName {
			continue
		}
		for _, obj := range d.Objects {
			r := obj.Rect
			out = append(out, types.Detection{
				Box:        image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height),
				Confidence: obj.Score,
			})
		}
	}
	return out
}

// Info describes the box connection
func (m *ObjectboxModel) Info() ModelInfo {
	return ModelInfo{Backend: "objectbox", Artifact: m.addr, LoadTime: m.loadTime}
}

// Close is a no-op; the box is a remote service
func (m *ObjectboxModel) Close() error {
	return nil
}
