//go:build gocv

package detector

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/sfm/tilapia-camera/pkg/types"
)

// ONNXModel runs a YOLOv8 ONNX export through the OpenCV DNN module
type ONNXModel struct {
	mu       sync.Mutex
	net      gocv.Net
	path     string
	opts     ONNXOptions
	loadTime time.Duration
}

// NewONNXModel loads the network once. A failure here is fatal to startup.
func NewONNXModel(path string, opts ONNXOptions) (*ONNXModel, error) {
	opts = opts.withDefaults()
	start := time.Now()

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("%w: could not read ONNX network from %s", ErrModelLoad, path)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	return &ONNXModel{
		net:      net,
		path:     path,
		opts:     opts,
		loadTime: time.Since(start),
	}, nil
}

// Infer performs one forward pass and decodes the [1, 4+nc, N] output
func (m *ONNXModel) Infer(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := m.opts.InputSize
	blob, err := inputBlob(frame, size)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	b := frame.Bounds()
	boxes, scores := decodeYOLO(data, dims[1], dims[2], float32(b.Dx())/float32(size),
		float32(b.Dy())/float32(size), m.opts.ScoreThreshold)
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, m.opts.ScoreThreshold, m.opts.NMSThreshold)
	out := make([]types.Detection, 0, len(keep))
	for _, idx := range keep {
		out = append(out, types.Detection{
			Box:        boxes[idx].Add(b.Min),
			Confidence: float64(scores[idx]),
		})
	}
	return out, nil
}

// Info describes the loaded network
func (m *ONNXModel) Info() ModelInfo {
	return ModelInfo{Backend: "onnx", Artifact: m.path, LoadTime: m.loadTime}
}

// Close releases the network
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

// inputBlob scales frame to a size x size NCHW blob in RGB order with values
// in [0, 1]. The Mat from ImageToMatRGB is BGR, so the blob swaps R and B.
func inputBlob(frame image.Image, size int) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()
	return gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false), nil
}
