//go:build gocv

package camera

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/pkg/types"
)

// Webcam reads frames from a V4L2/DirectShow device or a stream URL
type Webcam struct {
	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
	num uint64
}

// OpenWebcam opens device (an index such as "0" or a URL) at the
// requested resolution
func OpenWebcam(device string, width, height int) (Source, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoCamera, device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoCamera, device)
	}
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	logger.Info("Camera", "Opened %s (%.0fx%.0f)", device,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))
	return &Webcam{cap: vc, mat: gocv.NewMat()}, nil
}

// NextFrame reads one frame. A failed read or an empty frame reports false.
func (w *Webcam) NextFrame() (*types.Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap == nil {
		return nil, false
	}
	if ok := w.cap.Read(&w.mat); !ok || w.mat.Empty() {
		return nil, false
	}
	img, err := w.mat.ToImage()
	if err != nil {
		logger.Warn("Camera", "Frame conversion failed: %v", err)
		return nil, false
	}
	w.num++
	return types.NewFrame(img, w.num, time.Now()), true
}

// Close releases the device
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap == nil {
		return nil
	}
	err := w.cap.Close()
	w.mat.Close()
	w.cap = nil
	return err
}
