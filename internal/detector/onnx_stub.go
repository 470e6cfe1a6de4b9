//go:build !gocv

package detector

import (
	"context"
	"fmt"
	"image"

	"github.com/sfm/tilapia-camera/pkg/types"
)

// ONNXModel is unavailable without the gocv build tag
type ONNXModel struct{}

// NewONNXModel always fails when built without OpenCV.
func NewONNXModel(path string, opts ONNXOptions) (*ONNXModel, error) {
	return nil, fmt.Errorf("%w: %s: gocv build tag is not enabled", ErrModelLoad, path)
}

// Infer is never reached; NewONNXModel does not return a model
func (m *ONNXModel) Infer(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	return nil, fmt.Errorf("gocv build tag is not enabled")
}

// Info describes the missing backend
func (m *ONNXModel) Info() ModelInfo {
	return ModelInfo{Backend: "onnx (disabled)"}
}

// Close is a no-op
func (m *ONNXModel) Close() error {
	return nil
}
