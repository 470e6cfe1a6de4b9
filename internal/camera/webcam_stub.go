//go:build !gocv

package camera

import "fmt"

// OpenWebcam always fails in builds without the gocv tag
func OpenWebcam(device string, width, height int) (Source, error) {
	return nil, fmt.Errorf("%w: %s (built without gocv)", ErrNoCamera, device)
}
