package camera

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/sfm/tilapia-camera/pkg/types"
)

// StillSource replays one image on every tick. Used for bench setups
// without a capture device and in tests.
type StillSource struct {
	mu     sync.Mutex
	img    image.Image
	num    uint64
	closed bool
	now    func() time.Time
}

// NewStillSource serves img
func NewStillSource(img image.Image) *StillSource {
	return &StillSource{img: img, now: time.Now}
}

// OpenStill loads a PNG or JPEG from path
func OpenStill(path string) (*StillSource, error) {
	img, err := gg.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("load still image %s: %w", path, err)
	}
	return NewStillSource(img), nil
}

// NextFrame returns the image with a fresh frame number
func (s *StillSource) NextFrame() (*types.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.img == nil {
		return nil, false
	}
	s.num++
	return types.NewFrame(s.img, s.num, s.now()), true
}

// Close makes every later NextFrame report no frame
func (s *StillSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
