// Package camera provides frame sources for the processing loop.
package camera

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/sfm/tilapia-camera/pkg/types"
)

const (
	// DefaultWidth and DefaultHeight are the requested capture resolution
	DefaultWidth  = 1280
	DefaultHeight = 720

	// NoCameraText is drawn while no capture device is open
	NoCameraText = "No camera detected"
	// WaitingText is drawn when an open device returns no frame
	WaitingText = "Waiting for camera..."
)

// ErrNoCamera is returned when a capture device cannot be opened
var ErrNoCamera = errors.New("camera: no capture device")

// Source yields frames. NextFrame reports false when no frame is ready;
// the caller shows a placeholder for that tick.
type Source interface {
	NextFrame() (*types.Frame, bool)
	Close() error
}

// Opener opens a fresh Source; called on every engine start
type Opener func() (Source, error)

var placeholderColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}

var (
	placeholderMu    sync.Mutex
	placeholderCache = map[string]*image.RGBA{}
)

// Placeholder returns a black frame with text drawn on it. Frames are
// cached per text and size; callers must not modify them.
func Placeholder(text string, width, height int) *image.RGBA {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	key := fmt.Sprintf("%s@%dx%d", text, width, height)

	placeholderMu.Lock()
	defer placeholderMu.Unlock()
	if img, ok := placeholderCache[key]; ok {
		return img
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(placeholderColor)
	x := float64(width) * 200 / DefaultWidth
	y := float64(height) / 2
	dc.DrawString(text, x, y)

	img := toRGBA(dc.Image())
	placeholderCache[key] = img
	return img
}

// PlaceholderFrame wraps Placeholder in a Frame stamped with now
func PlaceholderFrame(text string, width, height int, num uint64, now time.Time) *types.Frame {
	return types.NewFrame(Placeholder(text, width, height), num, now)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
