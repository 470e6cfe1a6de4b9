package types

import (
	"image"
	"time"
)

// Frame is a single decoded camera frame with capture metadata
type Frame struct {
	Image     image.Image // Decoded pixels
	Timestamp time.Time   // Frame capture timestamp
	FrameNum  uint64      // Sequential frame number
	Width     int         // Frame width
	Height    int         // Frame height
}

// NewFrame wraps img with its dimensions
func NewFrame(img image.Image, num uint64, ts time.Time) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:     img,
		Timestamp: ts,
		FrameNum:  num,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
}

// Detection is one model output in frame pixel coordinates
type Detection struct {
	Box        image.Rectangle // x1<x2, y1<y2
	Confidence float64         // 0.0 - 1.0
}

// PixelWidth returns the horizontal extent of the box
func (d Detection) PixelWidth() float64 {
	return float64(d.Box.Dx())
}

// PixelLength returns the vertical extent of the box
func (d Detection) PixelLength() float64 {
	return float64(d.Box.Dy())
}
