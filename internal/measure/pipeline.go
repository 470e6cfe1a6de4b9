// Package measure turns filtered detections into real-world measurements
// and annotates the frame they came from.
package measure

import (
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/sfm/tilapia-camera/internal/calibration"
	"github.com/sfm/tilapia-camera/pkg/types"
)

// Label is drawn above every annotated box
const Label = "Tilapia"

// Measurement is one detection expressed in inches with its stage
type Measurement struct {
	WidthIn    float64           `json:"width_in"`
	LengthIn   float64           `json:"length_in"`
	Stage      calibration.Stage `json:"stage"`
	Confidence float64           `json:"confidence"`
	Box        image.Rectangle   `json:"-"`
}

// Measure converts a single detection
func Measure(d types.Detection, c calibration.Calibration) Measurement {
	widthIn, lengthIn := calibration.PixelsToReal(d.PixelWidth(), d.PixelLength(), c)
	return Measurement{
		WidthIn:    widthIn,
		LengthIn:   lengthIn,
		Stage:      calibration.ClassifyStage(widthIn, c.Thresholds),
		Confidence: d.Confidence,
		Box:        d.Box,
	}
}

// Pipeline measures and annotates detections with a fixed calibration
type Pipeline struct {
	cal calibration.Calibration
}

// NewPipeline returns a Pipeline for cal
func NewPipeline(cal calibration.Calibration) *Pipeline {
	return &Pipeline{cal: cal}
}

// Calibration returns the calibration in use
func (p *Pipeline) Calibration() calibration.Calibration {
	return p.cal
}

// Process measures every detection in order and draws its box and label
// onto a copy of frame. frame itself is left untouched.
func (p *Pipeline) Process(frame image.Image, dets []types.Detection) (*image.RGBA, []Measurement) {
	if len(dets) == 0 {
		return cloneRGBA(frame), []Measurement{}
	}

	measurements := make([]Measurement, 0, len(dets))
	for _, d := range dets {
		measurements = append(measurements, Measure(d, p.cal))
	}
	return annotate(frame, measurements), measurements
}

// Summary renders the live display line for a frame
func Summary(ms []Measurement) string {
	if len(ms) == 0 {
		return "No Tilapia detected."
	}
	stages := make([]string, len(ms))
	for i, m := range ms {
		stages[i] = m.Stage.String()
	}
	return "Detected: " + strings.Join(stages, ", ")
}

// Round2 rounds to the 2-decimal display precision
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func cloneRGBA(src image.Image) *image.RGBA {
	if src == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}
