// Package calibration converts pixel measurements to real-world
// dimensions and classifies growth stage from the estimated width.
package calibration

import (
	"errors"
	"fmt"
)

// CmPerInch is the exact centimetre/inch ratio.
const CmPerInch = 2.54

// Thresholds are the ordered stage boundaries in inches.
type Thresholds struct {
	StarterMaxIn float64 `yaml:"starter_max_in" json:"starter_max_in"`
	GrowerMaxIn  float64 `yaml:"grower_max_in" json:"grower_max_in"`
}

// Calibration holds the reference object's real and pixel dimensions.
type Calibration struct {
	RealLengthCm  float64    `yaml:"real_length_cm" json:"real_length_cm"`
	RealWidthCm   float64    `yaml:"real_width_cm" json:"real_width_cm"`
	ImageWidthPx  float64    `yaml:"image_width_px" json:"image_width_px"`
	ImageLengthPx float64    `yaml:"image_length_px" json:"image_length_px"`
	Thresholds    Thresholds `yaml:"stage_thresholds_in" json:"stage_thresholds_in"`
}

// Default returns the bench calibration the camera rig ships with.
func Default() Calibration {
	return Calibration{
		RealLengthCm:  2.54,
		RealWidthCm:   30.0,
		ImageWidthPx:  1200,
		ImageLengthPx: 127.13,
		Thresholds: Thresholds{
			StarterMaxIn: 3.0,
			GrowerMaxIn:  6.0,
		},
	}
}

var errNonPositive = errors.New("must be > 0")

// Validate checks the reference values are positive and the thresholds increase.
func (c Calibration) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"real_length_cm", c.RealLengthCm},
		{"real_width_cm", c.RealWidthCm},
		{"image_width_px", c.ImageWidthPx},
		{"image_length_px", c.ImageLengthPx},
	}
	for _, f := range fields {
		if !(f.value > 0) {
			return fmt.Errorf("calibration.%s %w, got %v", f.name, errNonPositive, f.value)
		}
	}
	if !(c.Thresholds.StarterMaxIn < c.Thresholds.GrowerMaxIn) {
		return fmt.Errorf("calibration thresholds must be strictly increasing, got starter=%v grower=%v",
			c.Thresholds.StarterMaxIn, c.Thresholds.GrowerMaxIn)
	}
	return nil
}

// PixelsToReal converts a pixel width and length to inches.
func PixelsToReal(pixelWidth, pixelLength float64, c Calibration) (widthIn, lengthIn float64) {
	lengthCm := (pixelLength / c.ImageLengthPx) * c.RealLengthCm
	widthCm := (pixelWidth / c.ImageWidthPx) * c.RealWidthCm
	return widthCm / CmPerInch, lengthCm / CmPerInch
}

// ClassifyStage maps a width in inches onto a stage. Boundaries belong to
// the lower stage. Length does not participate.
func ClassifyStage(widthIn float64, t Thresholds) Stage {
	switch {
	case widthIn <= t.StarterMaxIn:
		return Starter
	case widthIn <= t.GrowerMaxIn:
		return Grower
	default:
		return Finisher
	}
}
