package measure

import (
	"image"
	"image/color"
	"math"
	"reflect"
	"testing"

	"github.com/sfm/tilapia-camera/internal/calibration"
	"github.com/sfm/tilapia-camera/pkg/types"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func TestProcessMeasuresInDetectionOrder(t *testing.T) {
	p := NewPipeline(calibration.Default())
	dets := []types.Detection{
		{Box: image.Rect(10, 10, 130, 30), Confidence: 0.93},  // 120px wide -> 1.18in
		{Box: image.Rect(20, 60, 620, 100), Confidence: 0.99}, // 600px wide -> 5.91in
		{Box: image.Rect(0, 120, 1100, 140), Confidence: 0.9}, // 1100px wide -> 10.83in
	}

	_, ms := p.Process(grayFrame(1200, 200), dets)

	if len(ms) != 3 {
		t.Fatalf("got %d measurements, want 3", len(ms))
	}
	wantStages := []calibration.Stage{calibration.Starter, calibration.Grower, calibration.Finisher}
	for i, m := range ms {
		if m.Stage != wantStages[i] {
			t.Errorf("ms[%d].Stage = %v, want %v", i, m.Stage, wantStages[i])
		}
		if m.Confidence != dets[i].Confidence || m.Box != dets[i].Box {
			t.Errorf("ms[%d] lost detection data: %+v", i, m)
		}
	}
	if Round2(ms[0].WidthIn) != 1.18 {
		t.Errorf("ms[0].WidthIn = %v, want ~1.18", ms[0].WidthIn)
	}
	// 20px tall: (20/127.13)*2.54cm / 2.54 = 0.157in
	if math.Abs(ms[0].LengthIn-20/127.13) > 1e-9 {
		t.Errorf("ms[0].LengthIn = %v", ms[0].LengthIn)
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	p := NewPipeline(calibration.Default())
	dets := []types.Detection{
		{Box: image.Rect(5, 5, 50, 25), Confidence: 0.91},
		{Box: image.Rect(60, 5, 90, 40), Confidence: 0.92},
	}
	frame := grayFrame(100, 50)

	a1, m1 := p.Process(frame, dets)
	a2, m2 := p.Process(frame, dets)

	if !reflect.DeepEqual(m1, m2) {
		t.Fatalf("measurements differ between runs:\n%+v\n%+v", m1, m2)
	}
	if !reflect.DeepEqual(a1.Pix, a2.Pix) {
		t.Fatal("annotated frames differ between runs")
	}
	if Summary(m1) != Summary(m2) {
		t.Fatal("summary differs between runs")
	}
}

func TestProcessDrawsOnCopy(t *testing.T) {
	frame := grayFrame(200, 100)
	before := append([]uint8(nil), frame.Pix...)

	// A small reference width pushes a 100px box into Finisher.
	cal := calibration.Default()
	cal.ImageWidthPx = 10
	p := NewPipeline(cal)
	annotated, ms := p.Process(frame, []types.Detection{{Box: image.Rect(20, 20, 120, 80), Confidence: 0.95}})

	if ms[0].Stage != calibration.Finisher {
		t.Fatalf("stage = %v, want Finisher", ms[0].Stage)
	}
	if !reflect.DeepEqual(before, frame.Pix) {
		t.Fatal("input frame was mutated")
	}

	edge := annotated.RGBAAt(20, 50)
	red := calibration.Finisher.Color()
	if !near(edge.R, red.R) || !near(edge.G, red.G) || !near(edge.B, red.B) {
		t.Fatalf("box edge pixel = %+v, want %+v", edge, red)
	}
	inside := annotated.RGBAAt(70, 50)
	if inside != (color.RGBA{R: 40, G: 40, B: 40, A: 255}) {
		t.Fatalf("box interior was painted: %+v", inside)
	}
}

func TestProcessNoDetections(t *testing.T) {
	p := NewPipeline(calibration.Default())
	frame := grayFrame(32, 32)

	annotated, ms := p.Process(frame, nil)

	if ms == nil || len(ms) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", ms)
	}
	if !reflect.DeepEqual(annotated.Pix, frame.Pix) {
		t.Fatal("frame without detections carries annotations")
	}
	if annotated == frame {
		t.Fatal("Process returned the input frame instead of a copy")
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(nil); got != "No Tilapia detected." {
		t.Fatalf("Summary(nil) = %q", got)
	}
	ms := []Measurement{{Stage: calibration.Grower}, {Stage: calibration.Starter}}
	if got := Summary(ms); got != "Detected: Grower, Starter" {
		t.Fatalf("Summary = %q", got)
	}
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{1.1811: 1.18, 0.1: 0.1, 2.996: 3.0, 5.004: 5.0}
	for in, want := range tests {
		if got := Round2(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}
