package detector

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/machinebox/sdk-go/objectbox"

	"github.com/sfm/tilapia-camera/internal/metrics"
	"github.com/sfm/tilapia-camera/pkg/types"
)

type fakeModel struct {
	dets  []types.Detection
	err   error
	calls int
}

func (f *fakeModel) Infer(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	f.calls++
	return f.dets, f.err
}

func (f *fakeModel) Info() ModelInfo { return ModelInfo{Backend: "fake"} }
func (f *fakeModel) Close() error    { return nil }

func testFrame() *types.Frame {
	return types.NewFrame(image.NewRGBA(image.Rect(0, 0, 64, 48)), 1, time.Now())
}

func det(conf float64) types.Detection {
	return types.Detection{Box: image.Rect(1, 2, 11, 22), Confidence: conf}
}

func TestDetectAppliesCutoff(t *testing.T) {
	model := &fakeModel{dets: []types.Detection{det(0.95), det(0.9), det(0.8999), det(0.2), det(1.0)}}
	m := metrics.New()
	d := New(model, m)

	got := d.Detect(context.Background(), testFrame())

	if len(got) != 3 {
		t.Fatalf("kept %d detections, want 3: %+v", len(got), got)
	}
	want := []float64{0.95, 0.9, 1.0}
	for i, c := range want {
		if got[i].Confidence != c {
			t.Errorf("got[%d].Confidence = %v, want %v (order must be preserved)", i, got[i].Confidence, c)
		}
	}
	if m.DetectionsKept.Load() != 3 || m.DetectionsFiltered.Load() != 2 {
		t.Errorf("kept=%d filtered=%d", m.DetectionsKept.Load(), m.DetectionsFiltered.Load())
	}
	if model.calls != 1 {
		t.Errorf("model called %d times, want 1", model.calls)
	}
}

func TestDetectDropsEmptyBoxes(t *testing.T) {
	model := &fakeModel{dets: []types.Detection{{Box: image.Rect(5, 5, 5, 9), Confidence: 0.99}}}
	if got := New(model, nil).Detect(context.Background(), testFrame()); len(got) != 0 {
		t.Fatalf("zero-width box kept: %+v", got)
	}
}

func TestDetectInferenceFailureIsNonFatal(t *testing.T) {
	model := &fakeModel{err: errors.New("cuda exploded")}
	m := metrics.New()
	d := New(model, m)

	for i := 0; i < 3; i++ {
		if got := d.Detect(context.Background(), testFrame()); len(got) != 0 {
			t.Fatalf("expected no detections on failure, got %+v", got)
		}
	}
	if m.InferenceErrors.Load() != 3 {
		t.Fatalf("InferenceErrors = %d, want 3", m.InferenceErrors.Load())
	}
}

func TestDetectNilFrame(t *testing.T) {
	model := &fakeModel{dets: []types.Detection{det(0.99)}}
	if got := New(model, nil).Detect(context.Background(), nil); got != nil {
		t.Fatalf("nil frame produced %+v", got)
	}
	if model.calls != 0 {
		t.Fatal("model invoked for nil frame")
	}
}

func TestObjectboxDetections(t *testing.T) {
	resp := objectbox.CheckResponse{
		Detectors: []objectbox.CheckDetectorResponse{
			{
				ID:   "tilapia1",
				Name: "tilapia",
				Objects: []objectbox.Object{
					{Rect: objectbox.Rect{Left: 10, Top: 20, Width: 100, Height: 40}, Score: 0.97},
				},
			},
			{
				ID:   "other",
				Name: "bucket",
				Objects: []objectbox.Object{
					{Rect: objectbox.Rect{Left: 0, Top: 0, Width: 5, Height: 5}, Score: 0.99},
				},
			},
		},
	}

	all := objectboxDetections(resp, "")
	if len(all) != 2 {
		t.Fatalf("got %d detections, want 2", len(all))
	}
	if all[0].Box != image.Rect(10, 20, 110, 60) || all[0].Confidence != 0.97 {
		t.Fatalf("mapped detection = %+v", all[0])
	}

	only := objectboxDetections(resp, "tilapia")
	if len(only) != 1 || only[0].Box.Dx() != 100 {
		t.Fatalf("filtered detections = %+v", only)
	}
}

func TestDecodeYOLO(t *testing.T) {
	// rows = 4 box values + 2 classes, n = 3 candidates, channel-major.
	const n = 3
	data := []float32{
		// cx
		320, 100, 50,
		// cy
		320, 100, 50,
		// w
		64, 20, 10,
		// h
		32, 20, 10,
		// class 0
		0.95, 0.1, 0.0,
		// class 1
		0.2, 0.05, 0.6,
	}
	boxes, scores := decodeYOLO(data, 6, n, 2, 1, 0.25)
	if len(boxes) != 2 {
		t.Fatalf("got %d boxes, want 2: %v", len(boxes), boxes)
	}
	if boxes[0] != image.Rect(576, 304, 704, 336) || scores[0] != 0.95 {
		t.Fatalf("box0 = %v score %v", boxes[0], scores[0])
	}
	if boxes[1] != image.Rect(90, 45, 110, 55) || scores[1] != 0.6 {
		t.Fatalf("box1 = %v score %v", boxes[1], scores[1])
	}
}

func TestDecodeYOLOShortBuffer(t *testing.T) {
	if boxes, _ := decodeYOLO(make([]float32, 4), 6, 3, 1, 1, 0.1); boxes != nil {
		t.Fatalf("expected nil for short buffer, got %v", boxes)
	}
}
