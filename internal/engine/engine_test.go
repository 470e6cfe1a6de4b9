package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sfm/tilapia-camera/internal/calibration"
	"github.com/sfm/tilapia-camera/internal/camera"
	"github.com/sfm/tilapia-camera/internal/detector"
	"github.com/sfm/tilapia-camera/internal/measure"
	"github.com/sfm/tilapia-camera/internal/metrics"
	"github.com/sfm/tilapia-camera/internal/snapshot"
	"github.com/sfm/tilapia-camera/pkg/types"
)

type fakeModel struct {
	dets []types.Detection
}

func (f *fakeModel) Infer(ctx context.Context, frame image.Image) ([]types.Detection, error) {
	return f.dets, nil
}

func (f *fakeModel) Info() detector.ModelInfo { return detector.ModelInfo{Backend: "fake"} }
func (f *fakeModel) Close() error             { return nil }

type emptySource struct{ closed atomic.Bool }

func (s *emptySource) NextFrame() (*types.Frame, bool) { return nil, false }

func (s *emptySource) Close() error {
	s.closed.Store(true)
	return nil
}

type harness struct {
	engine *Engine
	store  *snapshot.Store
	m      *metrics.Metrics
}

func newHarness(t *testing.T, open camera.Opener, dets ...types.Detection) *harness {
	t.Helper()
	m := metrics.New()
	store := snapshot.NewStore()
	pub := snapshot.NewPublisher(store, nil, snapshot.Options{}, m)
	det := detector.New(&fakeModel{dets: dets}, m)
	pipe := measure.NewPipeline(calibration.Default())
	e := New(Config{FPS: 100, Width: 64, Height: 36}, open, det, pipe, pub, m)
	return &harness{engine: e, store: store, m: m}
}

func fishFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1280, 720))
}

// 120px wide box: 120/1200*30cm = 3cm = 1.18in, Starter
var starterFish = types.Detection{Box: image.Rect(100, 100, 220, 112), Confidence: 0.95}

func TestTickProcessesFrame(t *testing.T) {
	h := newHarness(t, nil, starterFish, types.Detection{Box: image.Rect(0, 0, 10, 10), Confidence: 0.5})
	src := camera.NewStillSource(fishFrame())

	h.engine.tick(context.Background(), src)

	if got := h.engine.Summary(); got != "Detected: Starter" {
		t.Fatalf("summary = %q", got)
	}
	st := h.store.Snapshot()
	if !st.HasMeasurement || st.Stage != calibration.Starter || st.WidthIn != 1.18 {
		t.Fatalf("published = %+v", st)
	}
	img, num := h.engine.Latest()
	if num != 1 || img.Bounds().Dx() != 1280 {
		t.Fatalf("latest frame #%d %v", num, img.Bounds())
	}
	if h.m.FramesProcessed.Load() != 1 || h.m.DetectionsKept.Load() != 1 || h.m.DetectionsFiltered.Load() != 1 {
		t.Fatal("metrics not updated")
	}
}

func TestTickWithoutDetections(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.tick(context.Background(), camera.NewStillSource(fishFrame()))

	if got := h.engine.Summary(); got != "No Tilapia detected." {
		t.Fatalf("summary = %q", got)
	}
	if h.store.Snapshot().HasMeasurement {
		t.Fatal("published without a measurement")
	}
}

func TestTickPlaceholders(t *testing.T) {
	h := newHarness(t, nil, starterFish)

	h.engine.tick(context.Background(), nil)
	img, _ := h.engine.Latest()
	if img != camera.Placeholder(camera.NoCameraText, 64, 36) {
		t.Fatal("expected the no-camera placeholder")
	}

	h.engine.tick(context.Background(), &emptySource{})
	img, num := h.engine.Latest()
	if img != camera.Placeholder(camera.WaitingText, 64, 36) || num != 2 {
		t.Fatal("expected the waiting placeholder")
	}

	if h.m.PlaceholderFrames.Load() != 2 || h.m.FramesRead.Load() != 0 {
		t.Fatal("placeholder ticks counted as frames")
	}
	if h.store.Snapshot().HasMeasurement {
		t.Fatal("placeholder frame was published")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartStopRestart(t *testing.T) {
	var mu sync.Mutex
	var sources []*emptySource
	open := func() (camera.Source, error) {
		mu.Lock()
		defer mu.Unlock()
		s := &emptySource{}
		sources = append(sources, s)
		return s, nil
	}
	h := newHarness(t, open)
	e := h.engine

	if err := e.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop before Start = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v", err)
	}
	waitFor(t, func() bool { return e.Status().Ticks > 0 })
	if st := e.Status(); !st.Running || !st.CameraOpen {
		t.Fatalf("status = %+v", st)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if e.IsRunning() || !sources[0].closed.Load() {
		t.Fatal("Stop did not release the source")
	}
	ticks := e.Status().Ticks
	time.Sleep(30 * time.Millisecond)
	if e.Status().Ticks != ticks {
		t.Fatal("loop kept ticking after Stop")
	}

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	mu.Lock()
	n := len(sources)
	mu.Unlock()
	if n != 2 {
		t.Fatalf("opened %d sources, want 2", n)
	}
}

func TestStartWithoutCamera(t *testing.T) {
	h := newHarness(t, func() (camera.Source, error) { return nil, camera.ErrNoCamera })
	e := h.engine

	if err := e.Start(); err != nil {
		t.Fatalf("Start = %v", err)
	}
	defer e.Stop()

	waitFor(t, func() bool { return h.m.PlaceholderFrames.Load() > 0 })
	if e.Status().CameraOpen {
		t.Fatal("camera reported open")
	}
}
