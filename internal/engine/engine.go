// Package engine runs the per-frame loop: capture, detect, measure,
// publish.
package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/sfm/tilapia-camera/internal/camera"
	"github.com/sfm/tilapia-camera/internal/detector"
	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/measure"
	"github.com/sfm/tilapia-camera/internal/metrics"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

// DefaultFPS is the tick rate of the frame loop
const DefaultFPS = 20

var (
	ErrAlreadyRunning = errors.New("engine: already running")
	ErrNotRunning     = errors.New("engine: not running")
)

// Config for the frame loop
type Config struct {
	FPS    int
	Width  int // Placeholder frame size
	Height int
}

// DefaultConfig returns the capture defaults
func DefaultConfig() Config {
	return Config{
		FPS:    DefaultFPS,
		Width:  camera.DefaultWidth,
		Height: camera.DefaultHeight,
	}
}

// Status is a point-in-time view of the loop
type Status struct {
	Running     bool      `json:"running"`
	CameraOpen  bool      `json:"camera_open"`
	FPS         int       `json:"fps"`
	Ticks       uint64    `json:"ticks"`
	FrameNum    uint64    `json:"frame_num"`
	Summary     string    `json:"summary"`
	LastFrameAt time.Time `json:"last_frame_at"`
	StartedAt   time.Time `json:"started_at"`
}

// Engine owns the frame source while running. One goroutine drives every
// tick; Start after Stop reopens the source.
type Engine struct {
	cfg       Config
	open      camera.Opener
	detector  *detector.Detector
	pipeline  *measure.Pipeline
	publisher *snapshot.Publisher
	metrics   *metrics.Metrics

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	source    camera.Source
	startedAt time.Time

	liveMu      sync.RWMutex
	live        image.Image
	liveNum     uint64
	summary     string
	ticks       uint64
	lastFrameAt time.Time

	now func() time.Time
}

// New wires an engine. open is called on every Start; m may be nil.
func New(cfg Config, open camera.Opener, det *detector.Detector, pipe *measure.Pipeline,
	pub *snapshot.Publisher, m *metrics.Metrics) *Engine {
	def := DefaultConfig()
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	e := &Engine{
		cfg:       cfg,
		open:      open,
		detector:  det,
		pipeline:  pipe,
		publisher: pub,
		metrics:   m,
		summary:   measure.Summary(nil),
		now:       time.Now,
	}
	e.live = camera.Placeholder(camera.NoCameraText, cfg.Width, cfg.Height)
	return e
}

// Start opens the source and launches the loop. A source that fails to
// open is not fatal: the loop shows the no-camera placeholder.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}

	var src camera.Source
	if e.open != nil {
		s, err := e.open()
		if err != nil {
			logger.Warn("Engine", "Camera unavailable: %v", err)
		} else {
			src = s
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.source = src
	e.running = true
	e.startedAt = e.now()

	e.wg.Add(1)
	go e.run(ctx, src)

	logger.Info("Engine", "Camera started (%d fps, camera open: %v)", e.cfg.FPS, src != nil)
	return nil
}

// Stop halts the loop, waits for the in-flight tick and releases the source
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}

	e.cancel()
	e.wg.Wait()

	var err error
	if e.source != nil {
		err = e.source.Close()
		e.source = nil
	}
	e.running = false
	logger.Info("Engine", "Camera stopped")
	return err
}

// IsRunning reports whether the loop is active
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Latest returns the most recent display frame and its sequence number.
// The frame is shared; callers must not modify it.
func (e *Engine) Latest() (image.Image, uint64) {
	e.liveMu.RLock()
	defer e.liveMu.RUnlock()
	return e.live, e.liveNum
}

// Summary returns the live detection line
func (e *Engine) Summary() string {
	e.liveMu.RLock()
	defer e.liveMu.RUnlock()
	return e.summary
}

// Status returns loop state and counters
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Running:    e.running,
		CameraOpen: e.source != nil,
		FPS:        e.cfg.FPS,
		StartedAt:  e.startedAt,
	}
	e.mu.Unlock()

	e.liveMu.RLock()
	st.Ticks = e.ticks
	st.FrameNum = e.liveNum
	st.Summary = e.summary
	st.LastFrameAt = e.lastFrameAt
	e.liveMu.RUnlock()
	return st
}

func (e *Engine) run(ctx context.Context, src camera.Source) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(e.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, src)
		}
	}
}

// tick processes one frame, or shows a placeholder when there is none
func (e *Engine) tick(ctx context.Context, src camera.Source) {
	if src == nil {
		e.showPlaceholder(camera.NoCameraText)
		return
	}
	frame, ok := src.NextFrame()
	if !ok || frame == nil || frame.Image == nil {
		e.showPlaceholder(camera.WaitingText)
		return
	}

	start := time.Now()
	if e.metrics != nil {
		e.metrics.FramesRead.Add(1)
	}

	dets := e.detector.Detect(ctx, frame)
	annotated, ms := e.pipeline.Process(frame.Image, dets)
	summary := measure.Summary(ms)

	if e.publisher != nil {
		e.publisher.MaybePublish(annotated, ms, frame.Timestamp)
	}

	e.liveMu.Lock()
	e.live = annotated
	e.liveNum++
	e.ticks++
	e.summary = summary
	e.lastFrameAt = frame.Timestamp
	e.liveMu.Unlock()

	if e.metrics != nil {
		e.metrics.FramesProcessed.Add(1)
		e.metrics.UpdateProcessLatency(time.Since(start))
	}
}

// showPlaceholder swaps in a text frame. The live summary is left alone.
func (e *Engine) showPlaceholder(text string) {
	img := camera.Placeholder(text, e.cfg.Width, e.cfg.Height)

	e.liveMu.Lock()
	e.live = img
	e.liveNum++
	e.ticks++
	e.liveMu.Unlock()

	if e.metrics != nil {
		e.metrics.PlaceholderFrames.Add(1)
	}
}
