package recorder

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/metrics"
)

// DefaultFilename is the single snapshot file kept on disk
const DefaultFilename = "frame.png"

// Recorder persists snapshot frames to one fixed path, overwriting the
// previous file. Writes happen on a background goroutine.
type Recorder struct {
	mu        sync.RWMutex
	path      string
	running   bool
	written   uint64
	dropped   uint64
	failures  uint64
	lastWrite time.Time
	lastErr   error
	frameChan chan image.Image
	wg        sync.WaitGroup
	metrics   *metrics.Metrics
}

// NewRecorder creates a recorder writing to dir/filename. m may be nil.
func NewRecorder(dir, filename string, m *metrics.Metrics) *Recorder {
	if filename == "" {
		filename = DefaultFilename
	}
	return &Recorder{
		path:      filepath.Join(dir, filename),
		frameChan: make(chan image.Image, 1),
		metrics:   m,
	}
}

// Path returns the fixed snapshot path
func (r *Recorder) Path() string {
	return r.path
}

// Start launches the writer goroutine
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("already running")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		logger.Warn("Recorder", "Cannot create snapshot directory: %v", err)
	}

	r.running = true
	r.frameChan = make(chan image.Image, 1)
	r.wg.Add(1)
	go r.writeFrames(r.frameChan)
	return nil
}

// Stop drains the pending frame and stops the writer
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("not running")
	}
	r.running = false
	close(r.frameChan)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

// SendFrame queues img for writing without blocking. When a write is
// already pending the older frame is replaced, since only the newest
// snapshot is ever kept.
func (r *Recorder) SendFrame(img image.Image) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return false
	}

	select {
	case r.frameChan <- img:
		return true
	default:
	}

	// Replace the stale pending frame
	select {
	case <-r.frameChan:
		r.dropped++
	default:
	}
	select {
	case r.frameChan <- img:
		return true
	default:
		r.dropped++
		return false
	}
}

func (r *Recorder) writeFrames(frames <-chan image.Image) {
	defer r.wg.Done()
	for img := range frames {
		_ = r.Save(img)
	}
}

// Save writes img synchronously. Failures are logged and counted here;
// callers on the frame path ignore the returned error.
func (r *Recorder) Save(img image.Image) error {
	err := r.writeFile(img)

	r.mu.Lock()
	r.lastErr = err
	if err != nil {
		r.failures++
	} else {
		r.written++
		r.lastWrite = time.Now()
	}
	r.mu.Unlock()

	if err != nil {
		if r.metrics != nil {
			r.metrics.StorageErrors.Add(1)
		}
		logger.Warn("Recorder", "Snapshot write failed: %v", err)
	}
	return err
}

func (r *Recorder) writeFile(img image.Image) error {
	tmp := r.path + ".tmp.png"
	if err := gg.SavePNG(tmp, img); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", r.path, err)
	}
	return nil
}

// IsRunning returns true while the writer goroutine is active
func (r *Recorder) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// GetStatus returns the current writer status
func (r *Recorder) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{
		Running:       r.running,
		Path:          r.path,
		FramesWritten: r.written,
		FramesDropped: r.dropped,
		WriteFailures: r.failures,
		LastWrite:     r.lastWrite,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// Close stops the writer if it is running
func (r *Recorder) Close() error {
	if r.IsRunning() {
		return r.Stop()
	}
	return nil
}

// Status holds the snapshot writer status
type Status struct {
	Running       bool      `json:"running"`
	Path          string    `json:"path"`
	FramesWritten uint64    `json:"frames_written"`
	FramesDropped uint64    `json:"frames_dropped"`
	WriteFailures uint64    `json:"write_failures"`
	LastWrite     time.Time `json:"last_write"`
	LastError     string    `json:"last_error,omitempty"`
}
