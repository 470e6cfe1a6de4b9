// Package snapshot decides when a processed frame becomes the published
// state and owns that state.
package snapshot

import (
	"image"
	"sync"
	"time"

	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/measure"
	"github.com/sfm/tilapia-camera/internal/metrics"
)

// DefaultInterval is the minimum spacing between publishes
const DefaultInterval = 3 * time.Second

// State of the publish gate
type State int

const (
	// Idle accepts the next non-empty measurement set
	Idle State = iota
	// Cooldown suppresses publishes until the interval has elapsed
	Cooldown
)

func (s State) String() string {
	if s == Cooldown {
		return "cooldown"
	}
	return "idle"
}

// FrameSink persists an annotated frame. SendFrame must not block.
type FrameSink interface {
	SendFrame(img image.Image) bool
	Path() string
}

// Options configure a Publisher
type Options struct {
	Interval         time.Duration
	ClearStaleWeight bool
}

// Publisher gates snapshot publishing to at most once per interval
type Publisher struct {
	mu          sync.Mutex
	store       *Store
	sink        FrameSink
	opts        Options
	state       State
	lastPublish time.Time
	metrics     *metrics.Metrics
}

// NewPublisher returns a publisher in the Idle state. sink and m may be nil.
func NewPublisher(store *Store, sink FrameSink, opts Options, m *metrics.Metrics) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Publisher{
		store:   store,
		sink:    sink,
		opts:    opts,
		state:   Idle,
		metrics: m,
	}
}

// Store returns the state being published to
func (p *Publisher) Store() *Store {
	return p.store
}

// State reports the gate state as of now
func (p *Publisher) State(now time.Time) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked(now)
	return p.state
}

// advanceLocked leaves Cooldown once strictly more than the interval has passed
func (p *Publisher) advanceLocked(now time.Time) {
	if p.state == Cooldown && now.Sub(p.lastPublish) > p.opts.Interval {
		p.state = Idle
	}
}

// MaybePublish publishes the last measurement of the frame when the gate
// is Idle. It reports whether a publish happened. A frame write failure
// does not fail the publish.
func (p *Publisher) MaybePublish(annotated image.Image, ms []measure.Measurement, now time.Time) bool {
	if len(ms) == 0 {
		return false
	}

	p.mu.Lock()
	p.advanceLocked(now)
	if p.state != Idle {
		p.mu.Unlock()
		return false
	}
	p.state = Cooldown
	p.lastPublish = now
	p.mu.Unlock()

	canonical := ms[len(ms)-1]

	framePath := ""
	if p.sink != nil {
		framePath = p.sink.Path()
		if !p.sink.SendFrame(annotated) {
			if p.metrics != nil {
				p.metrics.StorageErrors.Add(1)
			}
			logger.Warn("Snapshot", "Snapshot frame was not queued for %s", framePath)
		}
	}

	state, cleared := p.store.Publish(canonical, now, framePath, p.opts.ClearStaleWeight)
	if p.metrics != nil {
		p.metrics.Publishes.Add(1)
		if cleared {
			p.metrics.StaleWeightsCleared.Add(1)
		}
	}
	if cleared {
		logger.Info("Snapshot", "Cleared weight from previous fish")
	}
	logger.Debug("Snapshot", "Published %s width=%.2fin length=%.2fin (%s)",
		state.Stage, state.WidthIn, state.LengthIn, state.SnapshotID)
	return true
}
