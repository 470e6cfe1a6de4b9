package webmonitor

import (
	"context"
	"image"
	"time"

	"github.com/sfm/tilapia-camera/internal/correlator"
	"github.com/sfm/tilapia-camera/internal/emitter"
	"github.com/sfm/tilapia-camera/internal/engine"
	"github.com/sfm/tilapia-camera/internal/metrics"
	"github.com/sfm/tilapia-camera/internal/recorder"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

// Camera is the frame loop as seen by the monitor.
type Camera interface {
	Start() error
	Stop() error
	Status() engine.Status
	Latest() (image.Image, uint64)
}

// WeightCorrelator runs one on-demand correlation.
type WeightCorrelator interface {
	Correlate(ctx context.Context, doc string) (correlator.WeightResult, error)
}

// SamplingClient reports sampling session progress.
type SamplingClient interface {
	NextSample(ctx context.Context, samplingID int64) (correlator.SampleProgress, error)
}

// EmitterStats reports MQTT emitter counters.
type EmitterStats interface {
	Stats() emitter.Stats
}

// Deps are the components the monitor serves. Recorder, Emitter,
// Sampling and Metrics may be nil.
type Deps struct {
	Camera     Camera
	Store      *snapshot.Store
	Publisher  *snapshot.Publisher
	Recorder   *recorder.Recorder
	Correlator WeightCorrelator
	Sampling   SamplingClient
	Emitter    EmitterStats
	Metrics    *metrics.Metrics
}

// Monitor assembles status payloads from the live components.
type Monitor struct {
	deps Deps
	now  func() time.Time
}

// NewMonitor creates a Monitor over deps.
func NewMonitor(deps Deps) *Monitor {
	return &Monitor{deps: deps, now: time.Now}
}

// Snapshot returns the current status.
func (m *Monitor) Snapshot() StatusPayload {
	now := m.now()
	p := StatusPayload{
		Publisher: snapshot.Idle.String(),
		Timestamp: float64(now.UnixMilli()) / 1000,
	}
	if m.deps.Store != nil {
		p.Published = m.deps.Store.Snapshot()
	}
	if m.deps.Camera != nil {
		p.Camera = m.deps.Camera.Status()
	}
	if m.deps.Publisher != nil {
		p.Publisher = m.deps.Publisher.State(now).String()
	}
	if m.deps.Recorder != nil {
		st := m.deps.Recorder.GetStatus()
		p.Recorder = &st
	}
	if m.deps.Emitter != nil {
		st := m.deps.Emitter.Stats()
		p.MQTT = &st
	}
	if mt := m.deps.Metrics; mt != nil {
		p.Stats = Counters{
			FramesProcessed:    mt.FramesProcessed.Load(),
			PlaceholderFrames:  mt.PlaceholderFrames.Load(),
			DetectionsKept:     mt.DetectionsKept.Load(),
			DetectionsFiltered: mt.DetectionsFiltered.Load(),
			InferenceErrors:    mt.InferenceErrors.Load(),
			Publishes:          mt.Publishes.Load(),
			StorageErrors:      mt.StorageErrors.Load(),
			CorrelationsOK:     mt.CorrelationsOK.Load(),
			CorrelationsFailed: mt.CorrelationsFailed.Load(),
			ProcessLatencyMs:   mt.ProcessLatencyMs.Load(),
			StreamClients:      mt.ActiveClients.Load(),
		}
	}
	return p
}
