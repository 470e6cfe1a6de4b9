package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sfm/tilapia-camera/internal/calibration"
	"github.com/sfm/tilapia-camera/internal/measure"
)

// PublishedState is the most recently saved measurement. Width and length
// are stored at display precision, which is also what the weight service
// receives.
type PublishedState struct {
	SnapshotID     string            `json:"snapshot_id,omitempty"`
	HasMeasurement bool              `json:"has_measurement"`
	WidthIn        float64           `json:"width_in"`
	LengthIn       float64           `json:"length_in"`
	WeightG        *float64          `json:"weight_g"`
	Stage          calibration.Stage `json:"stage"`
	Confidence     float64           `json:"confidence"`
	Timestamp      time.Time         `json:"timestamp"`
	FramePath      string            `json:"frame_path"`
}

// ErrSnapshotChanged is returned by SetWeightFor when a different snapshot
// has been published since the weight was requested
var ErrSnapshotChanged = errors.New("published snapshot changed")

// MarshalJSON leaves the stage out until something has been measured
func (p PublishedState) MarshalJSON() ([]byte, error) {
	type plain PublishedState
	if p.HasMeasurement {
		return json.Marshal(plain(p))
	}
	return json.Marshal(struct {
		plain
		Stage *calibration.Stage `json:"stage,omitempty"`
	}{plain: plain(p)})
}

// Change identifies which writer touched the state
type Change int

const (
	ChangePublish Change = iota
	ChangeWeight
)

func (c Change) String() string {
	if c == ChangeWeight {
		return "weight"
	}
	return "publish"
}

// Listener observes state changes. It runs on the writer's goroutine after
// the lock is released and must not block.
type Listener func(state PublishedState, change Change)

// Store owns PublishedState. The publisher writes everything except the
// weight; the correlator writes only the weight.
type Store struct {
	mu        sync.RWMutex
	state     PublishedState
	listeners []Listener
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{}
}

// Subscribe registers l for every subsequent change
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns a copy safe to hand to readers
func (s *Store) Snapshot() PublishedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() PublishedState {
	out := s.state
	if s.state.WeightG != nil {
		w := *s.state.WeightG
		out.WeightG = &w
	}
	return out
}

// Measurement returns the published width and length, if any, with the
// snapshot they belong to
func (s *Store) Measurement() (snapshotID string, widthIn, lengthIn float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SnapshotID, s.state.WidthIn, s.state.LengthIn, s.state.HasMeasurement
}

// Publish overwrites every field except the weight. A new snapshot ID is
// minted only when m describes a different fish than the one currently
// published; re-publishing the same fish keeps the ID so an in-flight
// correlation still lands. With clearStale set, the weight is also reset for
// a different fish. The returned bool reports whether it was cleared.
func (s *Store) Publish(m measure.Measurement, ts time.Time, framePath string, clearStale bool) (PublishedState, bool) {
	width := measure.Round2(m.WidthIn)
	length := measure.Round2(m.LengthIn)

	s.mu.Lock()
	prev := s.state
	cleared := false
	if materiallyDifferent(prev, width, length, m.Stage) {
		s.state.SnapshotID = uuid.NewString()
		if clearStale && prev.WeightG != nil {
			s.state.WeightG = nil
			cleared = true
		}
	}
	s.state.HasMeasurement = true
	s.state.WidthIn = width
	s.state.LengthIn = length
	s.state.Stage = m.Stage
	s.state.Confidence = m.Confidence
	s.state.Timestamp = ts
	s.state.FramePath = framePath
	out := s.copyLocked()
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, out, ChangePublish)
	return out, cleared
}

// SetWeightFor writes the weight only while snapshotID is still the
// published snapshot. Otherwise nothing changes and ErrSnapshotChanged is
// returned.
func (s *Store) SetWeightFor(snapshotID string, weightG float64) (PublishedState, error) {
	s.mu.Lock()
	if s.state.SnapshotID != snapshotID {
		current := s.state.SnapshotID
		s.mu.Unlock()
		return PublishedState{}, fmt.Errorf("%w: weight is for %s, %s is published", ErrSnapshotChanged, snapshotID, current)
	}
	w := weightG
	s.state.WeightG = &w
	out := s.copyLocked()
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, out, ChangeWeight)
	return out, nil
}

func materiallyDifferent(prev PublishedState, width, length float64, stage calibration.Stage) bool {
	if !prev.HasMeasurement {
		return true
	}
	return prev.WidthIn != width || prev.LengthIn != length || prev.Stage != stage
}

func notify(listeners []Listener, state PublishedState, change Change) {
	for _, l := range listeners {
		l(state, change)
	}
}
