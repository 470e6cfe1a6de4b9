package webmonitor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/metrics"
)

// keyframeInterval is how often an unchanged frame is re-sent to keep
// MJPEG clients from falling back to the placeholder.
const keyframeInterval = time.Second

// FrameSource provides the latest display frame and its sequence number.
type FrameSource interface {
	Latest() (image.Image, uint64)
}

// fanout delivers values to subscribed client channels without blocking.
// A client whose buffer is full misses that value.
type fanout[T any] struct {
	name    string
	mu      sync.Mutex
	clients map[int]chan T
	nextID  int
	metrics *metrics.Metrics
}

func newFanout[T any](name string, m *metrics.Metrics) *fanout[T] {
	return &fanout[T]{name: name, clients: make(map[int]chan T), metrics: m}
}

func (f *fanout[T]) subscribe() (int, <-chan T) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	ch := make(chan T, 2) // Buffer 2 values to avoid blocking
	f.clients[id] = ch
	count := len(f.clients)
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.ActiveClients.Add(1)
	}
	logger.Debug(f.name, "Client #%d subscribed (total clients: %d)", id, count)
	return id, ch
}

func (f *fanout[T]) unsubscribe(id int) {
	f.mu.Lock()
	ch, ok := f.clients[id]
	if ok {
		close(ch)
		delete(f.clients, id)
	}
	remaining := len(f.clients)
	f.mu.Unlock()

	if !ok {
		return
	}
	if f.metrics != nil {
		f.metrics.ActiveClients.Add(-1)
	}
	logger.Debug(f.name, "Client #%d unsubscribed (remaining clients: %d)", id, remaining)
}

func (f *fanout[T]) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fanout[T]) send(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.clients {
		select {
		case ch <- v:
		default:
		}
	}
}

// stopper closes its channel once
type stopper struct {
	once sync.Once
	ch   chan struct{}
}

func newStopper() *stopper {
	return &stopper{ch: make(chan struct{})}
}

func (s *stopper) stop() {
	s.once.Do(func() { close(s.ch) })
}

// FrameBroadcaster encodes the live frame as JPEG and fans it out to MJPEG
// clients. Nothing is encoded while no client is connected.
type FrameBroadcaster struct {
	clients   *fanout[[]byte]
	source    FrameSource
	interval  time.Duration
	quality   int
	done      *stopper
	skipCount int // Count of ticks skipped when no clients

	lastNum  uint64
	lastJPEG []byte
	lastSent time.Time
}

// NewFrameBroadcaster creates a broadcaster over source. m may be nil.
func NewFrameBroadcaster(source FrameSource, interval time.Duration, quality int, m *metrics.Metrics) *FrameBroadcaster {
	return &FrameBroadcaster{
		clients:  newFanout[[]byte]("FrameBroadcaster", m),
		source:   source,
		interval: interval,
		quality:  quality,
		done:     newStopper(),
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	return fb.clients.subscribe()
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.clients.unsubscribe(id)
}

// Start begins the frame encode and broadcast loop.
func (fb *FrameBroadcaster) Start() {
	go fb.run()
}

// Stop halts the broadcaster. It is safe to call more than once.
func (fb *FrameBroadcaster) Stop() {
	fb.done.stop()
}

func (fb *FrameBroadcaster) run() {
	ticker := time.NewTicker(fb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-fb.done.ch:
			return
		case <-ticker.C:
		}

		if fb.clients.count() == 0 {
			fb.skipCount++
			if fb.skipCount%200 == 0 {
				logger.Debug("FrameBroadcaster", "No clients connected (idle for %d ticks)", fb.skipCount)
			}
			continue
		}
		fb.skipCount = 0

		if data := fb.nextJPEG(time.Now()); data != nil {
			fb.clients.send(data)
		}
	}
}

// nextJPEG encodes the live frame when it changed. An unchanged frame is
// repeated once per keyframeInterval; otherwise nil is returned.
func (fb *FrameBroadcaster) nextJPEG(now time.Time) []byte {
	if fb.source == nil {
		return nil
	}
	img, num := fb.source.Latest()
	if img == nil {
		return nil
	}
	if num == fb.lastNum && fb.lastJPEG != nil {
		if now.Sub(fb.lastSent) < keyframeInterval {
			return nil
		}
		fb.lastSent = now
		return fb.lastJPEG
	}

	data, err := encodeJPEG(img, fb.quality)
	if err != nil {
		logger.Warn("FrameBroadcaster", "JPEG encode failed: %v", err)
		return nil
	}
	fb.lastNum = num
	fb.lastJPEG = data
	fb.lastSent = now
	return data
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// StatusBroadcaster fans status events out to SSE clients. Events go out
// on every interval and whenever Notify is called.
type StatusBroadcaster struct {
	clients  *fanout[*SerializedEvent]
	monitor  *Monitor
	trigger  chan struct{}
	done     *stopper
	interval time.Duration
}

// NewStatusBroadcaster creates a broadcaster for status events. m may be nil.
func NewStatusBroadcaster(monitor *Monitor, interval time.Duration, m *metrics.Metrics) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients:  newFanout[*SerializedEvent]("StatusBroadcaster", m),
		monitor:  monitor,
		trigger:  make(chan struct{}, 1),
		done:     newStopper(),
		interval: interval,
	}
}

// Subscribe adds a new client. The first event is sent without waiting
// for the interval.
func (sb *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	id, ch := sb.clients.subscribe()
	sb.Notify()
	return id, ch
}

// Unsubscribe removes a client.
func (sb *StatusBroadcaster) Unsubscribe(id int) {
	sb.clients.unsubscribe(id)
}

// Notify requests an event ahead of the next tick. It never blocks.
func (sb *StatusBroadcaster) Notify() {
	select {
	case sb.trigger <- struct{}{}:
	default:
	}
}

// Start begins the status event loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster. It is safe to call more than once.
func (sb *StatusBroadcaster) Stop() {
	sb.done.stop()
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)...", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.done.ch:
			return
		case <-ticker.C:
		case <-sb.trigger:
		}

		if sb.clients.count() == 0 {
			continue
		}
		if event := sb.generateSerializedEvent(); event != nil {
			sb.clients.send(event)
		}
	}
}

func (sb *StatusBroadcaster) generateSerializedEvent() *SerializedEvent {
	event, err := serializeStatus(sb.monitor.Snapshot())
	if err != nil {
		logger.Error("StatusBroadcaster", "Serialize error: %v", err)
		return nil
	}
	return event
}

// serializeStatus renders payload as JSON and as a base64 protobuf
// google.protobuf.Struct carrying the same fields.
func serializeStatus(payload StatusPayload) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	st := &structpb.Struct{}
	if err := protojson.Unmarshal(jsonData, st); err != nil {
		return nil, err
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, err
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}
